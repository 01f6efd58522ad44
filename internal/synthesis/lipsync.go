package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// DefaultLipSyncTimeout bounds one lip-sync extraction. The external tool
// analyzes audio offline and can wedge on malformed input.
const DefaultLipSyncTimeout = 20 * time.Second

// lipSyncBinary is the expected executable name when the configured path
// points at a directory.
const lipSyncBinary = "rhubarb"

// LipSyncRunner extracts mouth cues from WAV audio by shelling out to an
// external lip-sync executable (Rhubarb Lip Sync or a compatible tool).
type LipSyncRunner struct {
	path    string
	timeout time.Duration
}

// RunnerOption configures a [LipSyncRunner].
type RunnerOption func(*LipSyncRunner)

// WithTimeout overrides [DefaultLipSyncTimeout].
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *LipSyncRunner) { r.timeout = d }
}

// NewLipSyncRunner returns a runner for the executable at path. The path may
// name the binary itself or its containing directory.
func NewLipSyncRunner(path string, opts ...RunnerOption) *LipSyncRunner {
	r := &LipSyncRunner{path: resolveBinary(path), timeout: DefaultLipSyncTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// resolveBinary normalizes a configured lip-sync path: a directory gets the
// binary name appended, and on Windows an extensionless file gets ".exe".
func resolveBinary(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, lipSyncBinary)
	}
	if runtime.GOOS == "windows" && filepath.Ext(path) == "" {
		path += ".exe"
	}
	return path
}

type lipSyncOutput struct {
	MouthCues []Cue `json:"mouthCues"`
}

// Extract runs the lip-sync tool over the WAV file at wavPath and returns its
// mouth cues in order.
func (r *LipSyncRunner) Extract(ctx context.Context, wavPath string) ([]Cue, error) {
	if _, err := os.Stat(r.path); err != nil {
		return nil, fmt.Errorf("synthesis: lip-sync executable: %w", err)
	}

	out, err := os.CreateTemp("", "mouthcues-*.json")
	if err != nil {
		return nil, fmt.Errorf("synthesis: create cue file: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.path, "-f", "json", "-o", outPath, wavPath)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("synthesis: lip-sync run: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("synthesis: read cue file: %w", err)
	}
	var parsed lipSyncOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("synthesis: decode cue file: %w", err)
	}
	return parsed.MouthCues, nil
}
