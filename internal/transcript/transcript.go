// Package transcript resolves the text a learner actually said.
//
// A request may carry the text directly (typed input or a client-side
// recognizer) or raw audio to be transcribed server-side. Uploaded audio of
// unexpected sample rate or channel count is re-encoded once with ffmpeg
// before the transcription is retried.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/fluentive/fluentive/pkg/provider/stt"
)

// ErrNoInput is returned when a request carries neither text nor audio.
var ErrNoInput = errors.New("transcript: no text or audio provided")

// ErrEmpty is returned when transcription of the provided audio yields no
// words. Callers translate this into a client error, not a server fault.
var ErrEmpty = errors.New("transcript: audio contains no recognizable speech")

// reencodeTimeout bounds one ffmpeg invocation.
const reencodeTimeout = 15 * time.Second

// Input is one request's speech payload.
type Input struct {
	// Text, when set, is used verbatim and Audio is ignored.
	Text string
	// Audio is WAV-or-compatible bytes to transcribe.
	Audio []byte
	// Language is the expected speech language, e.g. "en".
	Language string
}

// Resolver turns an [Input] into transcript text.
type Resolver struct {
	transcriber stt.Transcriber
	ffmpegPath  string
	tmpDir      string
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithFFmpeg sets the ffmpeg executable used for the re-encode retry.
// Without it, transcription failures are not retried.
func WithFFmpeg(path string) Option {
	return func(r *Resolver) { r.ffmpegPath = path }
}

// WithTempDir overrides the scratch directory for uploaded audio.
func WithTempDir(dir string) Option {
	return func(r *Resolver) { r.tmpDir = dir }
}

// NewResolver returns a Resolver that transcribes through t.
func NewResolver(t stt.Transcriber, opts ...Option) *Resolver {
	r := &Resolver{transcriber: t, ffmpegPath: "ffmpeg", tmpDir: os.TempDir()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the transcript for in. Provided text wins over audio.
func (r *Resolver) Resolve(ctx context.Context, in Input) (string, error) {
	if text := strings.TrimSpace(in.Text); text != "" {
		return text, nil
	}
	if len(in.Audio) == 0 {
		return "", ErrNoInput
	}
	if r.transcriber == nil {
		return "", fmt.Errorf("transcript: no transcriber configured for audio input")
	}

	path, err := r.writeTemp(in.Audio)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	text, err := r.transcribe(ctx, path, in.Language)
	if err == nil && text != "" {
		return text, nil
	}
	if err != nil {
		slog.Warn("transcript: transcription failed, re-encoding audio",
			"stage", "transcript", "error", err)
	}

	// One retry after normalizing to 16 kHz mono, the rate speech models are
	// trained on. Browser uploads are commonly 44.1 or 48 kHz stereo.
	fixed, rerr := r.reencode(ctx, path)
	if rerr != nil {
		if err != nil {
			return "", fmt.Errorf("transcript: transcribe: %w", err)
		}
		return "", ErrEmpty
	}
	defer os.Remove(fixed)

	text, err = r.transcribe(ctx, fixed, in.Language)
	if err != nil {
		return "", fmt.Errorf("transcript: transcribe re-encoded audio: %w", err)
	}
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

func (r *Resolver) writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp(r.tmpDir, "upload-*.wav")
	if err != nil {
		return "", fmt.Errorf("transcript: create temp file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("transcript: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("transcript: close temp file: %w", err)
	}
	return path, nil
}

func (r *Resolver) transcribe(ctx context.Context, path, language string) (string, error) {
	segments, err := r.transcriber.Transcribe(ctx, path, language)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

// reencode converts the audio at path to 16 kHz mono WAV and returns the new
// file's path.
func (r *Resolver) reencode(ctx context.Context, path string) (string, error) {
	if r.ffmpegPath == "" {
		return "", errors.New("transcript: ffmpeg not configured")
	}

	out, err := os.CreateTemp(r.tmpDir, "reencoded-*.wav")
	if err != nil {
		return "", fmt.Errorf("transcript: create re-encode target: %w", err)
	}
	outPath := out.Name()
	out.Close()

	ctx, cancel := context.WithTimeout(ctx, reencodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.ffmpegPath, "-y", "-i", path, "-ar", "16000", "-ac", "1", outPath)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("transcript: ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}
	return outPath, nil
}

// lastLine extracts the final non-empty line of ffmpeg's notoriously chatty
// stderr.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
