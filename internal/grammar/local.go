package grammar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Scores assigned when the local model answers but its output cannot be used
// as-is and the transcript is passed through instead.
const (
	localPassthroughScore   = 85
	localPassthroughFluency = 80
)

// DefaultLocalTimeout bounds one local model round trip. Local inference on
// small hardware is slow; anything beyond this is treated as unavailable.
const DefaultLocalTimeout = 8 * time.Second

// LocalStrategy corrects through an Ollama server's generate endpoint. It is
// meant as the offline tier below a cloud model.
type LocalStrategy struct {
	baseURL string
	model   string
	client  *http.Client
}

var _ Strategy = (*LocalStrategy)(nil)

// LocalOption configures a [LocalStrategy].
type LocalOption func(*LocalStrategy)

// WithLocalTimeout overrides [DefaultLocalTimeout].
func WithLocalTimeout(d time.Duration) LocalOption {
	return func(s *LocalStrategy) {
		s.client.Timeout = d
	}
}

// NewLocalStrategy returns a strategy that generates corrections with model
// on the Ollama server at baseURL.
func NewLocalStrategy(baseURL, model string, opts ...LocalOption) *LocalStrategy {
	s := &LocalStrategy{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: DefaultLocalTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LocalStrategy) Name() string { return "local" }

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Format  string          `json:"format"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (s *LocalStrategy) Correct(ctx context.Context, transcript string) (*Result, error) {
	prompt := llmSystemPrompt + "\n\nLearner's answer: " + transcript

	body, err := json.Marshal(generateRequest{
		Model:  s.model,
		Prompt: prompt,
		Format: "json",
		Stream: false,
		Options: generateOptions{
			Temperature: 0.2,
			NumCtx:      4096,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("grammar: encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("grammar: build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grammar: local model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("grammar: local model status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("grammar: decode generate response: %w", err)
	}

	res, err := parseModelJSON(gr.Response, transcript)
	if err != nil {
		// The server answered but the model rambled. Pass the transcript
		// through with mild punctuation cleanup rather than failing the tier.
		slog.Warn("grammar: local model output unusable, passing transcript through",
			"stage", "grammar", "strategy", s.Name(), "error", err)
		return passthroughResult(transcript), nil
	}
	if res.Correction == transcript {
		res.Correction = punctuate(res.Correction)
	}
	return res, nil
}

// passthroughResult wraps an uncorrected transcript in a usable result.
func passthroughResult(transcript string) *Result {
	return &Result{
		Correction: punctuate(transcript),
		Score:      localPassthroughScore,
		Fluency:    localPassthroughFluency,
		Mistakes:   []string{},
	}
}

// punctuate appends a period to text unless it already ends with sentence
// punctuation.
func punctuate(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return t
	}
	switch t[len(t)-1] {
	case '.', '!', '?':
		return t
	}
	return t + "."
}
