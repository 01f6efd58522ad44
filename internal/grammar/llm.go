package grammar

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fluentive/fluentive/pkg/provider/llm"
)

// DefaultLLMTimeout bounds one cloud model completion.
const DefaultLLMTimeout = 12 * time.Second

// Defaults applied field by field when the model's JSON omits or mangles a
// value. The correction default is the transcript itself.
const (
	defaultLLMScore   = 80
	defaultLLMFluency = 75
)

const llmSystemPrompt = `You are an English teacher grading a learner's spoken answer.
Respond with a single JSON object and nothing else. The object has exactly
these keys:
  "correction": the answer rewritten in correct, natural English
  "score": grammar quality from 0 to 100
  "fluency": fluency from 0 to 100
  "mistakes": an array of short mistake descriptions, empty if none
Do not add commentary, markdown, or any text outside the JSON object.`

// LLMStrategy asks a chat model for a structured correction.
type LLMStrategy struct {
	provider llm.Provider
	timeout  time.Duration
}

var _ Strategy = (*LLMStrategy)(nil)

// LLMOption configures an [LLMStrategy].
type LLMOption func(*LLMStrategy)

// WithLLMTimeout overrides [DefaultLLMTimeout].
func WithLLMTimeout(d time.Duration) LLMOption {
	return func(s *LLMStrategy) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewLLMStrategy returns a strategy backed by provider.
func NewLLMStrategy(provider llm.Provider, opts ...LLMOption) *LLMStrategy {
	s := &LLMStrategy{provider: provider, timeout: DefaultLLMTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LLMStrategy) Name() string { return "llm" }

func (s *LLMStrategy) Correct(ctx context.Context, transcript string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: llmSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Learner's answer: " + transcript},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("grammar: llm completion: %w", err)
	}
	res, err := parseModelJSON(resp.Content, transcript)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// parseModelJSON decodes a model response into a [Result], tolerating code
// fences and stray prose around the JSON object. Missing fields fall back to
// per-field defaults rather than failing the whole response.
func parseModelJSON(raw, transcript string) (*Result, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return nil, fmt.Errorf("grammar: no JSON object in model response")
	}

	var loose struct {
		Correction *string  `json:"correction"`
		Score      *float64 `json:"score"`
		Fluency    *float64 `json:"fluency"`
		Mistakes   []string `json:"mistakes"`
	}
	if err := json.Unmarshal([]byte(body), &loose); err != nil {
		return nil, fmt.Errorf("grammar: decode model response: %w", err)
	}

	res := &Result{
		Correction: transcript,
		Score:      defaultLLMScore,
		Fluency:    defaultLLMFluency,
		Mistakes:   []string{},
	}
	if loose.Correction != nil && strings.TrimSpace(*loose.Correction) != "" {
		res.Correction = strings.TrimSpace(*loose.Correction)
	}
	if loose.Score != nil {
		res.Score = clampScore(int(*loose.Score))
	}
	if loose.Fluency != nil {
		res.Fluency = clampScore(int(*loose.Fluency))
	}
	if loose.Mistakes != nil {
		res.Mistakes = loose.Mistakes
	}
	return res, nil
}

// extractJSONObject strips markdown code fences and returns the outermost
// {...} span of raw, or "" when none exists.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
