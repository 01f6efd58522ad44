package grammar

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/fluentive/fluentive/internal/moderation"
	"github.com/fluentive/fluentive/pkg/provider/llm"
	mockllm "github.com/fluentive/fluentive/pkg/provider/llm/mock"
)

func TestRuleStrategy(t *testing.T) {
	tests := []struct {
		name           string
		transcript     string
		wantCorrection string
		wantScore      int
		wantMistakes   int
	}{
		{
			name:           "missing article",
			transcript:     "I am student",
			wantCorrection: "I am a student",
			wantScore:      ruleChangedScore,
			wantMistakes:   1,
		},
		{
			name:           "missing subject",
			transcript:     "I play football and like tennis",
			wantCorrection: "I play football and I like tennis",
			wantScore:      ruleChangedScore,
			wantMistakes:   1,
		},
		{
			name:           "nothing to fix",
			transcript:     "I am a teacher",
			wantCorrection: "I am a teacher",
			wantScore:      ruleUnchangedScore,
			wantMistakes:   0,
		},
	}

	s := NewRuleStrategy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Correct(context.Background(), tt.transcript)
			if err != nil {
				t.Fatalf("Correct() error = %v", err)
			}
			if res.Correction != tt.wantCorrection {
				t.Fatalf("Correction = %q, want %q", res.Correction, tt.wantCorrection)
			}
			if res.Score != tt.wantScore {
				t.Fatalf("Score = %d, want %d", res.Score, tt.wantScore)
			}
			if res.Fluency != ruleFluency {
				t.Fatalf("Fluency = %d, want %d", res.Fluency, ruleFluency)
			}
			if len(res.Mistakes) != tt.wantMistakes {
				t.Fatalf("len(Mistakes) = %d, want %d", len(res.Mistakes), tt.wantMistakes)
			}
		})
	}
}

func TestStaticStrategy(t *testing.T) {
	res, err := NewStaticStrategy().Correct(context.Background(), " I am student ")
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	if res.Correction != "I am student" {
		t.Fatalf("Correction = %q, want transcript unchanged", res.Correction)
	}
	if res.Score != staticScore || res.Fluency != staticFluency {
		t.Fatalf("scores = %d/%d, want %d/%d", res.Score, res.Fluency, staticScore, staticFluency)
	}
}

func TestLLMStrategyParsesJSON(t *testing.T) {
	provider := &mockllm.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "```json\n{\"correction\": \"I am a student.\", \"score\": 72, \"fluency\": 68, \"mistakes\": [\"missing article\"]}\n```",
		},
	}
	res, err := NewLLMStrategy(provider).Correct(context.Background(), "I am student")
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	want := &Result{
		Correction: "I am a student.",
		Score:      72,
		Fluency:    68,
		Mistakes:   []string{"missing article"},
	}
	if !reflect.DeepEqual(res, want) {
		t.Fatalf("Correct() = %+v, want %+v", res, want)
	}
	calls := provider.Calls()
	if n := len(calls); n != 1 {
		t.Fatalf("provider called %d times, want 1", n)
	}
	req := calls[0].Req
	if req.Temperature != 0.2 {
		t.Fatalf("request temperature = %v, want 0.2", req.Temperature)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Fatalf("request messages = %+v, want one user message", req.Messages)
	}
}

func TestLLMStrategyFieldDefaults(t *testing.T) {
	provider := &mockllm.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"score": 90}`},
	}
	res, err := NewLLMStrategy(provider).Correct(context.Background(), "I like tea")
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	if res.Correction != "I like tea" {
		t.Fatalf("Correction = %q, want transcript default", res.Correction)
	}
	if res.Score != 90 {
		t.Fatalf("Score = %d, want 90", res.Score)
	}
	if res.Fluency != defaultLLMFluency {
		t.Fatalf("Fluency = %d, want default %d", res.Fluency, defaultLLMFluency)
	}
	if len(res.Mistakes) != 0 {
		t.Fatalf("Mistakes = %v, want empty", res.Mistakes)
	}
}

func TestLLMStrategyRejectsNonJSON(t *testing.T) {
	provider := &mockllm.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Sure! Here is my assessment of the answer."},
	}
	if _, err := NewLLMStrategy(provider).Correct(context.Background(), "I like tea"); err == nil {
		t.Fatal("Correct() error = nil, want parse failure")
	}
}

func TestChainFallsThrough(t *testing.T) {
	provider := &mockllm.Provider{CompleteErr: errors.New("quota exhausted")}
	chain := NewChain(NewLLMStrategy(provider), NewRuleStrategy())

	res, err := chain.Correct(context.Background(), "I am student")
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	if res.Correction != "I am a student" {
		t.Fatalf("Correction = %q, want rule fallback output", res.Correction)
	}
	if res.Score != ruleChangedScore {
		t.Fatalf("Score = %d, want %d", res.Score, ruleChangedScore)
	}
}

func TestChainScreensBlockedCorrection(t *testing.T) {
	provider := &mockllm.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"correction": "That is a damn shame.", "score": 95, "fluency": 95, "mistakes": []}`,
		},
	}
	chain := NewChain(NewLLMStrategy(provider))

	res, err := chain.Correct(context.Background(), "that is damn shame")
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	if res.Correction != moderation.RefusalSentence {
		t.Fatalf("Correction = %q, want refusal sentence", res.Correction)
	}
	if res.Score != 0 || res.Fluency != 0 {
		t.Fatalf("scores = %d/%d, want 0/0", res.Score, res.Fluency)
	}
	if len(res.Mistakes) != 1 || res.Mistakes[0] != moderation.BlockedMistake {
		t.Fatalf("Mistakes = %v, want [%q]", res.Mistakes, moderation.BlockedMistake)
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding prose", `Here you go: {"a": 1} hope that helps`, `{"a": 1}`},
		{"no object", "no json here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSONObject(tt.raw); got != tt.want {
				t.Fatalf("extractJSONObject(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestPunctuate(t *testing.T) {
	if got := punctuate("I like tea"); got != "I like tea." {
		t.Fatalf("punctuate = %q, want trailing period", got)
	}
	if got := punctuate("I like tea!"); got != "I like tea!" {
		t.Fatalf("punctuate = %q, want unchanged", got)
	}
	if got := punctuate(""); got != "" {
		t.Fatalf("punctuate(\"\") = %q, want empty", got)
	}
}
