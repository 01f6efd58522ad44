package evaluate

import (
	"context"
	"errors"
	"testing"

	"github.com/fluentive/fluentive/internal/grammar"
	"github.com/fluentive/fluentive/internal/moderation"
	"github.com/fluentive/fluentive/internal/semantic"
	"github.com/fluentive/fluentive/internal/store"
	"github.com/fluentive/fluentive/internal/synthesis"
	"github.com/fluentive/fluentive/internal/transcript"
	mockllm "github.com/fluentive/fluentive/pkg/provider/llm/mock"
	mockstt "github.com/fluentive/fluentive/pkg/provider/stt/mock"
)

func newPipeline(opts ...Option) *Pipeline {
	return New(
		transcript.NewResolver(&mockstt.Transcriber{}),
		grammar.NewChain(grammar.NewRuleStrategy()),
		semantic.NewScorer(nil),
		opts...,
	)
}

func TestEvaluateTextInput(t *testing.T) {
	p := newPipeline()
	res, err := p.Evaluate(context.Background(), Request{
		Question: "what do you do",
		Input:    transcript.Input{Text: "I am student"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Transcript != "I am student" {
		t.Fatalf("Transcript = %q, want verbatim input", res.Transcript)
	}
	if res.Correction != "I am a student" {
		t.Fatalf("Correction = %q, want rule correction", res.Correction)
	}
	if res.Scores.Grammar != 75 || res.Scores.Fluency != 72 {
		t.Fatalf("grammar/fluency = %d/%d, want 75/72", res.Scores.Grammar, res.Scores.Fluency)
	}
	if res.Scores.Semantic == 0 {
		t.Fatal("Semantic = 0, want lexical overlap score")
	}
	if res.Scores.Pronunciation == 0 {
		t.Fatal("Pronunciation = 0, want proxy score")
	}
	if res.Blocked {
		t.Fatal("Blocked = true for clean input")
	}
	if res.Feedback == "" {
		t.Fatal("Feedback is empty")
	}
}

func TestEvaluateBlockedInputShortCircuits(t *testing.T) {
	llmMock := &mockllm.Provider{CompleteErr: errors.New("must not be called")}
	p := New(
		transcript.NewResolver(&mockstt.Transcriber{}),
		grammar.NewChain(grammar.NewLLMStrategy(llmMock)),
		semantic.NewScorer(nil),
	)

	res, err := p.Evaluate(context.Background(), Request{
		Question: "describe your day",
		Input:    transcript.Input{Text: "it was a damn mess"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !res.Blocked {
		t.Fatal("Blocked = false, want true")
	}
	if res.Correction != moderation.RefusalSentence || res.Feedback != moderation.RefusalSentence {
		t.Fatalf("correction/feedback = %q/%q, want refusal sentence", res.Correction, res.Feedback)
	}
	if res.Scores != (store.Scores{}) {
		t.Fatalf("Scores = %+v, want all zero", res.Scores)
	}
	if len(llmMock.Calls()) != 0 {
		t.Fatal("LLM was called for blocked input")
	}
}

func TestEvaluateFastMode(t *testing.T) {
	p := newPipeline(WithFastMode())
	res, err := p.Evaluate(context.Background(), Request{
		Question: "what is your hobby",
		Input:    transcript.Input{Text: "my hobby is reading"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Scores.Semantic != 75 {
		t.Fatalf("Semantic = %d, want fast-mode hit 75", res.Scores.Semantic)
	}
	if res.Scores.Pronunciation != fastPronunciation {
		t.Fatalf("Pronunciation = %d, want fixed %d", res.Scores.Pronunciation, fastPronunciation)
	}
}

func TestEvaluateStaticMode(t *testing.T) {
	p := newPipeline(WithStaticScores(store.Scores{}))
	res, err := p.Evaluate(context.Background(), Request{
		Question: "anything",
		Input:    transcript.Input{Text: "I am student"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Scores != DefaultStaticScores {
		t.Fatalf("Scores = %+v, want %+v", res.Scores, DefaultStaticScores)
	}
	if res.Correction != "I am student" {
		t.Fatalf("Correction = %q, want transcript untouched in static mode", res.Correction)
	}
}

func TestEvaluateWithSpeech(t *testing.T) {
	p := newPipeline(WithSynthesizer(synthesis.New(nil)))
	res, err := p.Evaluate(context.Background(), Request{
		Question: "what is your hobby",
		Input:    transcript.Input{Text: "I like reading"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Speech == nil {
		t.Fatal("Speech = nil, want fallback clip")
	}
	if !res.Speech.Fallback {
		t.Fatal("Speech.Fallback = false, want true with no engine")
	}
}

func TestEvaluateSkipSpeech(t *testing.T) {
	p := newPipeline(WithSynthesizer(synthesis.New(nil)))
	res, err := p.Evaluate(context.Background(), Request{
		Question:   "what is your hobby",
		Input:      transcript.Input{Text: "I like reading"},
		SkipSpeech: true,
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Speech != nil {
		t.Fatal("Speech != nil, want none when skipped")
	}
}

func TestEvaluateNoInput(t *testing.T) {
	p := newPipeline()
	if _, err := p.Evaluate(context.Background(), Request{Question: "q"}); !errors.Is(err, transcript.ErrNoInput) {
		t.Fatalf("Evaluate() error = %v, want ErrNoInput", err)
	}
}
