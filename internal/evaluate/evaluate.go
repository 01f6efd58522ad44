// Package evaluate orchestrates the scoring pipeline for one spoken answer.
//
// An evaluation runs transcript resolution, the moderation gate, grammar
// correction, semantic relevance, and pronunciation scoring, then composes
// the feedback line and optionally synthesizes it to speech. Blocked input
// short-circuits before any model-backed stage runs.
package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fluentive/fluentive/internal/feedback"
	"github.com/fluentive/fluentive/internal/grammar"
	"github.com/fluentive/fluentive/internal/moderation"
	"github.com/fluentive/fluentive/internal/observe"
	"github.com/fluentive/fluentive/internal/pronounce"
	"github.com/fluentive/fluentive/internal/semantic"
	"github.com/fluentive/fluentive/internal/store"
	"github.com/fluentive/fluentive/internal/synthesis"
	"github.com/fluentive/fluentive/internal/transcript"
)

// fastPronunciation is the fixed pronunciation score in fast mode, where the
// proxy comparison is skipped.
const fastPronunciation = 75

// DefaultStaticScores are returned for every attempt when the pipeline runs
// in static mode.
var DefaultStaticScores = store.Scores{Grammar: 85, Fluency: 80, Semantic: 80, Pronunciation: 75}

// Request is one answer to evaluate.
type Request struct {
	// Question is the prompt the learner answered.
	Question string
	// Input carries the learner's answer as text or audio.
	Input transcript.Input
	// SkipSpeech suppresses synthesis for this request.
	SkipSpeech bool
}

// Result is a fully evaluated attempt.
type Result struct {
	Transcript string            `json:"transcript"`
	Correction string            `json:"correction"`
	Scores     store.Scores      `json:"scores"`
	Mistakes   []string          `json:"mistakes"`
	Feedback   string            `json:"feedback"`
	Blocked    bool              `json:"blocked"`
	Speech     *synthesis.Speech `json:"speech,omitempty"`
}

// Pipeline wires the evaluation stages together.
type Pipeline struct {
	resolver *transcript.Resolver
	grammar  *grammar.Chain
	semantic *semantic.Scorer
	synth    *synthesis.Synthesizer
	metrics  *observe.Metrics

	fast   bool
	static bool
	fixed  store.Scores
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithFastMode skips the embedding and pronunciation stages in favor of
// cheap heuristics.
func WithFastMode() Option {
	return func(p *Pipeline) { p.fast = true }
}

// WithStaticScores makes every evaluation return fixed scores without
// touching any backend. Zero-value scores select [DefaultStaticScores].
func WithStaticScores(s store.Scores) Option {
	return func(p *Pipeline) {
		p.static = true
		if s == (store.Scores{}) {
			s = DefaultStaticScores
		}
		p.fixed = s
	}
}

// WithSynthesizer attaches speech synthesis for feedback text. Without one,
// results carry no speech.
func WithSynthesizer(s *synthesis.Synthesizer) Option {
	return func(p *Pipeline) { p.synth = s }
}

// WithMetrics attaches stage instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New assembles a Pipeline. resolver, chain, and scorer must be non-nil.
func New(resolver *transcript.Resolver, chain *grammar.Chain, scorer *semantic.Scorer, opts ...Option) *Pipeline {
	p := &Pipeline{resolver: resolver, grammar: chain, semantic: scorer}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate runs the full pipeline for req.
func (p *Pipeline) Evaluate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	text, err := p.resolver.Resolve(ctx, req.Input)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	p.observeStage(ctx, "transcript", start)

	if !moderation.IsAllowed(text) {
		slog.Info("evaluate: input blocked by moderation gate", "stage", "moderation")
		res := &Result{
			Transcript: text,
			Correction: moderation.RefusalSentence,
			Mistakes:   []string{moderation.BlockedMistake},
			Feedback:   moderation.RefusalSentence,
			Blocked:    true,
		}
		p.speak(ctx, req, res)
		return res, nil
	}

	res := &Result{Transcript: text}
	if p.static {
		res.Correction = text
		res.Scores = p.fixed
		res.Mistakes = []string{}
	} else if err := p.score(ctx, req.Question, text, res); err != nil {
		return nil, err
	}

	res.Feedback = feedback.AttemptLine(text, res.Correction, res.Scores.Grammar, res.Mistakes)
	p.speak(ctx, req, res)

	p.observeStage(ctx, "total", start)
	return res, nil
}

// score fills the four dimensions of res. Semantic and pronunciation run
// concurrently once the correction they depend on is available.
func (p *Pipeline) score(ctx context.Context, question, text string, res *Result) error {
	gstart := time.Now()
	corr, err := p.grammar.Correct(ctx, text)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	p.observeStage(ctx, "grammar", gstart)

	res.Correction = corr.Correction
	res.Scores.Grammar = corr.Score
	res.Scores.Fluency = corr.Fluency
	res.Mistakes = corr.Mistakes
	if res.Mistakes == nil {
		res.Mistakes = []string{}
	}

	if p.fast {
		res.Scores.Semantic = semantic.FastScore(question, text)
		res.Scores.Pronunciation = fastPronunciation
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sstart := time.Now()
		res.Scores.Semantic = p.semantic.Score(gctx, question, text)
		p.observeStage(gctx, "semantic", sstart)
		return nil
	})
	g.Go(func() error {
		pstart := time.Now()
		res.Scores.Pronunciation = pronounce.Score(text, corr.Correction)
		p.observeStage(gctx, "pronunciation", pstart)
		return nil
	})
	return g.Wait()
}

// speak attaches synthesized speech for the feedback line when synthesis is
// configured and wanted. Synthesis problems never fail an evaluation.
func (p *Pipeline) speak(ctx context.Context, req Request, res *Result) {
	if p.synth == nil || req.SkipSpeech {
		return
	}
	sstart := time.Now()
	speech, err := p.synth.Speak(ctx, res.Feedback)
	if err != nil {
		slog.Warn("evaluate: speech synthesis failed", "stage", "synthesis", "error", err)
		return
	}
	res.Speech = speech
	p.observeStage(ctx, "synthesis", sstart)
}

func (p *Pipeline) observeStage(ctx context.Context, stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveStage(ctx, stage, time.Since(start))
	}
}

// ToAttempt converts a result into its storable form.
func (r *Result) ToAttempt(question string) *store.Attempt {
	return &store.Attempt{
		Question:   question,
		Transcript: r.Transcript,
		Correction: r.Correction,
		Scores:     r.Scores,
		Mistakes:   r.Mistakes,
		Feedback:   r.Feedback,
		Blocked:    r.Blocked,
	}
}
