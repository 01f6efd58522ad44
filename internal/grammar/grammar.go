// Package grammar produces a corrected rendering of a learner transcript
// together with a grammar score, a fluency score, and a list of mistake
// labels.
//
// Correction is organized as a [Chain] of [Strategy] implementations tried in
// order. A cloud LLM sits first when credentials are configured, a local
// model next, and the deterministic rule strategy last. Each strategy runs
// behind its own circuit breaker, so a backend that keeps failing is skipped
// outright until it recovers. The rule strategy never fails, which means a
// fully assembled chain always yields a result.
package grammar

import (
	"context"
	"fmt"
	"time"

	"github.com/fluentive/fluentive/internal/moderation"
	"github.com/fluentive/fluentive/internal/resilience"
)

// Result is the outcome of one correction attempt.
type Result struct {
	Correction string   `json:"correction"`
	Score      int      `json:"score"`
	Fluency    int      `json:"fluency"`
	Mistakes   []string `json:"mistakes"`
}

// Strategy is one way of correcting a transcript. Implementations return an
// error to hand control to the next strategy in the chain.
type Strategy interface {
	// Correct evaluates transcript and returns a correction result.
	Correct(ctx context.Context, transcript string) (*Result, error)
	// Name identifies the strategy in logs.
	Name() string
}

// Chain tries strategies in order until one succeeds, then re-screens the
// winning correction so a model cannot smuggle blocked language back into
// the response.
type Chain struct {
	group *resilience.FallbackGroup[Strategy]
}

// NewChain returns a Chain over strategies, tried front to back.
func NewChain(strategies ...Strategy) *Chain {
	group := resilience.NewFallbackGroup[Strategy](resilience.BreakerConfig{
		MaxFailures:  3,
		ResetTimeout: 30 * time.Second,
	})
	for _, s := range strategies {
		group.Add(s.Name(), s)
	}
	return &Chain{group: group}
}

// Correct runs the chain for transcript.
func (c *Chain) Correct(ctx context.Context, transcript string) (*Result, error) {
	res, err := resilience.ExecuteWithResult(c.group, func(_ string, s Strategy) (*Result, error) {
		return s.Correct(ctx, transcript)
	})
	if err != nil {
		return nil, fmt.Errorf("grammar: correct: %w", err)
	}
	return screen(res), nil
}

// screen replaces a correction that itself contains blocked language with the
// standard refusal.
func screen(res *Result) *Result {
	if moderation.IsAllowed(res.Correction) {
		return res
	}
	return &Result{
		Correction: moderation.RefusalSentence,
		Score:      0,
		Fluency:    0,
		Mistakes:   []string{moderation.BlockedMistake},
	}
}
