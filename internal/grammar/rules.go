package grammar

import (
	"context"
	"strings"
)

// Scores from the deterministic tiers. The rule strategy rewards an answer it
// had nothing to fix with a higher score than one it rewrote.
const (
	ruleChangedScore   = 75
	ruleUnchangedScore = 90
	ruleFluency        = 72

	staticScore   = 85
	staticFluency = 80
)

// rewrite is one substring substitution with the mistake label it records.
type rewrite struct {
	from    string
	to      string
	mistake string
}

// rewrites covers the handful of constructions beginning learners misuse most
// often. The list is intentionally small: this tier exists so the service can
// answer with zero model backends, not to be a grammar checker.
var rewrites = []rewrite{
	{"I am student", "I am a student", "missing article before 'student'"},
	{"and like", "and I like", "missing subject after 'and'"},
}

// RuleStrategy is the terminal tier of a correction chain. It applies fixed
// substring rewrites and never returns an error.
type RuleStrategy struct{}

var _ Strategy = (*RuleStrategy)(nil)

// NewRuleStrategy returns the deterministic rule strategy.
func NewRuleStrategy() *RuleStrategy { return &RuleStrategy{} }

func (s *RuleStrategy) Name() string { return "rules" }

func (s *RuleStrategy) Correct(_ context.Context, transcript string) (*Result, error) {
	corrected := strings.TrimSpace(transcript)
	mistakes := []string{}
	for _, r := range rewrites {
		if strings.Contains(corrected, r.from) {
			corrected = strings.ReplaceAll(corrected, r.from, r.to)
			mistakes = append(mistakes, r.mistake)
		}
	}

	score := ruleUnchangedScore
	if len(mistakes) > 0 {
		score = ruleChangedScore
	}
	return &Result{
		Correction: corrected,
		Score:      score,
		Fluency:    ruleFluency,
		Mistakes:   mistakes,
	}, nil
}

// StaticStrategy returns fixed scores and an unmodified transcript. It backs
// the demo mode where no correction backend of any kind is wanted.
type StaticStrategy struct {
	Score   int
	Fluency int
}

var _ Strategy = (*StaticStrategy)(nil)

// NewStaticStrategy returns a static strategy with the default fixed scores.
func NewStaticStrategy() *StaticStrategy {
	return &StaticStrategy{Score: staticScore, Fluency: staticFluency}
}

func (s *StaticStrategy) Name() string { return "static" }

func (s *StaticStrategy) Correct(_ context.Context, transcript string) (*Result, error) {
	return &Result{
		Correction: strings.TrimSpace(transcript),
		Score:      s.Score,
		Fluency:    s.Fluency,
		Mistakes:   []string{},
	}, nil
}
