// Package feedback turns scores into learner-facing text.
//
// Per-attempt feedback is a fixed template chosen by grammar score, so the
// line a learner sees right after speaking never depends on a model being
// reachable. Session summaries go the other way: a narrative paragraph is
// requested from an LLM over the session's aggregate scores and recurring
// mistakes, with canned paragraphs as the offline fallback.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/fluentive/fluentive/pkg/provider/llm"
)

// Per-attempt template lines, keyed off the grammar score.
const (
	praiseLine    = "Great job! That sounds good."
	encourageLine = "Good attempt—you can improve."
	improveLine   = "Let's improve this."
)

// DefaultNarrativeTimeout bounds the summary LLM call. Session summaries are
// shown on a results screen, so a slow model degrades to the canned text
// rather than holding the response.
const DefaultNarrativeTimeout = 10 * time.Second

// mistakeSimilarity is the Jaro-Winkler threshold above which two mistake
// labels are treated as the same underlying error.
const mistakeSimilarity = 0.92

// AttemptLine returns the short feedback shown immediately after one attempt.
// When the correction differs from what the learner said, the line ends with
// the corrected phrasing so the learner can retry it.
func AttemptLine(transcript, correction string, score int, mistakes []string) string {
	var line string
	switch {
	case score >= 85 && len(mistakes) == 0:
		line = praiseLine
	case score >= 70:
		line = encourageLine
	default:
		line = improveLine
	}
	if c := strings.TrimSpace(correction); c != "" && c != strings.TrimSpace(transcript) {
		line += " Try this: " + c
	}
	return line
}

// SessionStats is the aggregate input to a session narrative.
type SessionStats struct {
	Attempts     int
	AvgGrammar   float64
	AvgFluency   float64
	AvgSemantic  float64
	AvgPronounce float64
	FinalScore   float64
	Mistakes     []string
}

// Narrator produces session summary paragraphs. A nil provider is valid and
// always yields the canned fallback.
type Narrator struct {
	provider llm.Provider
	timeout  time.Duration
}

// NarratorOption configures a [Narrator].
type NarratorOption func(*Narrator)

// WithNarrativeTimeout overrides [DefaultNarrativeTimeout].
func WithNarrativeTimeout(d time.Duration) NarratorOption {
	return func(n *Narrator) { n.timeout = d }
}

// NewNarrator returns a Narrator backed by provider. provider may be nil.
func NewNarrator(provider llm.Provider, opts ...NarratorOption) *Narrator {
	n := &Narrator{provider: provider, timeout: DefaultNarrativeTimeout}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

const narrativeSystemPrompt = `You are an encouraging English tutor writing a
short end-of-session summary for a learner. Write one or two plain sentences:
name what went well, then the single most useful thing to practice next.
No lists, no markdown, no scores repeated back verbatim.`

// Summarize returns the narrative paragraph for a finished session.
func (n *Narrator) Summarize(ctx context.Context, stats SessionStats) string {
	if n.provider == nil {
		return cannedSummary(stats)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	mistakes := DedupeMistakes(stats.Mistakes)
	prompt := fmt.Sprintf(
		"The learner finished %d attempts. Average scores out of 100: grammar %.0f, fluency %.0f, relevance %.0f, pronunciation %.0f. Overall %.0f.",
		stats.Attempts, stats.AvgGrammar, stats.AvgFluency, stats.AvgSemantic, stats.AvgPronounce, stats.FinalScore)
	if len(mistakes) > 0 {
		prompt += " Recurring mistakes: " + strings.Join(mistakes, "; ") + "."
	}

	resp, err := n.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: narrativeSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		slog.Warn("feedback: narrative generation failed, using canned summary",
			"stage", "feedback", "error", err)
		return cannedSummary(stats)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return cannedSummary(stats)
	}
	return text
}

// cannedSummary picks between two fixed paragraphs on the session's final
// score.
func cannedSummary(stats SessionStats) string {
	if stats.FinalScore >= 75 {
		return "Strong session! Your answers were clear and mostly accurate. Keep practicing to make your phrasing even more natural."
	}
	return "Good effort this session. Focus on the corrections you received and try the same questions again — repetition is what makes them stick."
}

// DedupeMistakes collapses near-duplicate mistake labels so the narrative
// prompt and the session record list each underlying error once. Order of
// first appearance is preserved.
func DedupeMistakes(mistakes []string) []string {
	kept := make([]string, 0, len(mistakes))
	for _, m := range mistakes {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		dup := false
		for _, k := range kept {
			if sim := matchr.JaroWinkler(strings.ToLower(m), strings.ToLower(k), false); sim >= mistakeSimilarity {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, m)
		}
	}
	return kept
}
