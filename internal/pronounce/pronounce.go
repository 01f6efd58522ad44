// Package pronounce implements the pronunciation proxy scorer.
//
// The score is a deterministic lexical-overlap heuristic between the
// hypothesis (what the learner said, per the transcript) and the reference
// (the corrected sentence). No audio signal is used — this is a deliberate
// textual proxy, not acoustic analysis, chosen for stable and explainable
// scoring. A forced-alignment model would replace it in a system that needs
// real phoneme-level accuracy.
package pronounce

import (
	"math"
	"strings"
)

// Score rates how much of the reference vocabulary the hypothesis covers,
// mapped onto [50, 95] so that even a fully disjoint answer keeps a neutral
// baseline. Returns 50 exactly when either token set is empty. The result is
// always within [0, 100].
func Score(hypothesis, reference string) int {
	hyp := tokenSet(hypothesis)
	ref := tokenSet(reference)
	if len(hyp) == 0 || len(ref) == 0 {
		return 50
	}

	overlap := 0
	for tok := range hyp {
		if _, ok := ref[tok]; ok {
			overlap++
		}
	}

	ratio := float64(overlap) / math.Max(1, float64(len(ref)))
	score := int(math.Round(50 + ratio*45))
	return clamp(score)
}

// tokenSet lowercases s, splits on whitespace, and strips trailing
// punctuation from each token.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		tok = strings.ToLower(strings.Trim(tok, ".,!?;:"))
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
