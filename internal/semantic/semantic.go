// Package semantic implements the relevance scorer between a practice
// question and a learner's answer.
//
// The primary path embeds both strings and remaps their cosine similarity
// from [-1, 1] onto [0, 100]. When no embeddings provider is configured, or
// the provider call fails, the scorer degrades to Jaccard word overlap scaled
// directly to [0, 100]. Fast mode bypasses embeddings entirely with a
// keyword-presence heuristic.
package semantic

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/fluentive/fluentive/pkg/provider/embeddings"
)

// Fast-mode heuristic scores: a transcript touching any of the first three
// question words counts as loosely on-topic.
const (
	fastHit  = 75
	fastMiss = 65
)

// Scorer rates question/answer relatedness. A nil provider is valid and
// routes every call through the lexical fallback.
type Scorer struct {
	provider embeddings.Provider
}

// NewScorer returns a Scorer backed by provider. provider may be nil.
func NewScorer(provider embeddings.Provider) *Scorer {
	return &Scorer{provider: provider}
}

// Score returns the relatedness of answer to question in [0, 100].
// Either input being empty yields 0 on both branches.
func (s *Scorer) Score(ctx context.Context, question, answer string) int {
	if question == "" || answer == "" {
		return 0
	}

	if s.provider == nil {
		return jaccardScore(question, answer)
	}

	qv, err := s.provider.Embed(ctx, question)
	if err != nil {
		slog.Warn("semantic: embedding failed, using lexical fallback", "stage", "semantic", "error", err)
		return jaccardScore(question, answer)
	}
	av, err := s.provider.Embed(ctx, answer)
	if err != nil {
		slog.Warn("semantic: embedding failed, using lexical fallback", "stage", "semantic", "error", err)
		return jaccardScore(question, answer)
	}

	sim := cosine(qv, av)
	score := int(math.Round(((sim + 1) / 2) * 100))
	return clamp(score)
}

// FastScore is the fast-mode substitute: 75 when any of the first three
// question words appears in the lowercased transcript, else 65. It never
// touches the embeddings backend.
func FastScore(question, transcript string) int {
	lower := strings.ToLower(transcript)
	words := strings.Fields(strings.ToLower(question))
	if len(words) > 3 {
		words = words[:3]
	}
	for _, w := range words {
		if w != "" && strings.Contains(lower, w) {
			return fastHit
		}
	}
	return fastMiss
}

// jaccardScore scales the Jaccard overlap of lowercased word sets directly to
// [0, 100]. Identical texts score 100; disjoint texts score 0.
func jaccardScore(question, answer string) int {
	qs := wordSet(question)
	as := wordSet(answer)

	overlap := 0
	for w := range qs {
		if _, ok := as[w]; ok {
			overlap++
		}
	}
	union := len(qs) + len(as) - overlap
	if union == 0 {
		union = 1
	}
	return clamp(int(math.Round(100 * float64(overlap) / float64(union))))
}

// cosine computes cosine similarity between two vectors. Mismatched lengths
// are compared over the shorter prefix; a zero-magnitude vector yields 0.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
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
