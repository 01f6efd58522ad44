package semantic

import (
	"context"
	"errors"
	"testing"

	mockembed "github.com/fluentive/fluentive/pkg/provider/embeddings/mock"
)

func TestScoreEmbeddings(t *testing.T) {
	tests := []struct {
		name     string
		question string
		answer   string
		vectors  map[string][]float32
		want     int
	}{
		{
			name:     "identical vectors map to 100",
			question: "what is your hobby",
			answer:   "what is your hobby",
			vectors: map[string][]float32{
				"what is your hobby": {1, 0, 0},
			},
			want: 100,
		},
		{
			name:     "orthogonal vectors map to 50",
			question: "what is your hobby",
			answer:   "the weather is cold",
			vectors: map[string][]float32{
				"what is your hobby":  {1, 0, 0},
				"the weather is cold": {0, 1, 0},
			},
			want: 50,
		},
		{
			name:     "opposite vectors map to 0",
			question: "what is your hobby",
			answer:   "the weather is cold",
			vectors: map[string][]float32{
				"what is your hobby":  {1, 0, 0},
				"the weather is cold": {-1, 0, 0},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(&mockembed.Provider{Vectors: tt.vectors})
			got := s.Score(context.Background(), tt.question, tt.answer)
			if got != tt.want {
				t.Fatalf("Score(%q, %q) = %d, want %d", tt.question, tt.answer, got, tt.want)
			}
		})
	}
}

func TestScoreEmptyInputs(t *testing.T) {
	s := NewScorer(nil)
	if got := s.Score(context.Background(), "", "an answer"); got != 0 {
		t.Fatalf("Score with empty question = %d, want 0", got)
	}
	if got := s.Score(context.Background(), "a question", ""); got != 0 {
		t.Fatalf("Score with empty answer = %d, want 0", got)
	}
}

func TestScoreLexicalFallback(t *testing.T) {
	s := NewScorer(nil)

	if got := s.Score(context.Background(), "i like green tea", "i like green tea"); got != 100 {
		t.Fatalf("identical texts = %d, want 100", got)
	}
	if got := s.Score(context.Background(), "alpha beta", "gamma delta"); got != 0 {
		t.Fatalf("disjoint texts = %d, want 0", got)
	}
	// overlap {like}, union {i, like, tea, you, coffee} -> 20
	if got := s.Score(context.Background(), "i like tea", "you like coffee"); got != 20 {
		t.Fatalf("partial overlap = %d, want 20", got)
	}
}

func TestScoreEmbedErrorFallsBack(t *testing.T) {
	s := NewScorer(&mockembed.Provider{Err: errors.New("backend down")})
	got := s.Score(context.Background(), "i like tea", "i like tea")
	if got != 100 {
		t.Fatalf("Score after embed error = %d, want lexical 100", got)
	}
}

func TestFastScore(t *testing.T) {
	tests := []struct {
		name       string
		question   string
		transcript string
		want       int
	}{
		{"keyword present", "what is your hobby", "my hobby is what I love", fastHit},
		{"keyword from first three only", "tell me about hobbies", "hobbies are fun", fastMiss},
		{"no keyword", "what is your hobby", "the weather today", fastMiss},
		{"case insensitive", "What IS your hobby", "it IS nice", fastHit},
		{"empty transcript", "what is your hobby", "", fastMiss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FastScore(tt.question, tt.transcript); got != tt.want {
				t.Fatalf("FastScore(%q, %q) = %d, want %d", tt.question, tt.transcript, got, tt.want)
			}
		})
	}
}
