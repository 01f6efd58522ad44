package session

import (
	"context"
	"testing"

	"github.com/fluentive/fluentive/internal/store"
)

func attempt(g, f, sem, p int) *store.Attempt {
	return &store.Attempt{Scores: store.Scores{Grammar: g, Fluency: f, Semantic: sem, Pronunciation: p}}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		attempts []*store.Attempt
		want     store.Aggregates
	}{
		{
			name:     "no attempts",
			attempts: nil,
			want:     store.Aggregates{},
		},
		{
			name:     "single attempt",
			attempts: []*store.Attempt{attempt(80, 70, 90, 60)},
			want:     store.Aggregates{Grammar: 80, Fluency: 70, Semantic: 90, Pronunciation: 60, Final: 75},
		},
		{
			name: "means round to two decimals",
			attempts: []*store.Attempt{
				attempt(80, 70, 90, 60),
				attempt(85, 72, 91, 61),
				attempt(81, 71, 89, 62),
			},
			want: store.Aggregates{Grammar: 82, Fluency: 71, Semantic: 90, Pronunciation: 61, Final: 76},
		},
		{
			name: "repeating decimal",
			attempts: []*store.Attempt{
				attempt(80, 80, 80, 80),
				attempt(80, 80, 80, 80),
				attempt(81, 81, 81, 81),
			},
			want: store.Aggregates{Grammar: 80.33, Fluency: 80.33, Semantic: 80.33, Pronunciation: 80.33, Final: 80.33},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Aggregate(tt.attempts); got != tt.want {
				t.Fatalf("Aggregate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewService(st, nil)

	sess, err := svc.Start(ctx, "u1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sess.ID == "" || sess.UserID != "u1" {
		t.Fatalf("Start() = %+v, want populated session for u1", sess)
	}

	a := attempt(85, 80, 78, 70)
	a.Mistakes = []string{"missing article"}
	if err := svc.Record(ctx, sess.ID, a); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if a.ID == "" || a.SessionID != sess.ID {
		t.Fatalf("Record() left attempt unpopulated: %+v", a)
	}

	ended, err := svc.End(ctx, sess.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if !ended.Ended() {
		t.Fatal("End() returned a session with zero EndedAt")
	}
	want := store.Aggregates{Grammar: 85, Fluency: 80, Semantic: 78, Pronunciation: 70, Final: 78.25}
	if ended.Aggregates != want {
		t.Fatalf("Aggregates = %+v, want %+v", ended.Aggregates, want)
	}
	if ended.Summary == "" {
		t.Fatal("End() produced no summary")
	}

	// recording into an ended session fails
	if err := svc.Record(ctx, sess.ID, attempt(1, 1, 1, 1)); err == nil {
		t.Fatal("Record() into ended session error = nil, want failure")
	}

	// ending twice returns the stored result unchanged
	again, err := svc.End(ctx, sess.ID)
	if err != nil {
		t.Fatalf("End() second call error = %v", err)
	}
	if again.Aggregates != want {
		t.Fatalf("second End() Aggregates = %+v, want unchanged %+v", again.Aggregates, want)
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewService(st, nil)

	if _, err := svc.Start(ctx, "u1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := svc.Start(ctx, "u1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := svc.Start(ctx, "u2"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got, err := svc.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("History() returned %d sessions, want 2", len(got))
	}
}
