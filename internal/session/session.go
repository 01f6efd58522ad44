// Package session manages practice session lifecycle and score aggregation.
package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/fluentive/fluentive/internal/feedback"
	"github.com/fluentive/fluentive/internal/store"
)

// Service coordinates session state against the store and produces the
// end-of-session summary.
type Service struct {
	store    store.Store
	narrator *feedback.Narrator
}

// NewService returns a session service over st. narrator may be nil, which
// yields canned summaries.
func NewService(st store.Store, narrator *feedback.Narrator) *Service {
	if narrator == nil {
		narrator = feedback.NewNarrator(nil)
	}
	return &Service{store: st, narrator: narrator}
}

// Start opens a new session for userID.
func (s *Service) Start(ctx context.Context, userID string) (*store.Session, error) {
	sess := &store.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: time.Now().UTC(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("session: start: %w", err)
	}
	return sess, nil
}

// Record appends an evaluated attempt to the session sessionID. The attempt's
// ID and timestamp are filled in here.
func (s *Service) Record(ctx context.Context, sessionID string, a *store.Attempt) error {
	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session: record: %w", err)
	}
	if sess.Ended() {
		return fmt.Errorf("session: record: session %s already ended", sessionID)
	}
	a.ID = uuid.NewString()
	a.SessionID = sessionID
	a.CreatedAt = time.Now().UTC()
	if err := s.store.AddAttempt(ctx, a); err != nil {
		return fmt.Errorf("session: record: %w", err)
	}
	return nil
}

// End closes a session: aggregates its attempts, generates the summary
// paragraph, and persists both. Ending an already-ended session returns the
// stored result unchanged.
func (s *Service) End(ctx context.Context, sessionID string) (*store.Session, error) {
	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: end: %w", err)
	}
	if sess.Ended() {
		return sess, nil
	}

	attempts, err := s.store.AttemptsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: end: %w", err)
	}

	agg := Aggregate(attempts)
	summary := s.narrator.Summarize(ctx, feedback.SessionStats{
		Attempts:     len(attempts),
		AvgGrammar:   agg.Grammar,
		AvgFluency:   agg.Fluency,
		AvgSemantic:  agg.Semantic,
		AvgPronounce: agg.Pronunciation,
		FinalScore:   agg.Final,
		Mistakes:     collectMistakes(attempts),
	})

	endedAt := time.Now().UTC()
	if err := s.store.EndSession(ctx, sessionID, endedAt, agg, summary); err != nil {
		return nil, fmt.Errorf("session: end: %w", err)
	}

	sess.EndedAt = endedAt
	sess.Aggregates = agg
	sess.Summary = summary
	return sess, nil
}

// Session returns the session sessionID.
func (s *Service) Session(ctx context.Context, sessionID string) (*store.Session, error) {
	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}
	return sess, nil
}

// Attempts returns a session's attempts in the order they were recorded.
func (s *Service) Attempts(ctx context.Context, sessionID string) ([]*store.Attempt, error) {
	attempts, err := s.store.AttemptsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: attempts: %w", err)
	}
	return attempts, nil
}

// History returns a user's sessions, most recent first.
func (s *Service) History(ctx context.Context, userID string) ([]*store.Session, error) {
	sessions, err := s.store.SessionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("session: history: %w", err)
	}
	return sessions, nil
}

// Aggregate averages attempt scores per dimension, rounding each mean to two
// decimals. The final score is the mean of the four dimension means, rounded
// the same way. No attempts yields all zeros.
func Aggregate(attempts []*store.Attempt) store.Aggregates {
	if len(attempts) == 0 {
		return store.Aggregates{}
	}

	var g, f, sem, p float64
	for _, a := range attempts {
		g += float64(a.Scores.Grammar)
		f += float64(a.Scores.Fluency)
		sem += float64(a.Scores.Semantic)
		p += float64(a.Scores.Pronunciation)
	}
	n := float64(len(attempts))

	agg := store.Aggregates{
		Grammar:       round2(g / n),
		Fluency:       round2(f / n),
		Semantic:      round2(sem / n),
		Pronunciation: round2(p / n),
	}
	agg.Final = round2((agg.Grammar + agg.Fluency + agg.Semantic + agg.Pronunciation) / 4)
	return agg
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func collectMistakes(attempts []*store.Attempt) []string {
	var all []string
	for _, a := range attempts {
		all = append(all, a.Mistakes...)
	}
	return feedback.DedupeMistakes(all)
}
