// Package store persists users, practice sessions, and evaluated attempts.
//
// [Postgres] is the production implementation; [Memory] backs tests and
// single-binary demo deployments where no database is available.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when a unique constraint (such as a username)
// would be violated.
var ErrDuplicate = errors.New("store: already exists")

// User is a registered learner.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Scores is the four-dimensional result of one evaluated attempt.
type Scores struct {
	Grammar       int `json:"grammar"`
	Fluency       int `json:"fluency"`
	Semantic      int `json:"semantic"`
	Pronunciation int `json:"pronunciation"`
}

// Attempt is one evaluated answer within a session.
type Attempt struct {
	ID         string
	SessionID  string
	Question   string
	Transcript string
	Correction string
	Scores     Scores
	Mistakes   []string
	Feedback   string
	Blocked    bool
	CreatedAt  time.Time
}

// Aggregates holds a finished session's averaged scores, each rounded to two
// decimals, and the final score derived from them.
type Aggregates struct {
	Grammar       float64 `json:"grammar"`
	Fluency       float64 `json:"fluency"`
	Semantic      float64 `json:"semantic"`
	Pronunciation float64 `json:"pronunciation"`
	Final         float64 `json:"final"`
}

// Session is one practice run. EndedAt is zero while the session is open.
type Session struct {
	ID         string
	UserID     string
	StartedAt  time.Time
	EndedAt    time.Time
	Summary    string
	Aggregates Aggregates
}

// Ended reports whether the session has been closed.
func (s *Session) Ended() bool { return !s.EndedAt.IsZero() }

// Store is the persistence boundary for the service.
type Store interface {
	// CreateUser inserts u. Returns [ErrDuplicate] when the username is taken.
	CreateUser(ctx context.Context, u *User) error
	// UserByName looks a user up by username.
	UserByName(ctx context.Context, username string) (*User, error)
	// UserByID looks a user up by ID.
	UserByID(ctx context.Context, id string) (*User, error)

	// CreateSession inserts an open session.
	CreateSession(ctx context.Context, s *Session) error
	// SessionByID looks a session up by ID.
	SessionByID(ctx context.Context, id string) (*Session, error)
	// SessionsByUser returns a user's sessions, most recently started first.
	SessionsByUser(ctx context.Context, userID string) ([]*Session, error)
	// EndSession closes a session, recording when it ended, its aggregates,
	// and its summary text.
	EndSession(ctx context.Context, id string, endedAt time.Time, agg Aggregates, summary string) error

	// AddAttempt appends an evaluated attempt to its session.
	AddAttempt(ctx context.Context, a *Attempt) error
	// AttemptsBySession returns a session's attempts in insertion order.
	AttemptsBySession(ctx context.Context, sessionID string) ([]*Attempt, error)
}
