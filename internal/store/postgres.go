package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface assertion.
var _ Store = (*Postgres)(nil)

// Postgres is the production [Store] backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a Postgres store over pool. The caller owns the pool's
// lifecycle.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the schema when it does not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id            UUID PRIMARY KEY,
	user_id       UUID NOT NULL REFERENCES users(id),
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ,
	summary       TEXT NOT NULL DEFAULT '',
	grammar       DOUBLE PRECISION NOT NULL DEFAULT 0,
	fluency       DOUBLE PRECISION NOT NULL DEFAULT 0,
	semantic      DOUBLE PRECISION NOT NULL DEFAULT 0,
	pronunciation DOUBLE PRECISION NOT NULL DEFAULT 0,
	final         DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS attempts (
	id            UUID PRIMARY KEY,
	session_id    UUID NOT NULL REFERENCES sessions(id),
	question      TEXT NOT NULL,
	transcript    TEXT NOT NULL,
	correction    TEXT NOT NULL,
	grammar       INT NOT NULL,
	fluency       INT NOT NULL,
	semantic      INT NOT NULL,
	pronunciation INT NOT NULL,
	mistakes      TEXT[] NOT NULL DEFAULT '{}',
	feedback      TEXT NOT NULL,
	blocked       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS attempts_session_idx ON attempts(session_id, created_at);
`)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (p *Postgres) CreateUser(ctx context.Context, u *User) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO users(id, username, password_hash, created_at) VALUES($1, $2, $3, $4)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("store: insert user: %w", err)
	}
	return nil
}

func (p *Postgres) UserByName(ctx context.Context, username string) (*User, error) {
	return p.scanUser(p.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`, username))
}

func (p *Postgres) UserByID(ctx context.Context, id string) (*User, error) {
	return p.scanUser(p.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = $1`, id))
}

func (p *Postgres) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load user: %w", err)
	}
	return &u, nil
}

func (p *Postgres) CreateSession(ctx context.Context, s *Session) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sessions(id, user_id, started_at) VALUES($1, $2, $3)`,
		s.ID, s.UserID, s.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("store: insert session: %w", err)
	}
	return nil
}

func (p *Postgres) SessionByID(ctx context.Context, id string) (*Session, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, user_id, started_at, ended_at, summary,
		grammar, fluency, semantic, pronunciation, final FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load session: %w", err)
	}
	return s, nil
}

func (p *Postgres) SessionsByUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, user_id, started_at, ended_at, summary,
		grammar, fluency, semantic, pronunciation, final FROM sessions
		WHERE user_id = $1 ORDER BY started_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: load sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate sessions: %w", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var ended *time.Time
	err := row.Scan(&s.ID, &s.UserID, &s.StartedAt, &ended, &s.Summary,
		&s.Aggregates.Grammar, &s.Aggregates.Fluency, &s.Aggregates.Semantic,
		&s.Aggregates.Pronunciation, &s.Aggregates.Final)
	if err != nil {
		return nil, err
	}
	if ended != nil {
		s.EndedAt = *ended
	}
	return &s, nil
}

func (p *Postgres) EndSession(ctx context.Context, id string, endedAt time.Time, agg Aggregates, summary string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE sessions SET ended_at = $2, summary = $3,
		grammar = $4, fluency = $5, semantic = $6, pronunciation = $7, final = $8
		WHERE id = $1`,
		id, endedAt, summary, agg.Grammar, agg.Fluency, agg.Semantic, agg.Pronunciation, agg.Final)
	if err != nil {
		return fmt.Errorf("store: end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AddAttempt(ctx context.Context, a *Attempt) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO attempts(id, session_id, question, transcript,
		correction, grammar, fluency, semantic, pronunciation, mistakes, feedback, blocked, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.SessionID, a.Question, a.Transcript, a.Correction,
		a.Scores.Grammar, a.Scores.Fluency, a.Scores.Semantic, a.Scores.Pronunciation,
		a.Mistakes, a.Feedback, a.Blocked, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert attempt: %w", err)
	}
	return nil
}

func (p *Postgres) AttemptsBySession(ctx context.Context, sessionID string) ([]*Attempt, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, session_id, question, transcript, correction,
		grammar, fluency, semantic, pronunciation, mistakes, feedback, blocked, created_at
		FROM attempts WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: load attempts: %w", err)
	}
	defer rows.Close()

	var out []*Attempt
	for rows.Next() {
		var a Attempt
		err := rows.Scan(&a.ID, &a.SessionID, &a.Question, &a.Transcript, &a.Correction,
			&a.Scores.Grammar, &a.Scores.Fluency, &a.Scores.Semantic, &a.Scores.Pronunciation,
			&a.Mistakes, &a.Feedback, &a.Blocked, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("store: scan attempt: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate attempts: %w", err)
	}
	return out, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
