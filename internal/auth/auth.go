// Package auth implements user registration, password login, and bearer
// token verification.
//
// Passwords are stored as bcrypt hashes. Tokens are HS256-signed JWTs
// carrying the user ID, valid for 30 days.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fluentive/fluentive/internal/store"
)

// TokenTTL is how long issued tokens remain valid.
const TokenTTL = 30 * 24 * time.Hour

// ErrInvalidCredentials is returned on login with a wrong username or
// password. The two cases are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// ErrInvalidToken is returned when a presented token cannot be verified.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the JWT payload for issued tokens.
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Service issues and verifies tokens against the user store.
type Service struct {
	store  store.Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService returns an auth service signing with secret.
func NewService(st store.Store, secret []byte) *Service {
	return &Service{store: st, secret: secret, ttl: TokenTTL, now: time.Now}
}

// Register creates a new user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, password string) (*store.User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("auth: register: username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	u := &store.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("auth: register: %w", err)
	}
	return u, nil
}

// Login verifies the password and returns a signed token for the user.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.store.UserByName(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("auth: login: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return s.issue(u.ID)
}

// issue signs a token for userID.
func (s *Service) issue(userID string) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return token, nil
}

// Verify parses and validates a token, returning the user it belongs to.
func (s *Service) Verify(ctx context.Context, tokenString string) (*store.User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	u, err := s.store.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("auth: verify: %w", err)
	}
	return u, nil
}
