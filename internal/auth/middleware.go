package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fluentive/fluentive/internal/store"
)

// contextKey is a private type for request-scoped values set by this package.
type contextKey struct{}

// UserFrom returns the authenticated user stored in ctx by [Service.Middleware],
// or nil when the request was not authenticated.
func UserFrom(ctx context.Context) *store.User {
	u, _ := ctx.Value(contextKey{}).(*store.User)
	return u
}

// Middleware rejects requests without a valid bearer token and attaches the
// resolved user to the request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		user, err := s.Verify(r.Context(), token)
		if err != nil {
			unauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
