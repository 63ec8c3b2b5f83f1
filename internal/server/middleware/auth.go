// Package middleware provides HTTP middleware for authenticating queue push
// callers.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

const subjectKey ContextKey = "pushSubject"

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (CallerGetter, error)
}

// CallerGetter exposes the authenticated caller identity.
type CallerGetter interface {
	Caller() string
}

// PushAuth rejects requests without a valid bearer token and stores the
// token subject in the request context.
func PushAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.Fields(r.Header.Get("Authorization"))
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, claims.Caller())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Subject returns the authenticated push caller, if any.
func Subject(r *http.Request) (string, bool) {
	subject, ok := r.Context().Value(subjectKey).(string)
	return subject, ok
}
