// Package middleware provides request authentication: bearer-token
// validation for the admin API and a persistent anonymous user identity
// for the chat API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey int

const (
	userIDKey contextKey = iota
	adminIDKey
)

const (
	userIDCookie = "user_id"
	cookieMaxAge = 365 * 24 * time.Hour
)

// UserID returns the anonymous chat user id attached by EnsureUserID.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// AdminID returns the authenticated admin subject attached by AdminAuth.
func AdminID(ctx context.Context) string {
	id, _ := ctx.Value(adminIDKey).(string)
	return id
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// AdminAuth validates the Authorization bearer token issued by the auth
// provider and attaches the subject to the request context.
func AdminAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				unauthorized(w, "no authorization header")
				return
			}

			tokenStr := strings.TrimPrefix(auth, "Bearer ")
			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims,
				func(t *jwt.Token) (any, error) { return []byte(secret), nil },
				jwt.WithValidMethods([]string{"HS256"}),
			)
			if err != nil || !token.Valid {
				unauthorized(w, "invalid token")
				return
			}

			subject, _ := claims["sub"].(string)
			if subject == "" {
				subject, _ = claims["user_id"].(string)
			}
			if subject == "" {
				unauthorized(w, "invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), adminIDKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EnsureUserID guarantees every chat request carries a stable anonymous
// user id: an existing cookie is reused, otherwise a fresh id is issued
// and set on the response.
func EnsureUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var userID string
		if c, err := r.Cookie(userIDCookie); err == nil && c.Value != "" {
			userID = c.Value
		} else {
			userID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     userIDCookie,
				Value:    userID,
				Path:     "/",
				Expires:  time.Now().Add(cookieMaxAge),
				HttpOnly: true,
				SameSite: http.SameSiteStrictMode,
			})
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
