// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/google/uuid"

	"novelpress/internal/models"
	"novelpress/internal/session"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// SessionKey is the context key for the session data.
	SessionKey contextKey = "session"

	// IdentityKey is the context key for the signed-in identity.
	IdentityKey contextKey = "identity"
)

// SessionLoader reads the session attached to a request.
type SessionLoader interface {
	Get(ctx context.Context, r *http.Request) (*session.Data, error)
}

// Identities resolves a session's user to a profile. It is satisfied by
// the auth gate.
type Identities interface {
	CachedProfile(id uuid.UUID) *models.Identity
	RefreshProfile(ctx context.Context, id uuid.UUID) (*models.Identity, error)
}

// LoadSession retrieves the session from Valkey and stores it in the
// request context. It does not enforce authentication.
func LoadSession(store SessionLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, err := store.Get(r.Context(), r)
			if err != nil {
				slog.Warn("session load failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if data != nil {
				r = r.WithContext(context.WithValue(r.Context(), SessionKey, data))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoadIdentity resolves the session's user through the profile mirror and
// stores the identity in the request context. A mirror miss triggers one
// refresh from the database. Must be applied after LoadSession.
func LoadIdentity(ids Identities) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromCtx(r.Context())
			if sess == nil {
				next.ServeHTTP(w, r)
				return
			}

			u := ids.CachedProfile(sess.UserID)
			if u == nil {
				var err error
				u, err = ids.RefreshProfile(r.Context(), sess.UserID)
				if err != nil {
					slog.Warn("identity refresh failed", "user_id", sess.UserID, "error", err)
					next.ServeHTTP(w, r)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), IdentityKey, u)))
		})
	}
}

// RequireAuth answers 401 unless the request carries a session with a
// resolvable identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SessionFromCtx(r.Context()) == nil || IdentityFromCtx(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Require2FA answers 403 for admins whose session has not passed the
// second factor. Other roles pass through. Must be applied after
// RequireAuth.
func Require2FA(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromCtx(r.Context())
		if IdentityFromCtx(r.Context()).IsAdmin() && (sess == nil || !sess.TwoFADone) {
			writeError(w, http.StatusForbidden, "two-factor authentication required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireRole answers 403 unless the identity holds one of roles.
// Must be applied after RequireAuth.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := IdentityFromCtx(r.Context())
			if u == nil || !slices.Contains(roles, u.Role) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromCtx extracts the session data from the request context.
// Returns nil if no session is loaded.
func SessionFromCtx(ctx context.Context) *session.Data {
	data, _ := ctx.Value(SessionKey).(*session.Data)
	return data
}

// IdentityFromCtx returns the signed-in identity, or nil for anonymous
// requests.
func IdentityFromCtx(ctx context.Context) *models.Identity {
	u, _ := ctx.Value(IdentityKey).(*models.Identity)
	return u
}
