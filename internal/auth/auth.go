// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package auth is the session and identity gate. It signs accounts in and
// up, keeps the in-process profile mirror current and answers role checks
// for the rest of the application.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"novelpress/internal/models"
	"novelpress/internal/store"
)

// Errors returned by the gate. Messages are shown to users as-is.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrProfileMissing     = errors.New("account has no profile")
	ErrForbidden          = errors.New("you do not have permission to do this")
	ErrInvalidRole        = errors.New("unknown role")
	ErrInvalidEmail       = errors.New("a valid email address is required")
	ErrNameRequired       = errors.New("name is required")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
)

// Password bounds for Register. bcrypt refuses input longer than
// MaxPasswordBytes.
const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 72
)

var authAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "novelpress_auth_attempts_total",
	Help: "Sign-in and registration attempts by outcome.",
}, []string{"op", "result"})

// Credentials is the sign-in record store.
type Credentials interface {
	CreateCredential(ctx context.Context, email, password string) (*models.Credential, error)
	FindCredentialByEmail(ctx context.Context, email string) (*models.Credential, error)
	CheckPassword(c *models.Credential, password string) bool
	DeleteCredential(ctx context.Context, id uuid.UUID) error
}

// Profiles is the authoritative profile store.
type Profiles interface {
	CreateProfile(ctx context.Context, id uuid.UUID, name, email string) (*models.Identity, error)
	FindProfile(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, patch models.ProfilePatch) (*models.Identity, error)
	SetRole(ctx context.Context, id uuid.UUID, role models.Role) error
	List(ctx context.Context) ([]models.Identity, error)
}

// Mirror is the process-local profile snapshot the gate reads from.
type Mirror interface {
	Get(id uuid.UUID) *models.Identity
	Set(u *models.Identity)
	Remove(id uuid.UUID)
}

// Gate coordinates credentials, profiles and the profile mirror.
// RefreshProfile is the only method that writes to the mirror.
type Gate struct {
	creds    Credentials
	profiles Profiles
	mirror   Mirror
}

// NewGate creates a gate over the given stores and mirror.
func NewGate(creds Credentials, profiles Profiles, mirror Mirror) *Gate {
	return &Gate{creds: creds, profiles: profiles, mirror: mirror}
}

// SignIn verifies the email and password and returns the refreshed profile.
// Unknown emails and wrong passwords produce the same error.
func (g *Gate) SignIn(ctx context.Context, email, password string) (*models.Identity, error) {
	cred, err := g.creds.FindCredentialByEmail(ctx, email)
	if err != nil {
		authAttemptsTotal.WithLabelValues("signin", "error").Inc()
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if cred == nil || !g.creds.CheckPassword(cred, password) {
		authAttemptsTotal.WithLabelValues("signin", "rejected").Inc()
		return nil, ErrInvalidCredentials
	}

	u, err := g.RefreshProfile(ctx, cred.ID)
	if err != nil {
		authAttemptsTotal.WithLabelValues("signin", "error").Inc()
		return nil, err
	}
	authAttemptsTotal.WithLabelValues("signin", "ok").Inc()
	return u, nil
}

// Register creates a credential and its default profile as one operation.
// If the profile cannot be created the credential is deleted again, so a
// failed registration never leaves an account that cannot sign in.
func (g *Gate) Register(ctx context.Context, name, email, password string) (*models.Identity, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if err := validateRegistration(name, email, password); err != nil {
		authAttemptsTotal.WithLabelValues("register", "rejected").Inc()
		return nil, err
	}

	cred, err := g.creds.CreateCredential(ctx, email, password)
	if errors.Is(err, store.ErrEmailTaken) {
		authAttemptsTotal.WithLabelValues("register", "rejected").Inc()
		return nil, ErrEmailTaken
	}
	if err != nil {
		authAttemptsTotal.WithLabelValues("register", "error").Inc()
		return nil, fmt.Errorf("register: %w", err)
	}

	if _, err := g.profiles.CreateProfile(ctx, cred.ID, name, cred.Email); err != nil {
		authAttemptsTotal.WithLabelValues("register", "error").Inc()
		err = fmt.Errorf("register profile: %w", err)
		// The request may have been cancelled; cleanup must still run.
		if cerr := g.creds.DeleteCredential(context.WithoutCancel(ctx), cred.ID); cerr != nil {
			slog.Error("register compensation failed, credential left without profile",
				"credential_id", cred.ID, "error", cerr)
			return nil, errors.Join(err, fmt.Errorf("delete credential: %w", cerr))
		}
		slog.Warn("register rolled back credential", "credential_id", cred.ID, "error", err)
		return nil, err
	}

	u, err := g.RefreshProfile(ctx, cred.ID)
	if err != nil {
		authAttemptsTotal.WithLabelValues("register", "error").Inc()
		return nil, err
	}
	authAttemptsTotal.WithLabelValues("register", "ok").Inc()
	return u, nil
}

// SignOut drops the identity from the mirror.
func (g *Gate) SignOut(id uuid.UUID) {
	g.mirror.Remove(id)
}

// CachedProfile returns the mirrored identity, or nil if there is none.
func (g *Gate) CachedProfile(id uuid.UUID) *models.Identity {
	return g.mirror.Get(id)
}

// RefreshProfile loads the authoritative profile and overwrites the mirror
// with it. A missing profile evicts the mirror and yields ErrProfileMissing.
func (g *Gate) RefreshProfile(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	u, err := g.profiles.FindProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("refresh profile: %w", err)
	}
	if u == nil {
		g.mirror.Remove(id)
		return nil, ErrProfileMissing
	}
	g.mirror.Set(u)
	return u, nil
}

// HasRole reports whether the identity holds exactly role. A mirror miss
// is resolved from the store, so an evicted admin keeps their rights.
func (g *Gate) HasRole(ctx context.Context, id uuid.UUID, role models.Role) bool {
	if u := g.mirror.Get(id); u != nil {
		return u.HasRole(role)
	}
	u, err := g.RefreshProfile(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrProfileMissing) {
			slog.Warn("role lookup failed", "user_id", id, "error", err)
		}
		return false
	}
	return u.HasRole(role)
}

// UpdateProfile changes the caller's own name or phone.
func (g *Gate) UpdateProfile(ctx context.Context, id uuid.UUID, patch models.ProfilePatch) (*models.Identity, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		patch.Name = &name
	}
	if patch.Empty() {
		return g.RefreshProfile(ctx, id)
	}

	if _, err := g.profiles.UpdateProfile(ctx, id, patch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProfileMissing
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return g.RefreshProfile(ctx, id)
}

// ListUsers returns every profile. Admin only.
func (g *Gate) ListUsers(ctx context.Context, actor uuid.UUID) ([]models.Identity, error) {
	if !g.HasRole(ctx, actor, models.RoleAdmin) {
		return nil, ErrForbidden
	}
	users, err := g.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetRole changes another account's role. Admin only. A mirrored target is
// refreshed so role checks see the change immediately.
func (g *Gate) SetRole(ctx context.Context, actor, userID uuid.UUID, role models.Role) error {
	if !g.HasRole(ctx, actor, models.RoleAdmin) {
		return ErrForbidden
	}
	if !role.Valid() {
		return ErrInvalidRole
	}

	if err := g.profiles.SetRole(ctx, userID, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrProfileMissing
		}
		return fmt.Errorf("set role: %w", err)
	}

	if g.mirror.Get(userID) != nil {
		if _, err := g.RefreshProfile(ctx, userID); err != nil {
			slog.Warn("refresh after role change failed", "user_id", userID, "error", err)
			g.mirror.Remove(userID)
		}
	}
	slog.Info("user role changed", "actor", actor, "user_id", userID, "role", role)
	return nil
}

func validateRegistration(name, email, password string) error {
	if name == "" {
		return ErrNameRequired
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}
