// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store provides database access methods for all NovelPress
// entities. Each store struct wraps a *sql.DB and exposes typed query methods.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"novelpress/internal/models"
)

// UserStore handles credentials, profiles and entitlements.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new UserStore with the given database connection.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const credentialColumns = `id, email, password_hash, totp_secret, totp_enabled, created_at, updated_at`

func scanCredential(row interface{ Scan(...any) error }) (*models.Credential, error) {
	c := &models.Credential{}
	err := row.Scan(&c.ID, &c.Email, &c.PasswordHash, &c.TOTPSecret, &c.TOTPEnabled, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateCredential inserts a sign-in record with a bcrypt-hashed password.
// Emails are compared case-insensitively.
func (s *UserStore) CreateCredential(ctx context.Context, email, password string) (*models.Credential, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	c, err := scanCredential(s.db.QueryRowContext(ctx, `
		INSERT INTO credentials (email, password_hash)
		VALUES ($1, $2)
		RETURNING `+credentialColumns,
		normalizeEmail(email), string(hash),
	))
	if isPgError(err, pgUniqueViolation) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create credential: %w", err)
	}
	return c, nil
}

// FindCredentialByEmail retrieves a credential by email. Returns nil if not found.
func (s *UserStore) FindCredentialByEmail(ctx context.Context, email string) (*models.Credential, error) {
	c, err := scanCredential(s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE email = $1`, normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find credential by email: %w", err)
	}
	return c, nil
}

// FindCredential retrieves a credential by id. Returns nil if not found.
func (s *UserStore) FindCredential(ctx context.Context, id uuid.UUID) (*models.Credential, error) {
	c, err := scanCredential(s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return c, nil
}

// DeleteCredential removes a credential and, through the cascade, its profile.
func (s *UserStore) DeleteCredential(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// CheckPassword verifies a plaintext password against the credential's hash.
func (s *UserStore) CheckPassword(c *models.Credential, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil
}

// SetTOTPSecret saves the TOTP secret for an account (during 2FA setup).
func (s *UserStore) SetTOTPSecret(ctx context.Context, id uuid.UUID, secret string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET totp_secret = $1, updated_at = NOW() WHERE id = $2
	`, secret, id)
	if err != nil {
		return fmt.Errorf("set totp secret: %w", err)
	}
	return nil
}

// EnableTOTP marks 2FA as active (after successful code verification).
func (s *UserStore) EnableTOTP(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET totp_enabled = TRUE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("enable totp: %w", err)
	}
	return nil
}

// ResetTOTP clears the TOTP secret and disables 2FA for an account.
func (s *UserStore) ResetTOTP(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET totp_secret = NULL, totp_enabled = FALSE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("reset totp: %w", err)
	}
	return nil
}

const profileColumns = `u.id, u.name, u.email, u.role, u.phone, u.subscription, u.credits,
	c.totp_enabled, u.created_at, u.updated_at`

func scanProfile(row interface{ Scan(...any) error }) (*models.Identity, error) {
	u := &models.Identity{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Phone, &u.Subscription, &u.Credits,
		&u.TOTPEnabled, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateProfile inserts the default profile for an existing credential:
// role user, free subscription, zero credits and no entitlements.
func (s *UserStore) CreateProfile(ctx context.Context, id uuid.UUID, name, email string) (*models.Identity, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role, subscription, credits)
		VALUES ($1, $2, $3, $4, 'free', 0)
	`, id, name, normalizeEmail(email), models.RoleUser)
	if isPgError(err, pgForeignKeyViolation) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	u, err := s.FindProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// FindProfile loads the authoritative profile with its entitlements.
// Returns nil if the account has no profile.
func (s *UserStore) FindProfile(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	u, err := scanProfile(s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM users u JOIN credentials c ON c.id = u.id
		WHERE u.id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}

	u.Entitlements, err = s.Entitlements(ctx, id)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Entitlements returns the novel ids unlocked for a user, oldest grant first.
func (s *UserStore) Entitlements(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT novel_id FROM entitlements WHERE user_id = $1 ORDER BY granted_at, novel_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateProfile applies the non-nil fields of patch and returns the result.
func (s *UserStore) UpdateProfile(ctx context.Context, id uuid.UUID, patch models.ProfilePatch) (*models.Identity, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			name = COALESCE($2, name),
			phone = COALESCE($3, phone),
			updated_at = NOW()
		WHERE id = $1
	`, id, patch.Name, patch.Phone)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.FindProfile(ctx, id)
}

// SetRole changes a user's role.
func (s *UserStore) SetRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1
	`, id, role)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all profiles, newest first. Entitlements are not loaded.
func (s *UserStore) List(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+profileColumns+`
		FROM users u JOIN credentials c ON c.id = u.id
		ORDER BY u.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.Identity{}
	for rows.Next() {
		u, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Count returns the number of profiles.
func (s *UserStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
