// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package models defines the data structures that map to database tables
// and provides the core types used throughout the application.
package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role represents a user's permission level on the platform.
type Role string

const (
	RoleUser   Role = "user"
	RoleAuthor Role = "author"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAuthor, RoleAdmin:
		return true
	}
	return false
}

// Credential is the sign-in record for an account. It is kept apart from
// the profile so that authentication and profile data can fail independently.
type Credential struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize the hash
	TOTPSecret   *string   `json:"-"` // Nullable; set during 2FA setup
	TOTPEnabled  bool      `json:"totp_enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Needs2FASetup returns true if the account has not completed 2FA enrollment.
func (c *Credential) Needs2FASetup() bool {
	return !c.TOTPEnabled
}

// Identity is an authenticated account together with its denormalized
// profile. It is what the profile cache mirrors.
type Identity struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Role         Role        `json:"role"`
	Phone        string      `json:"phone"`
	Subscription string      `json:"subscription"`
	Credits      int         `json:"credits"`
	Entitlements []uuid.UUID `json:"entitlements"`
	TOTPEnabled  bool        `json:"totp_enabled"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// IsAdmin returns true if the identity has the admin role.
func (u *Identity) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// HasRole compares the identity's role with role. There is no role
// hierarchy: an admin does not implicitly hold the author role.
func (u *Identity) HasRole(role Role) bool {
	return u != nil && u.Role == role
}

// CanPublish returns true for roles allowed to upload novels.
func (u *Identity) CanPublish() bool {
	return u != nil && (u.Role == RoleAuthor || u.Role == RoleAdmin)
}

// Entitled reports whether novelID is in the identity's entitlement list.
func (u *Identity) Entitled(novelID uuid.UUID) bool {
	return u != nil && slices.Contains(u.Entitlements, novelID)
}

// ProfilePatch holds the profile fields a user may change about themselves.
// Nil fields are left untouched.
type ProfilePatch struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.Phone == nil
}
