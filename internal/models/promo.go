// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DiscountType says how DiscountValue is applied to a price.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromoCode is a single-use code that unlocks a novel for the redeemer.
// MaxUses is stored for reporting only; the Used flag alone gates reuse.
type PromoCode struct {
	ID            uuid.UUID    `json:"id"`
	Code          string       `json:"code"`
	CodeType      string       `json:"code_type"`
	DiscountValue float64      `json:"discount_value"`
	DiscountType  DiscountType `json:"discount_type"`
	Description   string       `json:"description"`
	MaxUses       *int         `json:"max_uses,omitempty"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	Used          bool         `json:"used"`
	UsedBy        *uuid.UUID   `json:"used_by,omitempty"`
	UsedAt        *time.Time   `json:"used_at,omitempty"`
	UsedFor       *uuid.UUID   `json:"used_for,omitempty"`
	CreatedBy     uuid.UUID    `json:"created_by"`
	CreatedAt     time.Time    `json:"created_at"`
}

// ExpiredAt reports whether the code's expiration is at or before now,
// matching the redemption guard in the store. Codes without an expiration
// never expire.
func (c *PromoCode) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Apply returns price after the code's discount, never below zero.
func (c *PromoCode) Apply(price float64) float64 {
	var out float64
	switch c.DiscountType {
	case DiscountPercentage:
		out = price - price*c.DiscountValue/100
	case DiscountFixed:
		out = price - c.DiscountValue
	default:
		out = price
	}
	return math.Max(0, math.Round(out*100)/100)
}

// CodeSpec is what an admin submits to create a code.
type CodeSpec struct {
	Code          string       `json:"code"`
	CodeType      string       `json:"code_type"`
	DiscountValue float64      `json:"discount_value"`
	DiscountType  DiscountType `json:"discount_type"`
	Description   string       `json:"description"`
	MaxUses       *int         `json:"max_uses,omitempty"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
}

// Validation errors for CodeSpec.
var (
	ErrCodeRequired        = errors.New("code is required")
	ErrCodeTooLong         = errors.New("code is too long (max 64 characters)")
	ErrInvalidDiscountType = errors.New("discount type must be percentage or fixed")
	ErrInvalidDiscount     = errors.New("discount value must be positive")
	ErrPercentageTooHigh   = errors.New("percentage discount cannot exceed 100")
	ErrInvalidMaxUses      = errors.New("max uses must be at least 1")
)

// Normalize trims the code and fills in the default code type.
func (s CodeSpec) Normalize() CodeSpec {
	s.Code = strings.TrimSpace(s.Code)
	s.CodeType = strings.TrimSpace(s.CodeType)
	if s.CodeType == "" {
		s.CodeType = "discount"
	}
	return s
}

// Validate checks the code definition and returns the first problem found.
func (s CodeSpec) Validate() error {
	if s.Code == "" {
		return ErrCodeRequired
	}
	if len(s.Code) > 64 {
		return ErrCodeTooLong
	}
	switch s.DiscountType {
	case DiscountPercentage:
		if s.DiscountValue > 100 {
			return ErrPercentageTooHigh
		}
	case DiscountFixed:
	default:
		return ErrInvalidDiscountType
	}
	if s.DiscountValue <= 0 {
		return ErrInvalidDiscount
	}
	if s.MaxUses != nil && *s.MaxUses < 1 {
		return ErrInvalidMaxUses
	}
	return nil
}

// Redemption names the three records a code redemption touches.
type Redemption struct {
	CodeID  uuid.UUID
	UserID  uuid.UUID
	NovelID uuid.UUID
}

// CodeCounts summarises the promo code table for the dashboard.
type CodeCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}
