// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package ledger validates and redeems single-use promo codes. A
// redemption marks the code used, entitles the redeemer to the novel and
// counts a sale, all in one store transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"novelpress/internal/models"
	"novelpress/internal/store"
)

// Errors returned by the ledger. Messages are shown to users as-is.
var (
	ErrCodeNotFound   = errors.New("promo code not found or already used")
	ErrCodeExpired    = errors.New("promo code has expired")
	ErrCodeConflict   = errors.New("promo code is no longer available")
	ErrTargetNotFound = errors.New("user or novel not found")
	ErrForbidden      = errors.New("only admins can manage promo codes")
	ErrExpiryInPast   = errors.New("expiry must be in the future")
)

var (
	redemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novelpress_redemptions_total",
		Help: "Promo code redemption attempts by result.",
	}, []string{"result"})
	redemptionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "novelpress_redemption_duration_seconds",
		Help:    "Time spent in the redemption transaction.",
		Buckets: prometheus.DefBuckets,
	})
)

// CodeStore is the promo code persistence the ledger needs.
type CodeStore interface {
	Create(ctx context.Context, spec models.CodeSpec, createdBy uuid.UUID) (*models.PromoCode, error)
	FindUnusedByCode(ctx context.Context, code string) (*models.PromoCode, error)
	Redeem(ctx context.Context, r models.Redemption) error
	List(ctx context.Context) ([]models.PromoCode, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RoleChecker answers role questions about an actor.
type RoleChecker interface {
	HasRole(ctx context.Context, id uuid.UUID, role models.Role) bool
}

// Ledger is the promo code service.
type Ledger struct {
	codes CodeStore
	roles RoleChecker
	now   func() time.Time
}

// New creates a ledger.
func New(codes CodeStore, roles RoleChecker) *Ledger {
	return &Ledger{codes: codes, roles: roles, now: time.Now}
}

// Validate looks up an unused code by its exact string. An unused code
// whose expiry has passed is reported as expired, distinct from a code
// that does not exist or was already used.
func (l *Ledger) Validate(ctx context.Context, code string) (*models.PromoCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrCodeNotFound
	}

	c, err := l.codes.FindUnusedByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("validate code: %w", err)
	}
	if c == nil {
		return nil, ErrCodeNotFound
	}
	if c.ExpiredAt(l.now()) {
		return nil, ErrCodeExpired
	}
	return c, nil
}

// Redeem consumes a code for a user and a novel. The store applies the
// whole redemption or none of it; when another redemption won the code,
// or it was used or expired in the meantime, Redeem returns
// ErrCodeConflict.
func (l *Ledger) Redeem(ctx context.Context, codeID, userID, novelID uuid.UUID) error {
	start := time.Now()
	err := l.codes.Redeem(ctx, models.Redemption{CodeID: codeID, UserID: userID, NovelID: novelID})
	redemptionDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		redemptionsTotal.WithLabelValues("ok").Inc()
		slog.Info("promo code redeemed", "code_id", codeID, "user_id", userID, "novel_id", novelID)
		return nil
	case errors.Is(err, store.ErrCodeUnavailable):
		redemptionsTotal.WithLabelValues("conflict").Inc()
		return ErrCodeConflict
	case errors.Is(err, store.ErrNotFound):
		redemptionsTotal.WithLabelValues("target_missing").Inc()
		return ErrTargetNotFound
	default:
		redemptionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("redeem code: %w", err)
	}
}

// ValidateAndRedeem validates a code string and redeems it.
func (l *Ledger) ValidateAndRedeem(ctx context.Context, code string, userID, novelID uuid.UUID) (*models.PromoCode, error) {
	c, err := l.Validate(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := l.Redeem(ctx, c.ID, userID, novelID); err != nil {
		return nil, err
	}
	return c, nil
}

// Quote returns price after the code's discount, for display before a
// redemption.
func (l *Ledger) Quote(ctx context.Context, code string, price float64) (*models.PromoCode, float64, error) {
	c, err := l.Validate(ctx, code)
	if err != nil {
		return nil, 0, err
	}
	return c, c.Apply(price), nil
}

// Create stores a new code. Admin only. max_uses is recorded but a code
// can still be redeemed once.
func (l *Ledger) Create(ctx context.Context, actor uuid.UUID, spec models.CodeSpec) (*models.PromoCode, error) {
	if !l.roles.HasRole(ctx, actor, models.RoleAdmin) {
		return nil, ErrForbidden
	}
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.ExpiresAt != nil && !spec.ExpiresAt.After(l.now()) {
		return nil, ErrExpiryInPast
	}

	c, err := l.codes.Create(ctx, spec, actor)
	if err != nil {
		return nil, fmt.Errorf("create code: %w", err)
	}
	slog.Info("promo code created", "code_id", c.ID, "actor", actor)
	return c, nil
}

// List returns every code, newest first. Admin only.
func (l *Ledger) List(ctx context.Context, actor uuid.UUID) ([]models.PromoCode, error) {
	if !l.roles.HasRole(ctx, actor, models.RoleAdmin) {
		return nil, ErrForbidden
	}
	codes, err := l.codes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	return codes, nil
}

// Delete removes an unused code. Admin only. Used codes are kept as
// redemption history.
func (l *Ledger) Delete(ctx context.Context, actor, id uuid.UUID) error {
	if !l.roles.HasRole(ctx, actor, models.RoleAdmin) {
		return ErrForbidden
	}
	switch err := l.codes.Delete(ctx, id); {
	case err == nil:
		slog.Info("promo code deleted", "code_id", id, "actor", actor)
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, store.ErrCodeUnavailable):
		return ErrCodeConflict
	default:
		return fmt.Errorf("delete code: %w", err)
	}
}
