// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"novelpress/internal/models"
)

// PromoCodeStore handles promo codes and their redemption.
type PromoCodeStore struct {
	db *sql.DB
}

// NewPromoCodeStore creates a new PromoCodeStore.
func NewPromoCodeStore(db *sql.DB) *PromoCodeStore {
	return &PromoCodeStore{db: db}
}

const promoColumns = `id, code, code_type, discount_value, discount_type, description, max_uses,
	expires_at, used, used_by, used_at, used_for, created_by, created_at`

func scanPromoCode(row interface{ Scan(...any) error }) (*models.PromoCode, error) {
	c := &models.PromoCode{}
	err := row.Scan(
		&c.ID, &c.Code, &c.CodeType, &c.DiscountValue, &c.DiscountType, &c.Description, &c.MaxUses,
		&c.ExpiresAt, &c.Used, &c.UsedBy, &c.UsedAt, &c.UsedFor, &c.CreatedBy, &c.CreatedAt,
	)
	return c, err
}

// Create inserts a new unused code.
func (s *PromoCodeStore) Create(ctx context.Context, spec models.CodeSpec, createdBy uuid.UUID) (*models.PromoCode, error) {
	c, err := scanPromoCode(s.db.QueryRowContext(ctx, `
		INSERT INTO promo_codes (code, code_type, discount_value, discount_type, description, max_uses, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+promoColumns,
		spec.Code, spec.CodeType, spec.DiscountValue, spec.DiscountType, spec.Description,
		spec.MaxUses, spec.ExpiresAt, createdBy,
	))
	if err != nil {
		return nil, fmt.Errorf("create promo code: %w", err)
	}
	return c, nil
}

// FindUnusedByCode returns the newest unused code with the exact string,
// expired or not. Returns nil if there is none.
func (s *PromoCodeStore) FindUnusedByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	c, err := scanPromoCode(s.db.QueryRowContext(ctx, `
		SELECT `+promoColumns+` FROM promo_codes
		WHERE code = $1 AND NOT used
		ORDER BY created_at DESC
		LIMIT 1
	`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find promo code: %w", err)
	}
	return c, nil
}

// FindByID retrieves a code by id. Returns nil if not found.
func (s *PromoCodeStore) FindByID(ctx context.Context, id uuid.UUID) (*models.PromoCode, error) {
	c, err := scanPromoCode(s.db.QueryRowContext(ctx, `SELECT `+promoColumns+` FROM promo_codes WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find promo code by id: %w", err)
	}
	return c, nil
}

// Redeem consumes a code for a user and a novel in one transaction: the
// code is marked used, the user is entitled to the novel and the novel's
// sales counter is bumped. The first statement only matches an unused,
// unexpired code, so the row lock it takes decides concurrent attempts;
// the loser sees zero affected rows and gets ErrCodeUnavailable. A missing
// user or novel yields ErrNotFound. Nothing is written unless all three
// updates apply.
func (s *PromoCodeStore) Redeem(ctx context.Context, r models.Redemption) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("redeem begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE promo_codes
		SET used = TRUE, used_by = $2, used_at = NOW(), used_for = $3
		WHERE id = $1 AND NOT used AND (expires_at IS NULL OR expires_at > NOW())
	`, r.CodeID, r.UserID, r.NovelID)
	if isPgError(err, pgForeignKeyViolation) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redeem mark used: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("redeem rows affected: %w", err)
	} else if n == 0 {
		return ErrCodeUnavailable
	}

	// Granting an entitlement the user already holds is not an error.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entitlements (user_id, novel_id) VALUES ($1, $2)
		ON CONFLICT (user_id, novel_id) DO NOTHING
	`, r.UserID, r.NovelID)
	if isPgError(err, pgForeignKeyViolation) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redeem grant entitlement: %w", err)
	}

	res, err = tx.ExecContext(ctx, `UPDATE novels SET sales = sales + 1 WHERE id = $1`, r.NovelID)
	if err != nil {
		return fmt.Errorf("redeem count sale: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("redeem commit: %w", err)
	}
	return nil
}

// List returns every code, newest first.
func (s *PromoCodeStore) List(ctx context.Context) ([]models.PromoCode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+promoColumns+` FROM promo_codes ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list promo codes: %w", err)
	}
	defer rows.Close()

	codes := []models.PromoCode{}
	for rows.Next() {
		c, err := scanPromoCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promo code: %w", err)
		}
		codes = append(codes, *c)
	}
	return codes, rows.Err()
}

// Delete removes an unused code. Used codes are kept as redemption history
// and yield ErrCodeUnavailable.
func (s *PromoCodeStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM promo_codes WHERE id = $1 AND NOT used`, id)
	if err != nil {
		return fmt.Errorf("delete promo code: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	c, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNotFound
	}
	return ErrCodeUnavailable
}

// Counts returns the total number of codes and how many are still
// redeemable (unused and not expired).
func (s *PromoCodeStore) Counts(ctx context.Context) (models.CodeCounts, error) {
	var c models.CodeCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE NOT used AND (expires_at IS NULL OR expires_at > NOW()))
		FROM promo_codes
	`).Scan(&c.Total, &c.Active)
	if err != nil {
		return c, fmt.Errorf("count promo codes: %w", err)
	}
	return c, nil
}
