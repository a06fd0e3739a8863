// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned by writes whose target row does not exist.
	// Lookups return nil, nil instead.
	ErrNotFound = errors.New("record not found")

	// ErrEmailTaken is returned when a credential already uses the email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrCodeUnavailable is returned when a promo code is used, expired or
	// was consumed by a concurrent redemption.
	ErrCodeUnavailable = errors.New("promo code unavailable")

	// ErrStateChanged is returned by conditional updates whose precondition
	// no longer holds.
	ErrStateChanged = errors.New("record state changed")
)

// PostgreSQL error codes the stores translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
