// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"novelpress/internal/auth"
	"novelpress/internal/ledger"
	"novelpress/internal/library"
	"novelpress/internal/models"
	"novelpress/internal/stats"
)

// errorStatus maps service errors to HTTP status codes. Their messages are
// safe to show to users.
var errorStatus = []struct {
	err    error
	status int
}{
	{auth.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrEmailTaken, http.StatusConflict},
	{auth.ErrProfileMissing, http.StatusNotFound},
	{auth.ErrForbidden, http.StatusForbidden},
	{auth.ErrInvalidRole, http.StatusBadRequest},
	{auth.ErrInvalidEmail, http.StatusBadRequest},
	{auth.ErrNameRequired, http.StatusBadRequest},
	{auth.ErrWeakPassword, http.StatusBadRequest},
	{auth.ErrPasswordTooLong, http.StatusBadRequest},

	{ledger.ErrCodeNotFound, http.StatusNotFound},
	{ledger.ErrCodeExpired, http.StatusGone},
	{ledger.ErrCodeConflict, http.StatusConflict},
	{ledger.ErrTargetNotFound, http.StatusNotFound},
	{ledger.ErrForbidden, http.StatusForbidden},
	{ledger.ErrExpiryInPast, http.StatusBadRequest},
	{models.ErrCodeRequired, http.StatusBadRequest},
	{models.ErrCodeTooLong, http.StatusBadRequest},
	{models.ErrInvalidDiscountType, http.StatusBadRequest},
	{models.ErrInvalidDiscount, http.StatusBadRequest},
	{models.ErrPercentageTooHigh, http.StatusBadRequest},
	{models.ErrInvalidMaxUses, http.StatusBadRequest},

	{library.ErrNotFound, http.StatusNotFound},
	{library.ErrForbidden, http.StatusForbidden},
	{library.ErrInvalidTransition, http.StatusConflict},
	{library.ErrStorageUnavailable, http.StatusServiceUnavailable},
	{library.ErrInvalidSlot, http.StatusBadRequest},
	{library.ErrTitleRequired, http.StatusBadRequest},
	{library.ErrTitleTooLong, http.StatusBadRequest},
	{library.ErrInvalidPrice, http.StatusBadRequest},
	{library.ErrEmptyFile, http.StatusBadRequest},
	{library.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
	{library.ErrUnsupportedType, http.StatusUnsupportedMediaType},
	{library.ErrNoDocument, http.StatusNotFound},
	{library.ErrNotEntitled, http.StatusForbidden},

	{stats.ErrForbidden, http.StatusForbidden},
}

// respondErr answers with the status and message of a known service error.
// Anything else is logged and answered with a generic 500.
func respondErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.err.Error())
			return
		}
	}
	slog.Error(op+" failed", "error", err, "method", r.Method, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
