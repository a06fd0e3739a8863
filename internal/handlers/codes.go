// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"novelpress/internal/auth"
	"novelpress/internal/ledger"
	"novelpress/internal/library"
	"novelpress/internal/middleware"
	"novelpress/internal/models"
)

// Invalidator drops cached listings.
type Invalidator interface {
	InvalidateAll(ctx context.Context)
}

// Codes groups the reader-facing promo code handlers.
type Codes struct {
	ledger   *ledger.Ledger
	gate     *auth.Gate
	lib      *library.Library
	listings Invalidator // nil disables invalidation
}

// NewCodes creates a new Codes handler group.
func NewCodes(l *ledger.Ledger, gate *auth.Gate, lib *library.Library, listings Invalidator) *Codes {
	return &Codes{ledger: l, gate: gate, lib: lib, listings: listings}
}

type codeRequest struct {
	Code    string     `json:"code"`
	NovelID *uuid.UUID `json:"novel_id,omitempty"`
}

// codeView is what a reader learns about a code. Redemption details and
// the creator stay private.
type codeView struct {
	Code          string              `json:"code"`
	CodeType      string              `json:"code_type"`
	DiscountType  models.DiscountType `json:"discount_type"`
	DiscountValue float64             `json:"discount_value"`
	Description   string              `json:"description"`
	ExpiresAt     *time.Time          `json:"expires_at,omitempty"`
	Price         *float64            `json:"price,omitempty"`
	FinalPrice    *float64            `json:"final_price,omitempty"`
}

func newCodeView(c *models.PromoCode) codeView {
	return codeView{
		Code:          c.Code,
		CodeType:      c.CodeType,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
		Description:   c.Description,
		ExpiresAt:     c.ExpiresAt,
	}
}

// Validate checks a code without consuming it. With a novel_id it also
// quotes the discounted price.
func (c *Codes) Validate(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.NovelID == nil {
		code, err := c.ledger.Validate(r.Context(), req.Code)
		if err != nil {
			respondErr(w, r, "validate code", err)
			return
		}
		writeJSON(w, http.StatusOK, newCodeView(code))
		return
	}

	novel, err := c.lib.Get(r.Context(), *req.NovelID)
	if err != nil {
		respondErr(w, r, "validate code", err)
		return
	}
	if !library.Visible(middleware.IdentityFromCtx(r.Context()), novel) {
		respondErr(w, r, "validate code", library.ErrNotFound)
		return
	}

	code, final, err := c.ledger.Quote(r.Context(), req.Code, novel.Price)
	if err != nil {
		respondErr(w, r, "validate code", err)
		return
	}
	view := newCodeView(code)
	view.Price, view.FinalPrice = &novel.Price, &final
	writeJSON(w, http.StatusOK, view)
}

type redeemResponse struct {
	Code         codeView    `json:"code"`
	NovelID      uuid.UUID   `json:"novel_id"`
	Entitlements []uuid.UUID `json:"entitlements"`
}

// Redeem consumes a code for the caller and the given novel. On success
// the caller's profile is refreshed so the new entitlement is visible to
// the next request.
func (c *Codes) Redeem(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.NovelID == nil {
		writeError(w, http.StatusBadRequest, "novel_id is required.")
		return
	}

	user := middleware.IdentityFromCtx(r.Context())
	code, err := c.ledger.ValidateAndRedeem(r.Context(), req.Code, user.ID, *req.NovelID)
	if err != nil {
		respondErr(w, r, "redeem code", err)
		return
	}

	// The sale counter moved.
	if c.listings != nil {
		c.listings.InvalidateAll(r.Context())
	}

	entitlements := append(slices.Clone(user.Entitlements), *req.NovelID)
	if refreshed, err := c.gate.RefreshProfile(r.Context(), user.ID); err != nil {
		slog.Warn("refresh after redeem failed", "user_id", user.ID, "error", err)
	} else {
		entitlements = refreshed.Entitlements
	}

	writeJSON(w, http.StatusOK, redeemResponse{
		Code:         newCodeView(code),
		NovelID:      *req.NovelID,
		Entitlements: entitlements,
	})
}
