// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"novelpress/internal/auth"
	"novelpress/internal/ledger"
	"novelpress/internal/library"
	"novelpress/internal/middleware"
	"novelpress/internal/models"
	"novelpress/internal/stats"
)

// SettingsStore reads and writes site settings.
type SettingsStore interface {
	All(ctx context.Context) (models.SiteSettings, error)
	SetMany(ctx context.Context, settings models.SiteSettings) error
}

// Admin groups the console handlers. Every route is mounted behind
// RequireRole(admin) and Require2FA; the services check the role again.
type Admin struct {
	gate     *auth.Gate
	lib      *library.Library
	ledger   *ledger.Ledger
	stats    *stats.Collector
	settings SettingsStore
	totp     TOTPStore
	sessions SessionRevoker
}

// SessionRevoker signs a user out of every session.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// NewAdmin creates a new Admin handler group.
func NewAdmin(gate *auth.Gate, lib *library.Library, l *ledger.Ledger, collector *stats.Collector, settings SettingsStore, totpStore TOTPStore, sessions SessionRevoker) *Admin {
	return &Admin{gate: gate, lib: lib, ledger: l, stats: collector, settings: settings, totp: totpStore, sessions: sessions}
}

// Stats returns the dashboard summary.
func (a *Admin) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := a.stats.Collect(r.Context(), middleware.IdentityFromCtx(r.Context()))
	if err != nil {
		respondErr(w, r, "collect stats", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// NovelsList lists novels of any status for review.
func (a *Admin) NovelsList(w http.ResponseWriter, r *http.Request) {
	q, msg := parseNovelQuery(r, adminListLimit)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	novels, err := a.lib.List(r.Context(), q)
	if err != nil {
		respondErr(w, r, "list novels", err)
		return
	}
	writeJSON(w, http.StatusOK, novels)
}

// NovelApprove publishes a pending novel.
func (a *Admin) NovelApprove(w http.ResponseWriter, r *http.Request) {
	a.review(w, r, a.lib.Approve)
}

// NovelReject rejects a pending novel.
func (a *Admin) NovelReject(w http.ResponseWriter, r *http.Request) {
	a.review(w, r, a.lib.Reject)
}

func (a *Admin) review(w http.ResponseWriter, r *http.Request, apply func(context.Context, *models.Identity, uuid.UUID) error) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid novel ID.")
		return
	}
	if err := apply(r.Context(), middleware.IdentityFromCtx(r.Context()), id); err != nil {
		respondErr(w, r, "review novel", err)
		return
	}

	novel, err := a.lib.Get(r.Context(), id)
	if err != nil {
		respondErr(w, r, "review novel", err)
		return
	}
	writeJSON(w, http.StatusOK, novel)
}

type featureRequest struct {
	Featured *bool `json:"featured"`
}

// NovelFeature sets or clears the featured flag.
func (a *Admin) NovelFeature(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid novel ID.")
		return
	}
	var req featureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Featured == nil {
		writeError(w, http.StatusBadRequest, "featured is required.")
		return
	}

	novel, err := a.lib.Update(r.Context(), middleware.IdentityFromCtx(r.Context()), id, models.NovelPatch{Featured: req.Featured})
	if err != nil {
		respondErr(w, r, "feature novel", err)
		return
	}
	writeJSON(w, http.StatusOK, novel)
}

// NovelDelete removes a novel and its attachments.
func (a *Admin) NovelDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid novel ID.")
		return
	}
	if err := a.lib.Delete(r.Context(), middleware.IdentityFromCtx(r.Context()), id); err != nil {
		respondErr(w, r, "delete novel", err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// UsersList lists every account.
func (a *Admin) UsersList(w http.ResponseWriter, r *http.Request) {
	users, err := a.gate.ListUsers(r.Context(), middleware.IdentityFromCtx(r.Context()).ID)
	if err != nil {
		respondErr(w, r, "list users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type roleRequest struct {
	Role models.Role `json:"role"`
}

// UserSetRole changes another account's role. Admins cannot change their
// own role, so the console always keeps at least the acting admin.
func (a *Admin) UserSetRole(w http.ResponseWriter, r *http.Request) {
	actor := middleware.IdentityFromCtx(r.Context())
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user ID.")
		return
	}
	if id == actor.ID {
		writeError(w, http.StatusForbidden, "You cannot change your own role.")
		return
	}
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.gate.SetRole(r.Context(), actor.ID, id, req.Role); err != nil {
		respondErr(w, r, "set role", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "role": req.Role})
}

// UserResetTwoFA clears another user's second factor and signs them out,
// forcing a new setup on their next sign-in.
func (a *Admin) UserResetTwoFA(w http.ResponseWriter, r *http.Request) {
	actor := middleware.IdentityFromCtx(r.Context())
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user ID.")
		return
	}
	if id == actor.ID {
		writeError(w, http.StatusForbidden, "You cannot reset your own two-factor authentication.")
		return
	}

	if err := a.totp.ResetTOTP(r.Context(), id); err != nil {
		respondErr(w, r, "reset 2fa", err)
		return
	}
	if a.gate.CachedProfile(id) != nil {
		if _, err := a.gate.RefreshProfile(r.Context(), id); err != nil {
			slog.Warn("refresh after 2fa reset failed", "user_id", id, "error", err)
		}
	}

	revoked, err := a.sessions.RevokeUser(r.Context(), id)
	if err != nil {
		slog.Warn("revoking sessions after 2fa reset failed", "user_id", id, "error", err)
	}

	slog.Info("2fa reset by admin", "admin", actor.ID, "target_user", id, "sessions_revoked", revoked)
	writeJSON(w, http.StatusOK, nil)
}

// CodesList lists every promo code, newest first.
func (a *Admin) CodesList(w http.ResponseWriter, r *http.Request) {
	codes, err := a.ledger.List(r.Context(), middleware.IdentityFromCtx(r.Context()).ID)
	if err != nil {
		respondErr(w, r, "list codes", err)
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

// CodeCreate stores a new promo code.
func (a *Admin) CodeCreate(w http.ResponseWriter, r *http.Request) {
	var spec models.CodeSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	code, err := a.ledger.Create(r.Context(), middleware.IdentityFromCtx(r.Context()).ID, spec)
	if err != nil {
		respondErr(w, r, "create code", err)
		return
	}
	writeJSON(w, http.StatusCreated, code)
}

// CodeDelete removes an unused promo code.
func (a *Admin) CodeDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid code ID.")
		return
	}
	if err := a.ledger.Delete(r.Context(), middleware.IdentityFromCtx(r.Context()).ID, id); err != nil {
		respondErr(w, r, "delete code", err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// Settings returns all site settings. It is also mounted publicly.
func (a *Admin) Settings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.settings.All(r.Context())
	if err != nil {
		respondErr(w, r, "load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// SettingsUpdate writes the given settings. Unknown keys and invalid
// values reject the whole request.
func (a *Admin) SettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var settings models.SiteSettings
	if err := decodeJSON(w, r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := settings.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.settings.SetMany(r.Context(), settings); err != nil {
		respondErr(w, r, "save settings", err)
		return
	}
	slog.Info("site settings updated", "admin", middleware.IdentityFromCtx(r.Context()).ID, "keys", len(settings))
	a.Settings(w, r)
}
