// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"

	"novelpress/internal/auth"
	"novelpress/internal/middleware"
	"novelpress/internal/models"
	"novelpress/internal/session"
)

// totpIssuer names the service in authenticator apps.
const totpIssuer = "NovelPress"

// Sessions is the session lifecycle the auth handlers drive.
type Sessions interface {
	Create(ctx context.Context, w http.ResponseWriter, data *session.Data) (string, error)
	Rotate(ctx context.Context, w http.ResponseWriter, r *http.Request, data *session.Data) (string, error)
	Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// TOTPStore keeps the second-factor secrets on credentials.
type TOTPStore interface {
	FindCredential(ctx context.Context, id uuid.UUID) (*models.Credential, error)
	SetTOTPSecret(ctx context.Context, id uuid.UUID, secret string) error
	EnableTOTP(ctx context.Context, id uuid.UUID) error
	ResetTOTP(ctx context.Context, id uuid.UUID) error
}

// Auth groups all authentication-related HTTP handlers.
type Auth struct {
	gate     *auth.Gate
	sessions Sessions
	totp     TOTPStore
}

// NewAuth creates a new Auth handler group.
func NewAuth(gate *auth.Gate, sessions Sessions, totpStore TOTPStore) *Auth {
	return &Auth{gate: gate, sessions: sessions, totp: totpStore}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse tells the client what the session still needs before
// admin routes open.
type loginResponse struct {
	User             *models.Identity `json:"user"`
	TwoFARequired    bool             `json:"two_fa_required"`
	TwoFASetupNeeded bool             `json:"two_fa_setup_needed"`
}

// Register creates an account and signs it in.
func (a *Auth) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Password) > maxPasswordLen {
		writeError(w, http.StatusBadRequest, "Password is too long.")
		return
	}

	u, err := a.gate.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondErr(w, r, "register", err)
		return
	}

	if !a.startSession(w, r, u) {
		return
	}
	slog.Info("account registered", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, loginResponse{User: u})
}

// Login verifies credentials and starts a session. Admins must complete
// the second factor before admin routes accept the session.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := validateCredentials(req.Email, req.Password); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	u, err := a.gate.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondErr(w, r, "login", err)
		return
	}

	if !a.startSession(w, r, u) {
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		User:             u,
		TwoFARequired:    u.IsAdmin(),
		TwoFASetupNeeded: u.IsAdmin() && !u.TOTPEnabled,
	})
}

func (a *Auth) startSession(w http.ResponseWriter, r *http.Request, u *models.Identity) bool {
	// TwoFADone starts false; only TwoFAVerify sets it.
	_, err := a.sessions.Create(r.Context(), w, &session.Data{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
	})
	if err != nil {
		slog.Error("session create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return false
	}
	return true
}

// Logout destroys the session and drops the profile mirror entry.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := middleware.SessionFromCtx(r.Context()); sess != nil {
		a.gate.SignOut(sess.UserID)
	}
	if err := a.sessions.Destroy(r.Context(), w, r); err != nil {
		slog.Warn("session destroy failed", "error", err)
	}
	writeJSON(w, http.StatusOK, nil)
}

// Me returns the signed-in identity.
func (a *Auth) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, middleware.IdentityFromCtx(r.Context()))
}

// UpdateProfile changes the caller's name or phone.
func (a *Auth) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch models.ProfilePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := a.gate.UpdateProfile(r.Context(), middleware.IdentityFromCtx(r.Context()).ID, patch)
	if err != nil {
		respondErr(w, r, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// CSRFToken returns the token to echo in the X-CSRF-Token header.
func (a *Auth) CSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": middleware.CSRFTokenFromCtx(r.Context())})
}

type twoFASetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCode     string `json:"qr_code"` // data URL of a PNG
}

// TwoFASetup generates a TOTP secret and returns it with a QR code. The
// secret only becomes active once TwoFAVerify accepts a code for it.
func (a *Auth) TwoFASetup(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromCtx(r.Context())

	cred, err := a.totp.FindCredential(r.Context(), sess.UserID)
	if err != nil || cred == nil {
		slog.Error("credential lookup for 2fa failed", "user_id", sess.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !cred.Needs2FASetup() {
		writeError(w, http.StatusConflict, "Two-factor authentication is already set up.")
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: cred.Email,
	})
	if err != nil {
		slog.Error("totp generate failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := a.totp.SetTOTPSecret(r.Context(), cred.ID, key.Secret()); err != nil {
		slog.Error("save totp secret failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	qrPNG, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		slog.Error("qr code generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, twoFASetupResponse{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
		QRCode:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrPNG),
	})
}

type twoFAVerifyRequest struct {
	Code string `json:"code"`
}

// TwoFAVerify validates a TOTP code and marks the session as having passed
// the second factor. The first successful code after setup enables 2FA.
func (a *Auth) TwoFAVerify(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromCtx(r.Context())

	var req twoFAVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if msg := validateTOTPCode(req.Code); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	cred, err := a.totp.FindCredential(r.Context(), sess.UserID)
	if err != nil || cred == nil {
		slog.Error("credential lookup for 2fa failed", "user_id", sess.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if cred.TOTPSecret == nil {
		writeError(w, http.StatusConflict, "Set up two-factor authentication first.")
		return
	}

	if !totp.Validate(req.Code, *cred.TOTPSecret) {
		writeError(w, http.StatusUnauthorized, "Invalid code. Please try again.")
		return
	}

	if cred.Needs2FASetup() {
		if err := a.totp.EnableTOTP(r.Context(), cred.ID); err != nil {
			slog.Error("enable totp failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if _, err := a.gate.RefreshProfile(r.Context(), cred.ID); err != nil {
			slog.Warn("refresh after enabling 2fa failed", "user_id", cred.ID, "error", err)
		}
	}

	sess.TwoFADone = true
	if _, err := a.sessions.Rotate(r.Context(), w, r, sess); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			writeError(w, http.StatusUnauthorized, "Your session has expired. Please sign in again.")
			return
		}
		slog.Error("session rotate failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"two_fa_done": true})
}
