// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"

	"novelpress/internal/models"
)

// createCode stores a promo code through the ledger as admin.
func (env *testEnv) createCode(t *testing.T, admin *models.Identity, discountType models.DiscountType, value float64) *models.PromoCode {
	t.Helper()
	c, err := env.Ledger.Create(context.Background(), admin.ID, models.CodeSpec{
		Code:          "T" + strings.ToUpper(uuid.NewString()[:10]),
		DiscountType:  discountType,
		DiscountValue: value,
	})
	if err != nil {
		t.Fatalf("Create code: %v", err)
	}
	t.Cleanup(func() { env.DB.Exec("DELETE FROM promo_codes WHERE id = $1", c.ID) })
	return c
}

func postCode(t *testing.T, h http.HandlerFunc, u *models.Identity, body any) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h(rr, as(jsonRequest(t, http.MethodPost, "/api/codes", body), u, false))
	return rr
}

func TestValidateCode(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, models.RoleAdmin)
	reader := env.createUser(t, models.RoleUser)
	code := env.createCode(t, admin, models.DiscountPercentage, 25)

	rr := postCode(t, env.CodesH.Validate, reader, map[string]string{"code": "  " + code.Code + " "})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var got codeView
	decode(t, rr, &got)
	if got.Code != code.Code || got.DiscountValue != 25 {
		t.Errorf("view = %+v", got)
	}
	if got.Price != nil || got.FinalPrice != nil {
		t.Error("no novel given, so no quote expected")
	}
	if strings.Contains(rr.Body.String(), "created_by") {
		t.Error("creator must not be exposed to readers")
	}
}

func TestValidateCodeQuotesPrice(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, models.RoleAdmin)
	author := env.createUser(t, models.RoleAuthor)
	reader := env.createUser(t, models.RoleUser)
	code := env.createCode(t, admin, models.DiscountPercentage, 25)
	n := env.createNovel(t, author, "Priced", 20, true)

	rr := postCode(t, env.CodesH.Validate, reader, map[string]any{"code": code.Code, "novel_id": n.ID})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var got codeView
	decode(t, rr, &got)
	if got.Price == nil || *got.Price != 20 {
		t.Errorf("price = %v, want 20", got.Price)
	}
	if got.FinalPrice == nil || *got.FinalPrice != 15 {
		t.Errorf("final_price = %v, want 15", got.FinalPrice)
	}
}

func TestValidateCodeUnknown(t *testing.T) {
	env := newTestEnv(t)
	reader := env.createUser(t, models.RoleUser)

	for _, code := range []string{"", "NOPE-" + uuid.NewString()} {
		rr := postCode(t, env.CodesH.Validate, reader, map[string]string{"code": code})
		if rr.Code != http.StatusNotFound {
			t.Errorf("code %q: status = %d, want 404", code, rr.Code)
		}
	}
}

func TestValidateCodeExpired(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, models.RoleAdmin)
	reader := env.createUser(t, models.RoleUser)
	code := env.createCode(t, admin, models.DiscountFixed, 5)

	if _, err := env.DB.Exec(`UPDATE promo_codes SET expires_at = NOW() - INTERVAL '1 hour' WHERE id = $1`, code.ID); err != nil {
		t.Fatalf("expire code: %v", err)
	}

	rr := postCode(t, env.CodesH.Validate, reader, map[string]string{"code": code.Code})
	if rr.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", rr.Code)
	}
}

func TestRedeemGrantsEntitlement(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, models.RoleAdmin)
	author := env.createUser(t, models.RoleAuthor)
	reader := env.createUser(t, models.RoleUser)
	code := env.createCode(t, admin, models.DiscountPercentage, 100)
	n := env.createNovel(t, author, "Gift", 12, true)

	rr := postCode(t, env.CodesH.Redeem, reader, map[string]any{"code": code.Code, "novel_id": n.ID})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var got redeemResponse
	decode(t, rr, &got)
	if got.NovelID != n.ID || !slices.Contains(got.Entitlements, n.ID) {
		t.Errorf("redeem = %+v", got)
	}

	if m := env.Gate.CachedProfile(reader.ID); m == nil || !m.Entitled(n.ID) {
		t.Error("mirror should carry the new entitlement")
	}

	stored, err := env.Novels.FindByID(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.Sales != 1 {
		t.Errorf("sales = %d, want 1", stored.Sales)
	}

	again := postCode(t, env.CodesH.Redeem, reader, map[string]any{"code": code.Code, "novel_id": n.ID})
	if again.Code != http.StatusNotFound {
		t.Errorf("second redeem status = %d, want 404", again.Code)
	}
}

func TestRedeemUnlocksDownload(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, models.RoleAdmin)
	author := env.createUser(t, models.RoleAuthor)
	reader := env.createUser(t, models.RoleUser)
	code := env.createCode(t, admin, models.DiscountFixed, 50)
	n := env.createNovel(t, author, "Locked", 30, true)

	up := httptest.NewRecorder()
	env.NovelsH.Upload(up, as(multipartUpload(t, n.ID, "document", "locked.pdf", pdfBytes), author, false))
	if up.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", up.Code, up.Body.String())
	}

	if rr := postCode(t, env.CodesH.Redeem, reader, map[string]any{"code": code.Code, "novel_id": n.ID}); rr.Code != http.StatusOK {
		t.Fatalf("redeem status = %d: %s", rr.Code, rr.Body.String())
	}

	rr := httptest.NewRecorder()
	r := withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), "id", n.ID.String())
	env.NovelsH.Download(rr, as(r, env.Gate.CachedProfile(reader.ID), false))
	if rr.Code != http.StatusOK {
		t.Errorf("download after redeem = %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRedeemRequiresNovel(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, models.RoleAdmin)
	reader := env.createUser(t, models.RoleUser)
	code := env.createCode(t, admin, models.DiscountFixed, 5)

	rr := postCode(t, env.CodesH.Redeem, reader, map[string]string{"code": code.Code})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}

	rr = postCode(t, env.CodesH.Redeem, reader, map[string]any{"code": code.Code, "novel_id": uuid.New()})
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing novel status = %d, want 404", rr.Code)
	}

	// A failed redemption leaves the code usable.
	if rr := postCode(t, env.CodesH.Validate, reader, map[string]string{"code": code.Code}); rr.Code != http.StatusOK {
		t.Errorf("validate after failed redeem = %d, want 200", rr.Code)
	}
}
