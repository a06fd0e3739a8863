// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"novelpress/internal/cache"
	"novelpress/internal/models"
	"novelpress/internal/store"
)

// fakeAccounts is an in-memory Credentials and Profiles implementation.
// Passwords are stored in plain text; hashing is the store's concern.
type fakeAccounts struct {
	mu         sync.Mutex
	creds      map[uuid.UUID]*models.Credential
	profiles   map[uuid.UUID]*models.Identity
	profileErr error
	deleteErr  error
	deleted    []uuid.UUID
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		creds:    map[uuid.UUID]*models.Credential{},
		profiles: map[uuid.UUID]*models.Identity{},
	}
}

func (f *fakeAccounts) CreateCredential(_ context.Context, email, password string) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(email)
	for _, c := range f.creds {
		if c.Email == email {
			return nil, store.ErrEmailTaken
		}
	}
	c := &models.Credential{ID: uuid.New(), Email: email, PasswordHash: password, CreatedAt: time.Now()}
	f.creds[c.ID] = c
	return c, nil
}

func (f *fakeAccounts) FindCredentialByEmail(_ context.Context, email string) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.creds {
		if c.Email == strings.ToLower(email) {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) CheckPassword(c *models.Credential, password string) bool {
	return c.PasswordHash == password
}

func (f *fakeAccounts) DeleteCredential(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	delete(f.creds, id)
	delete(f.profiles, id)
	return nil
}

func (f *fakeAccounts) CreateProfile(_ context.Context, id uuid.UUID, name, email string) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	u := &models.Identity{
		ID: id, Name: name, Email: email, Role: models.RoleUser,
		Subscription: "free", Entitlements: []uuid.UUID{}, CreatedAt: time.Now(),
	}
	f.profiles[id] = u
	return u, nil
}

func (f *fakeAccounts) FindProfile(_ context.Context, id uuid.UUID) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeAccounts) UpdateProfile(_ context.Context, id uuid.UUID, patch models.ProfilePatch) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Phone != nil {
		u.Phone = *patch.Phone
	}
	return u, nil
}

func (f *fakeAccounts) SetRole(_ context.Context, id uuid.UUID, role models.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Role = role
	return nil
}

func (f *fakeAccounts) List(context.Context) ([]models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Identity
	for _, u := range f.profiles {
		out = append(out, *u)
	}
	return out, nil
}

func newTestGate() (*Gate, *fakeAccounts) {
	f := newFakeAccounts()
	return NewGate(f, f, cache.NewProfileCache(100, time.Hour)), f
}

// registerAdmin registers an account, promotes it in the store and
// refreshes the mirror.
func registerAdmin(t *testing.T, g *Gate, f *fakeAccounts) *models.Identity {
	t.Helper()
	ctx := context.Background()
	u, err := g.Register(ctx, "Admin", "admin-"+uuid.NewString()[:6]+"@example.test", "correct-horse")
	if err != nil {
		t.Fatalf("Register admin: %v", err)
	}
	if err := f.SetRole(ctx, u.ID, models.RoleAdmin); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	u, err = g.RefreshProfile(ctx, u.ID)
	if err != nil {
		t.Fatalf("RefreshProfile: %v", err)
	}
	return u
}

func TestRegisterCreatesDefaultProfile(t *testing.T) {
	g, _ := newTestGate()

	u, err := g.Register(context.Background(), "  Ana  ", "ana@example.test", "correct-horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Name != "Ana" || u.Role != models.RoleUser || u.Credits != 0 || len(u.Entitlements) != 0 {
		t.Errorf("unexpected defaults: %+v", u)
	}

	cached := g.CachedProfile(u.ID)
	if cached == nil || cached.ID != u.ID {
		t.Fatal("registered identity should be mirrored")
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name, email, password string
		want                  error
	}{
		{"", "a@example.test", "correct-horse", ErrNameRequired},
		{"Ana", "not-an-email", "correct-horse", ErrInvalidEmail},
		{"Ana", "Ana <a@example.test>", "correct-horse", ErrInvalidEmail},
		{"Ana", "a@example.test", "short", ErrWeakPassword},
		{"Ana", "a@example.test", strings.Repeat("x", MaxPasswordBytes+1), ErrPasswordTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.want.Error(), func(t *testing.T) {
			g, f := newTestGate()
			_, err := g.Register(context.Background(), tt.name, tt.email, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if len(f.creds) != 0 {
				t.Error("invalid registration created a credential")
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	g, _ := newTestGate()
	ctx := context.Background()

	if _, err := g.Register(ctx, "Ana", "ana@example.test", "correct-horse"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := g.Register(ctx, "Other", "ana@example.test", "correct-horse")
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("got %v, want ErrEmailTaken", err)
	}
}

func TestRegisterCompensatesFailedProfile(t *testing.T) {
	g, f := newTestGate()
	f.profileErr = errors.New("profiles unavailable")

	_, err := g.Register(context.Background(), "Ana", "ana@example.test", "correct-horse")
	if err == nil {
		t.Fatal("expected error when profile creation fails")
	}
	if len(f.creds) != 0 {
		t.Error("credential should be deleted after profile failure")
	}
	if len(f.deleted) != 1 {
		t.Errorf("expected one compensating delete, got %d", len(f.deleted))
	}

	// The email is free again.
	f.profileErr = nil
	if _, err := g.Register(context.Background(), "Ana", "ana@example.test", "correct-horse"); err != nil {
		t.Errorf("retry after compensation: %v", err)
	}
}

func TestRegisterReportsFailedCompensation(t *testing.T) {
	g, f := newTestGate()
	profileErr := errors.New("profiles unavailable")
	deleteErr := errors.New("credentials unavailable")
	f.profileErr = profileErr
	f.deleteErr = deleteErr

	_, err := g.Register(context.Background(), "Ana", "ana@example.test", "correct-horse")
	if !errors.Is(err, profileErr) || !errors.Is(err, deleteErr) {
		t.Errorf("expected both causes in %v", err)
	}
}

func TestSignIn(t *testing.T) {
	g, _ := newTestGate()
	ctx := context.Background()

	reg, err := g.Register(ctx, "Ana", "ana@example.test", "correct-horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	g.SignOut(reg.ID)
	if g.CachedProfile(reg.ID) != nil {
		t.Fatal("SignOut should evict the mirror")
	}

	tests := []struct {
		name, email, password string
		wantErr               error
	}{
		{"correct", "ana@example.test", "correct-horse", nil},
		{"email case", "ANA@example.test", "correct-horse", nil},
		{"wrong password", "ana@example.test", "wrong-horse", ErrInvalidCredentials},
		{"unknown email", "bob@example.test", "correct-horse", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := g.SignIn(ctx, tt.email, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && (u == nil || g.CachedProfile(u.ID) == nil) {
				t.Error("successful sign-in should mirror the profile")
			}
		})
	}
}

func TestSignInWithoutProfile(t *testing.T) {
	g, f := newTestGate()
	ctx := context.Background()
	if _, err := f.CreateCredential(ctx, "orphan@example.test", "correct-horse"); err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}

	_, err := g.SignIn(ctx, "orphan@example.test", "correct-horse")
	if !errors.Is(err, ErrProfileMissing) {
		t.Errorf("got %v, want ErrProfileMissing", err)
	}
}

func TestRefreshProfileReflectsStore(t *testing.T) {
	g, f := newTestGate()
	ctx := context.Background()
	u, _ := g.Register(ctx, "Ana", "ana@example.test", "correct-horse")

	novel := uuid.New()
	f.profiles[u.ID].Entitlements = []uuid.UUID{novel}

	if g.CachedProfile(u.ID).Entitled(novel) {
		t.Fatal("mirror should not change until refreshed")
	}
	if _, err := g.RefreshProfile(ctx, u.ID); err != nil {
		t.Fatalf("RefreshProfile: %v", err)
	}
	if !g.CachedProfile(u.ID).Entitled(novel) {
		t.Error("mirror should reflect the refreshed entitlements")
	}

	delete(f.profiles, u.ID)
	if _, err := g.RefreshProfile(ctx, u.ID); !errors.Is(err, ErrProfileMissing) {
		t.Errorf("got %v, want ErrProfileMissing", err)
	}
	if g.CachedProfile(u.ID) != nil {
		t.Error("missing profile should be evicted from the mirror")
	}
}

func TestHasRoleExactMatch(t *testing.T) {
	g, f := newTestGate()
	admin := registerAdmin(t, g, f)

	ctx := context.Background()

	if !g.HasRole(ctx, admin.ID, models.RoleAdmin) {
		t.Error("admin should hold admin role")
	}
	if g.HasRole(ctx, admin.ID, models.RoleAuthor) {
		t.Error("roles are not hierarchical")
	}
	if g.HasRole(ctx, uuid.New(), models.RoleUser) {
		t.Error("unknown identity holds no role")
	}
}

func TestHasRoleAfterMirrorEviction(t *testing.T) {
	g, f := newTestGate()
	admin := registerAdmin(t, g, f)
	ctx := context.Background()

	g.mirror.Remove(admin.ID)

	if !g.HasRole(ctx, admin.ID, models.RoleAdmin) {
		t.Fatal("evicted admin lost the admin role")
	}
	if g.CachedProfile(admin.ID) == nil {
		t.Error("role lookup should repopulate the mirror")
	}
	if _, err := g.ListUsers(ctx, admin.ID); err != nil {
		t.Errorf("ListUsers after eviction: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	g, _ := newTestGate()
	ctx := context.Background()
	u, _ := g.Register(ctx, "Ana", "ana@example.test", "correct-horse")

	phone := "+40 700 000 000"
	got, err := g.UpdateProfile(ctx, u.ID, models.ProfilePatch{Phone: &phone})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.Phone != phone || g.CachedProfile(u.ID).Phone != phone {
		t.Error("phone not updated in store and mirror")
	}

	blank := "   "
	if _, err := g.UpdateProfile(ctx, u.ID, models.ProfilePatch{Name: &blank}); !errors.Is(err, ErrNameRequired) {
		t.Errorf("blank name: got %v, want ErrNameRequired", err)
	}
	if _, err := g.UpdateProfile(ctx, uuid.New(), models.ProfilePatch{Phone: &phone}); !errors.Is(err, ErrProfileMissing) {
		t.Errorf("unknown user: got %v, want ErrProfileMissing", err)
	}
}

func TestAdminOperations(t *testing.T) {
	g, f := newTestGate()
	ctx := context.Background()
	admin := registerAdmin(t, g, f)
	reader, _ := g.Register(ctx, "Reader", "reader@example.test", "correct-horse")

	if _, err := g.ListUsers(ctx, reader.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("ListUsers as reader: got %v, want ErrForbidden", err)
	}
	users, err := g.ListUsers(ctx, admin.ID)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("users: got %d, want 2", len(users))
	}

	if err := g.SetRole(ctx, reader.ID, admin.ID, models.RoleUser); !errors.Is(err, ErrForbidden) {
		t.Errorf("SetRole as reader: got %v, want ErrForbidden", err)
	}
	if err := g.SetRole(ctx, admin.ID, reader.ID, "overlord"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("invalid role: got %v, want ErrInvalidRole", err)
	}
	if err := g.SetRole(ctx, admin.ID, uuid.New(), models.RoleAuthor); !errors.Is(err, ErrProfileMissing) {
		t.Errorf("unknown user: got %v, want ErrProfileMissing", err)
	}

	if err := g.SetRole(ctx, admin.ID, reader.ID, models.RoleAuthor); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if !g.HasRole(ctx, reader.ID, models.RoleAuthor) {
		t.Error("mirrored target should see the new role immediately")
	}
}
