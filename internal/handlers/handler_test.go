// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides shared test infrastructure for handler
// integration tests. Tests are skipped when PostgreSQL or Valkey are
// unavailable.
package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"novelpress/internal/auth"
	"novelpress/internal/cache"
	"novelpress/internal/database"
	"novelpress/internal/ledger"
	"novelpress/internal/library"
	"novelpress/internal/middleware"
	"novelpress/internal/models"
	"novelpress/internal/session"
	"novelpress/internal/stats"
	"novelpress/internal/store"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test PostgreSQL and runs migrations.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "novelpress")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "novelpress")
	dsn := "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping: cannot open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping: DB not reachable: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// testValkeyClient returns a Redis client for handler tests on DB 15.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr:     envOr("VALKEY_HOST", "localhost") + ":" + envOr("VALKEY_PORT", "6379"),
		Password: os.Getenv("VALKEY_PASSWORD"),
		DB:       15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		for _, pattern := range []string{"session:*", "session_user:*", "listing:*"} {
			keys, _ := client.Keys(ctx, pattern).Result()
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
		}
		client.Close()
	})

	return client
}

// memBlobs is an in-memory object store for upload tests.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memBlobs) Put(_ context.Context, key string, _ bool, _ string, body io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return "https://objects.test/" + key, nil
}

func (m *memBlobs) Remove(_ context.Context, key string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memBlobs) RemovePrefix(_ context.Context, prefix string, _ bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
			n++
		}
	}
	return n, nil
}

func (m *memBlobs) SignedURL(_ context.Context, key string, _ bool, ttl time.Duration, name string) (string, error) {
	return "https://objects.test/" + key + "?expires=" + ttl.String() + "&name=" + name, nil
}

// testEnv holds all dependencies for handler integration tests.
type testEnv struct {
	DB       *sql.DB
	Valkey   *redis.Client
	Sessions *session.Store
	Users    *store.UserStore
	Novels   *store.NovelStore
	Codes    *store.PromoCodeStore
	Settings *store.SiteSettingStore
	Profiles *cache.ProfileCache
	Listings *cache.ListingCache
	Blobs    *memBlobs
	Gate     *auth.Gate
	Library  *library.Library
	Ledger   *ledger.Ledger
	Auth     *Auth
	NovelsH  *Novels
	CodesH   *Codes
	Admin    *Admin
}

// newTestEnv creates a complete test environment with all handler dependencies.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testDB(t)
	vk := testValkeyClient(t)

	env := &testEnv{
		DB:       db,
		Valkey:   vk,
		Sessions: session.NewStore(vk, false),
		Users:    store.NewUserStore(db),
		Novels:   store.NewNovelStore(db),
		Codes:    store.NewPromoCodeStore(db),
		Settings: store.NewSiteSettingStore(db),
		Profiles: cache.NewProfileCache(100, time.Minute),
		Listings: cache.NewListingCache(vk, time.Minute),
		Blobs:    &memBlobs{objects: map[string][]byte{}},
	}
	env.Gate = auth.NewGate(env.Users, env.Users, env.Profiles)
	env.Library = library.New(env.Novels, env.Blobs, env.Listings, 15*time.Minute)
	env.Ledger = ledger.New(env.Codes, env.Gate)
	collector := stats.New(env.Novels, env.Users, env.Codes)

	env.Auth = NewAuth(env.Gate, env.Sessions, env.Users)
	env.NovelsH = NewNovels(env.Library, env.Listings)
	env.CodesH = NewCodes(env.Ledger, env.Gate, env.Library, env.Listings)
	env.Admin = NewAdmin(env.Gate, env.Library, env.Ledger, collector, env.Settings, env.Users, env.Sessions)
	return env
}

// createUser registers an account with the given role through the gate
// and removes it when the test finishes.
func (env *testEnv) createUser(t *testing.T, role models.Role) *models.Identity {
	t.Helper()
	ctx := context.Background()

	email := "h-" + uuid.NewString()[:8] + "@handler-test.local"
	u, err := env.Gate.Register(ctx, "Test "+string(role), email, "testpass123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(func() { env.DB.Exec("DELETE FROM credentials WHERE id = $1", u.ID) })

	if role != models.RoleUser {
		if err := env.Users.SetRole(ctx, u.ID, role); err != nil {
			t.Fatalf("SetRole: %v", err)
		}
		if u, err = env.Gate.RefreshProfile(ctx, u.ID); err != nil {
			t.Fatalf("RefreshProfile: %v", err)
		}
	}
	return u
}

// createNovel stores an approved or pending novel owned by author.
func (env *testEnv) createNovel(t *testing.T, author *models.Identity, title string, price float64, approve bool) *models.Novel {
	t.Helper()
	ctx := context.Background()

	n, err := env.Novels.Create(ctx, &models.Novel{Title: title, Price: price, AuthorID: &author.ID, AuthorName: author.Name})
	if err != nil {
		t.Fatalf("Create novel: %v", err)
	}
	t.Cleanup(func() { env.DB.Exec("DELETE FROM novels WHERE id = $1", n.ID) })

	if approve {
		if err := env.Novels.SetStatus(ctx, n.ID, models.NovelStatusPending, models.NovelStatusApproved); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}
		n.Status = models.NovelStatusApproved
	}
	return n
}

// jsonRequest builds a request with body encoded as JSON.
func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// as attaches the session and identity LoadSession and LoadIdentity would
// have placed on the request.
func as(r *http.Request, u *models.Identity, twoFADone bool) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.SessionKey, &session.Data{
		UserID: u.ID, Email: u.Email, Name: u.Name, TwoFADone: twoFADone,
	})
	ctx = context.WithValue(ctx, middleware.IdentityKey, u)
	return r.WithContext(ctx)
}

// withURLParams adds chi URL parameters to a request, given as key/value
// pairs.
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// response is a decoded API envelope.
type response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// decode reads the envelope and, if into is set, its data.
func decode(t *testing.T, rr *httptest.ResponseRecorder, into any) response {
	t.Helper()
	var resp response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope %q: %v", rr.Body.String(), err)
	}
	if into != nil && resp.Success {
		if err := json.Unmarshal(resp.Data, into); err != nil {
			t.Fatalf("decode data %s: %v", resp.Data, err)
		}
	}
	return resp
}
