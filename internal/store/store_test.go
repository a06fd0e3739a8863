// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// store_test.go provides a shared test database helper for all store
// integration tests. With TEST_INTEGRATION set the tests run against a
// throwaway PostgreSQL container; otherwise they use the local database
// from docker-compose.yml and are skipped if it is not available.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"novelpress/internal/database"
	"novelpress/internal/models"
)

var (
	containerOnce sync.Once
	container     *postgres.PostgresContainer
	containerDSN  string
	containerErr  error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if container != nil {
		_ = container.Terminate(context.Background())
	}
	os.Exit(code)
}

// testDSN returns the PostgreSQL connection string for the local database.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "novelpress")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "novelpress")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// startContainer boots one PostgreSQL container for the whole package run.
func startContainer() (string, error) {
	containerOnce.Do(func() {
		ctx := context.Background()
		container, containerErr = postgres.Run(ctx,
			"docker.io/postgres:17-alpine",
			postgres.WithDatabase("novelpress_test"),
			postgres.WithUsername("novelpress"),
			postgres.WithPassword("test-password"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if containerErr != nil {
			containerErr = fmt.Errorf("start postgres container: %w", containerErr)
			return
		}
		containerDSN, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	return containerDSN, containerErr
}

// testDB opens a connection to the test database and runs migrations.
// If the local database is unavailable, the test is skipped. A cleanup
// function is registered to close the connection when the test finishes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := testDSN()
	if os.Getenv("TEST_INTEGRATION") != "" {
		var err error
		if dsn, err = startContainer(); err != nil {
			t.Fatalf("integration database: %v", err)
		}
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}

	// Migrate is idempotent, so every test can call it.
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// uniqueEmail returns an address no other test run will use.
func uniqueEmail(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8] + "@store-test.local"
}

// createTestUser registers a credential and default profile and removes
// both when the test finishes.
func createTestUser(t *testing.T, db *sql.DB, prefix string) *models.Identity {
	t.Helper()
	ctx := context.Background()
	s := NewUserStore(db)

	email := uniqueEmail(prefix)
	cred, err := s.CreateCredential(ctx, email, "testpass123")
	if err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}
	t.Cleanup(func() { db.Exec("DELETE FROM credentials WHERE id = $1", cred.ID) })

	u, err := s.CreateProfile(ctx, cred.ID, "Test "+prefix, email)
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	return u
}

// createTestNovel inserts a novel and removes it when the test finishes.
func createTestNovel(t *testing.T, db *sql.DB, title string, author *models.Identity) *models.Novel {
	t.Helper()

	n := &models.Novel{Title: title, Category: "fantasy", Price: 4.99}
	if author != nil {
		n.AuthorID = &author.ID
		n.AuthorName = author.Name
	}
	out, err := NewNovelStore(db).Create(context.Background(), n)
	if err != nil {
		t.Fatalf("Create novel: %v", err)
	}
	t.Cleanup(func() { db.Exec("DELETE FROM novels WHERE id = $1", out.ID) })
	return out
}

// createTestCode inserts a promo code and removes it when the test finishes.
func createTestCode(t *testing.T, db *sql.DB, spec models.CodeSpec, createdBy uuid.UUID) *models.PromoCode {
	t.Helper()

	c, err := NewPromoCodeStore(db).Create(context.Background(), spec.Normalize(), createdBy)
	if err != nil {
		t.Fatalf("Create code: %v", err)
	}
	t.Cleanup(func() { db.Exec("DELETE FROM promo_codes WHERE id = $1", c.ID) })
	return c
}
