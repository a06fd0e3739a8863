// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package main is the entry point for the NovelPress API server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"novelpress/internal/auth"
	"novelpress/internal/cache"
	"novelpress/internal/config"
	"novelpress/internal/database"
	"novelpress/internal/handlers"
	"novelpress/internal/ledger"
	"novelpress/internal/library"
	"novelpress/internal/middleware"
	"novelpress/internal/router"
	"novelpress/internal/session"
	"novelpress/internal/stats"
	"novelpress/internal/storage"
	"novelpress/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// JSON logs in production, readable text in development.
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
	)

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Seed the development admin (no-op if it already exists).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}

	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	secureCookies := !cfg.IsDev()
	sessionStore := session.NewStore(valkeyClient, secureCookies)

	userStore := store.NewUserStore(db)
	novelStore := store.NewNovelStore(db)
	codeStore := store.NewPromoCodeStore(db)
	settingStore := store.NewSiteSettingStore(db)

	profiles := cache.NewProfileCache(cfg.ProfileCacheSize, cfg.ProfileCacheTTL)
	listings := cache.NewListingCache(valkeyClient, cache.DefaultListingTTL)
	gate := auth.NewGate(userStore, userStore, profiles)

	// Object storage is optional; without it uploads and downloads answer
	// 503. A nil *storage.Client must not become a non-nil interface.
	var blobs library.BlobStore
	if cfg.StorageEnabled() {
		storageClient, err := storage.New(
			cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey,
			cfg.S3BucketPublic, cfg.S3BucketPrivate, cfg.S3PublicURL,
		)
		if err != nil {
			slog.Error("failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		blobs = storageClient
		slog.Info("s3 storage connected",
			"endpoint", cfg.S3Endpoint,
			"public_bucket", cfg.S3BucketPublic,
			"private_bucket", cfg.S3BucketPrivate,
		)
	} else {
		slog.Warn("s3 storage not configured, uploads disabled")
	}

	lib := library.New(novelStore, blobs, listings, cfg.DownloadURLTTL)
	codes := ledger.New(codeStore, gate)
	collector := stats.New(novelStore, userStore, codeStore)

	limiter := middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst)
	defer limiter.Stop()

	r := router.New(router.Deps{
		Sessions:      sessionStore,
		Identities:    gate,
		Auth:          handlers.NewAuth(gate, sessionStore, userStore),
		Novels:        handlers.NewNovels(lib, listings),
		Codes:         handlers.NewCodes(codes, gate, lib, listings),
		Admin:         handlers.NewAdmin(gate, lib, codes, collector, settingStore, userStore, sessionStore),
		Limiter:       limiter,
		SecureCookies: secureCookies,
	})

	// WriteTimeout must cover manuscript uploads of up to 100 MB.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}
