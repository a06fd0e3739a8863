// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package stats aggregates the admin dashboard figures.
package stats

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"novelpress/internal/models"
)

// ErrForbidden is returned when a non-admin asks for statistics.
var ErrForbidden = errors.New("only admins can view statistics")

// NovelTotals reads novel aggregates.
type NovelTotals interface {
	Totals(ctx context.Context) (models.NovelTotals, error)
}

// UserCounter counts profiles.
type UserCounter interface {
	Count(ctx context.Context) (int, error)
}

// CodeCounter counts promo codes.
type CodeCounter interface {
	Counts(ctx context.Context) (models.CodeCounts, error)
}

// Collector gathers SiteStats from the three stores.
type Collector struct {
	novels NovelTotals
	users  UserCounter
	codes  CodeCounter
}

// New creates a collector.
func New(novels NovelTotals, users UserCounter, codes CodeCounter) *Collector {
	return &Collector{novels: novels, users: users, codes: codes}
}

// Collect reads all aggregates concurrently. Any failed read fails the
// whole call; partial figures are never returned.
func (c *Collector) Collect(ctx context.Context, actor *models.Identity) (*models.SiteStats, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	var (
		novels models.NovelTotals
		users  int
		codes  models.CodeCounts
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if novels, err = c.novels.Totals(gctx); err != nil {
			return fmt.Errorf("novel totals: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if users, err = c.users.Count(gctx); err != nil {
			return fmt.Errorf("user count: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if codes, err = c.codes.Counts(gctx); err != nil {
			return fmt.Errorf("code counts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect stats: %w", err)
	}

	return &models.SiteStats{
		TotalNovels:    novels.Count,
		TotalUsers:     users,
		TotalCodes:     codes.Total,
		ActiveCodes:    codes.Active,
		TotalDownloads: novels.Downloads,
		TotalSales:     novels.Sales,
	}, nil
}
