// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"novelpress/internal/models"
)

// Listing limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// prefixCeiling is appended to a search term to form the exclusive upper
// bound of an ordered prefix range. Under byte collation every title that
// starts with the term sorts below term+U+10FFFF.
const prefixCeiling = "\U0010FFFF"

// NovelStore handles novel records and their counters.
type NovelStore struct {
	db *sql.DB
}

// NewNovelStore creates a new NovelStore.
func NewNovelStore(db *sql.DB) *NovelStore {
	return &NovelStore{db: db}
}

const novelColumns = `id, title, description, category, price, author_id, author_name, status,
	featured, downloads, sales, views, document_url, document_name, document_size, cover_url,
	created_at, updated_at`

func scanNovel(row interface{ Scan(...any) error }) (*models.Novel, error) {
	n := &models.Novel{}
	err := row.Scan(
		&n.ID, &n.Title, &n.Description, &n.Category, &n.Price, &n.AuthorID, &n.AuthorName, &n.Status,
		&n.Featured, &n.Downloads, &n.Sales, &n.Views, &n.DocumentURL, &n.DocumentName, &n.DocumentSize, &n.CoverURL,
		&n.CreatedAt, &n.UpdatedAt,
	)
	return n, err
}

// Create inserts a novel. Status, counters and the featured flag always
// start at their defaults regardless of what n carries.
func (s *NovelStore) Create(ctx context.Context, n *models.Novel) (*models.Novel, error) {
	out, err := scanNovel(s.db.QueryRowContext(ctx, `
		INSERT INTO novels (title, description, category, price, author_id, author_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+novelColumns,
		n.Title, n.Description, n.Category, n.Price, n.AuthorID, n.AuthorName,
	))
	if err != nil {
		return nil, fmt.Errorf("create novel: %w", err)
	}
	return out, nil
}

// FindByID retrieves a novel. Returns nil if not found.
func (s *NovelStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Novel, error) {
	n, err := scanNovel(s.db.QueryRowContext(ctx, `SELECT `+novelColumns+` FROM novels WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find novel: %w", err)
	}
	return n, nil
}

// Update merges the non-nil fields of patch and refreshes updated_at.
func (s *NovelStore) Update(ctx context.Context, id uuid.UUID, patch models.NovelPatch) (*models.Novel, error) {
	n, err := scanNovel(s.db.QueryRowContext(ctx, `
		UPDATE novels SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			category = COALESCE($4, category),
			price = COALESCE($5, price),
			featured = COALESCE($6, featured),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+novelColumns,
		id, patch.Title, patch.Description, patch.Category, patch.Price, patch.Featured,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update novel: %w", err)
	}
	return n, nil
}

// Delete removes a novel. Entitlements go with it; redeemed codes keep
// their history with used_for cleared.
func (s *NovelStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM novels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete novel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns novels matching q. A search term selects titles in the
// ordered range [term, term+U+10FFFF) sorted by title; otherwise the
// newest novels come first.
func (s *NovelStore) List(ctx context.Context, q models.NovelQuery) ([]models.Novel, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Status != "" {
		where = append(where, "status = "+arg(q.Status))
	}
	if q.FeaturedOnly {
		where = append(where, "featured")
	}
	order := "created_at DESC, id"
	if q.Search != "" {
		where = append(where,
			`title COLLATE "C" >= `+arg(q.Search),
			`title COLLATE "C" < `+arg(q.Search+prefixCeiling))
		order = `title COLLATE "C", id`
	}

	query := `SELECT ` + novelColumns + ` FROM novels`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ` + order + ` LIMIT ` + arg(clampLimit(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list novels: %w", err)
	}
	defer rows.Close()

	novels := []models.Novel{}
	for rows.Next() {
		n, err := scanNovel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan novel: %w", err)
		}
		novels = append(novels, *n)
	}
	return novels, rows.Err()
}

// SetAttachment records an uploaded file on the novel. For the document
// slot the file name and size are stored alongside the URL.
func (s *NovelStore) SetAttachment(ctx context.Context, id uuid.UUID, slot models.AttachmentSlot, url, name string, size int64) error {
	var (
		res sql.Result
		err error
	)
	switch slot {
	case models.SlotDocument:
		res, err = s.db.ExecContext(ctx, `
			UPDATE novels SET document_url = $2, document_name = $3, document_size = $4, updated_at = NOW()
			WHERE id = $1
		`, id, url, name, size)
	case models.SlotCover:
		res, err = s.db.ExecContext(ctx, `
			UPDATE novels SET cover_url = $2, updated_at = NOW() WHERE id = $1
		`, id, url)
	default:
		return fmt.Errorf("set attachment: unknown slot %q", slot)
	}
	if err != nil {
		return fmt.Errorf("set attachment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus moves a novel from one review state to another. The update is
// conditioned on the current state so concurrent reviews cannot both win.
func (s *NovelStore) SetStatus(ctx context.Context, id uuid.UUID, from, to models.NovelStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE novels SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return fmt.Errorf("set novel status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM novels WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check novel: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStateChanged
}

// IncrementDownloads atomically bumps the download counter.
func (s *NovelStore) IncrementDownloads(ctx context.Context, id uuid.UUID) error {
	return s.increment(ctx, id, "downloads")
}

// IncrementViews atomically bumps the view counter.
func (s *NovelStore) IncrementViews(ctx context.Context, id uuid.UUID) error {
	return s.increment(ctx, id, "views")
}

// column is one of a fixed set of identifiers, never user input.
func (s *NovelStore) increment(ctx context.Context, id uuid.UUID, column string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE novels SET `+column+` = `+column+` + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Totals aggregates novel counters for the dashboard.
func (s *NovelStore) Totals(ctx context.Context) (models.NovelTotals, error) {
	var t models.NovelTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(downloads), 0), COALESCE(SUM(sales), 0) FROM novels
	`).Scan(&t.Count, &t.Downloads, &t.Sales)
	if err != nil {
		return t, fmt.Errorf("novel totals: %w", err)
	}
	return t, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	}
	return n
}
