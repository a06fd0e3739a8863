// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package library is the content repository: novel records, their review
// lifecycle and their cover and manuscript attachments.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"novelpress/internal/markdown"
	"novelpress/internal/models"
	"novelpress/internal/slug"
	"novelpress/internal/storage"
	"novelpress/internal/store"
)

// Errors returned by the library. Messages are shown to users as-is.
var (
	ErrNotFound           = errors.New("novel not found")
	ErrForbidden          = errors.New("you do not have permission to change this novel")
	ErrInvalidTransition  = errors.New("only pending novels can be approved or rejected")
	ErrStorageUnavailable = errors.New("file storage is not configured")
	ErrInvalidSlot        = errors.New("attachment must be document or cover")
	ErrTitleRequired      = errors.New("title is required")
	ErrTitleTooLong       = errors.New("title is too long (max 300 characters)")
	ErrInvalidPrice       = errors.New("price must be zero or positive")
	ErrEmptyFile          = errors.New("file is empty")
	ErrFileTooLarge       = errors.New("file is too large")
	ErrUnsupportedType    = errors.New("file type is not allowed for this attachment")
	ErrNoDocument         = errors.New("novel has no document yet")
	ErrNotEntitled        = errors.New("redeem a code or buy this novel to download it")
)

// Size limits per attachment slot.
const (
	MaxDocumentSize = 100 << 20
	MaxCoverSize    = 10 << 20
	maxTitleLen     = 300
)

// allowedTypes lists the accepted content types per slot.
var allowedTypes = map[models.AttachmentSlot]map[string]bool{
	models.SlotDocument: {
		"application/pdf":      true,
		"application/epub+zip": true,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	},
	models.SlotCover: {
		"image/jpeg": true,
		"image/png":  true,
		"image/webp": true,
	},
}

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novelpress_uploads_total",
		Help: "Attachment uploads by slot and result.",
	}, []string{"slot", "result"})
	downloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novelpress_downloads_total",
		Help: "Signed manuscript download links issued.",
	})
)

// NovelStore is the novel persistence the library needs.
type NovelStore interface {
	Create(ctx context.Context, n *models.Novel) (*models.Novel, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Novel, error)
	Update(ctx context.Context, id uuid.UUID, patch models.NovelPatch) (*models.Novel, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q models.NovelQuery) ([]models.Novel, error)
	SetAttachment(ctx context.Context, id uuid.UUID, slot models.AttachmentSlot, url, name string, size int64) error
	SetStatus(ctx context.Context, id uuid.UUID, from, to models.NovelStatus) error
	IncrementDownloads(ctx context.Context, id uuid.UUID) error
	IncrementViews(ctx context.Context, id uuid.UUID) error
}

// BlobStore is the object storage for attachments.
type BlobStore interface {
	Put(ctx context.Context, key string, private bool, contentType string, body io.Reader, size int64) (string, error)
	Remove(ctx context.Context, key string, private bool) error
	RemovePrefix(ctx context.Context, prefix string, private bool) (int, error)
	SignedURL(ctx context.Context, key string, private bool, ttl time.Duration, downloadName string) (string, error)
}

// Invalidator drops cached listings after a mutation.
type Invalidator interface {
	InvalidateAll(ctx context.Context)
}

// Upload is a file submitted for an attachment slot.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Library is the content repository service.
type Library struct {
	novels      NovelStore
	blobs       BlobStore   // nil when storage is not configured
	listings    Invalidator // nil disables listing invalidation
	downloadTTL time.Duration
}

// New creates a library. blobs and listings may be nil.
func New(novels NovelStore, blobs BlobStore, listings Invalidator, downloadTTL time.Duration) *Library {
	return &Library{novels: novels, blobs: blobs, listings: listings, downloadTTL: downloadTTL}
}

// Create stores a new novel owned by actor. The novel starts pending with
// zero counters and is not featured.
func (l *Library) Create(ctx context.Context, actor *models.Identity, spec models.NovelSpec) (*models.Novel, error) {
	if !actor.CanPublish() {
		return nil, ErrForbidden
	}
	spec.Title = strings.TrimSpace(spec.Title)
	spec.Category = strings.TrimSpace(spec.Category)
	if err := validateTitle(spec.Title); err != nil {
		return nil, err
	}
	if err := validatePrice(spec.Price); err != nil {
		return nil, err
	}

	n, err := l.novels.Create(ctx, &models.Novel{
		Title:       spec.Title,
		Description: spec.Description,
		Category:    spec.Category,
		Price:       spec.Price,
		AuthorID:    &actor.ID,
		AuthorName:  actor.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("create novel: %w", err)
	}

	l.invalidate(ctx)
	slog.Info("novel created", "novel_id", n.ID, "author_id", actor.ID)
	return n, nil
}

// Get returns a novel by id.
func (l *Library) Get(ctx context.Context, id uuid.UUID) (*models.Novel, error) {
	n, err := l.novels.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get novel: %w", err)
	}
	if n == nil {
		return nil, ErrNotFound
	}
	return n, nil
}

// Update merges patch into a novel. The owner and admins may edit; only
// admins may change the featured flag.
func (l *Library) Update(ctx context.Context, actor *models.Identity, id uuid.UUID, patch models.NovelPatch) (*models.Novel, error) {
	n, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEdit(actor, n) {
		return nil, ErrForbidden
	}
	if patch.Featured != nil && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	if patch.Category != nil {
		category := strings.TrimSpace(*patch.Category)
		patch.Category = &category
	}
	if patch.Price != nil {
		if err := validatePrice(*patch.Price); err != nil {
			return nil, err
		}
	}
	if patch.Empty() {
		return n, nil
	}

	updated, err := l.novels.Update(ctx, id, patch)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update novel: %w", err)
	}

	l.invalidate(ctx)
	return updated, nil
}

// Delete removes a novel. Admin only. Stored attachments are removed on a
// best-effort basis after the record is gone.
func (l *Library) Delete(ctx context.Context, actor *models.Identity, id uuid.UUID) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	err := l.novels.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete novel: %w", err)
	}
	l.invalidate(ctx)
	slog.Info("novel deleted", "novel_id", id, "actor", actor.ID)

	if l.blobs == nil {
		return nil
	}
	bg := context.WithoutCancel(ctx)
	for _, slot := range []models.AttachmentSlot{models.SlotDocument, models.SlotCover} {
		prefix := slot.Prefix() + "/" + id.String() + "/"
		if _, err := l.blobs.RemovePrefix(bg, prefix, slot.Private()); err != nil {
			slog.Warn("failed to remove novel attachments", "novel_id", id, "slot", slot, "error", err)
		}
	}
	return nil
}

// List returns novels matching q.
func (l *Library) List(ctx context.Context, q models.NovelQuery) ([]models.Novel, error) {
	novels, err := l.novels.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list novels: %w", err)
	}
	return novels, nil
}

// AttachFile uploads a file into a novel's slot and records its URL. The
// object key is <prefix>/<novel id>/<file name>. progress, if set, receives
// the fraction of the file sent so far. The record is only touched after
// storage acknowledged the upload; if recording fails the object is
// removed again unless the record already points at it.
func (l *Library) AttachFile(ctx context.Context, actor *models.Identity, id uuid.UUID, slot models.AttachmentSlot, up Upload, progress storage.ProgressFunc) (string, error) {
	if !slot.Valid() {
		return "", ErrInvalidSlot
	}
	if l.blobs == nil {
		return "", ErrStorageUnavailable
	}
	if err := validateUpload(slot, up); err != nil {
		return "", err
	}

	n, err := l.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !canEdit(actor, n) {
		return "", ErrForbidden
	}

	name := slug.FileName(up.FileName)
	key := slot.Prefix() + "/" + id.String() + "/" + name
	body := storage.WithProgress(up.Body, up.Size, progress)

	url, err := l.blobs.Put(ctx, key, slot.Private(), up.ContentType, body, up.Size)
	if err != nil {
		uploadsTotal.WithLabelValues(string(slot), "upload_failed").Inc()
		return "", fmt.Errorf("upload %s: %w", slot, err)
	}

	if err := l.novels.SetAttachment(ctx, id, slot, url, name, up.Size); err != nil {
		uploadsTotal.WithLabelValues(string(slot), "record_failed").Inc()
		if key != attachedKey(n, slot) {
			if rerr := l.blobs.Remove(context.WithoutCancel(ctx), key, slot.Private()); rerr != nil {
				slog.Error("failed to remove orphaned upload", "key", key, "error", rerr)
			}
		}
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("record %s: %w", slot, err)
	}

	uploadsTotal.WithLabelValues(string(slot), "ok").Inc()
	l.invalidate(ctx)
	slog.Info("attachment uploaded", "novel_id", id, "slot", slot, "key", key, "size", up.Size)
	return url, nil
}

// attachedKey returns the object key the novel's slot currently points at,
// or "" when the slot is empty.
func attachedKey(n *models.Novel, slot models.AttachmentSlot) string {
	prefix := slot.Prefix() + "/" + n.ID.String() + "/"
	switch slot {
	case models.SlotDocument:
		if n.DocumentName != nil && *n.DocumentName != "" {
			return prefix + *n.DocumentName
		}
	case models.SlotCover:
		if n.CoverURL != nil {
			if i := strings.LastIndex(*n.CoverURL, "/"+prefix); i >= 0 {
				return (*n.CoverURL)[i+1:]
			}
		}
	}
	return ""
}

// Approve moves a pending novel to approved. Admin only.
func (l *Library) Approve(ctx context.Context, actor *models.Identity, id uuid.UUID) error {
	return l.review(ctx, actor, id, models.NovelStatusApproved)
}

// Reject moves a pending novel to rejected. Admin only.
func (l *Library) Reject(ctx context.Context, actor *models.Identity, id uuid.UUID) error {
	return l.review(ctx, actor, id, models.NovelStatusRejected)
}

func (l *Library) review(ctx context.Context, actor *models.Identity, id uuid.UUID, to models.NovelStatus) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	n, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if !n.Status.CanTransition(to) {
		return ErrInvalidTransition
	}
	// The store re-checks the status so a concurrent review loses cleanly.
	switch err := l.novels.SetStatus(ctx, id, n.Status, to); {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrStateChanged):
		return ErrInvalidTransition
	default:
		return fmt.Errorf("review novel: %w", err)
	}

	l.invalidate(ctx)
	slog.Info("novel reviewed", "novel_id", id, "status", to, "actor", actor.ID)
	return nil
}

// Download returns a short-lived signed URL for a novel's manuscript and
// counts the download. Free novels are open to everyone; paid novels need
// an entitlement. Owners and admins can always download. Unapproved
// novels are only visible to their owner and admins.
func (l *Library) Download(ctx context.Context, viewer *models.Identity, id uuid.UUID) (string, error) {
	n, err := l.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !Visible(viewer, n) {
		return "", ErrNotFound
	}
	if !canEdit(viewer, n) && !n.IsFree() && !viewer.Entitled(n.ID) {
		return "", ErrNotEntitled
	}
	if n.DocumentName == nil || *n.DocumentName == "" {
		return "", ErrNoDocument
	}
	if l.blobs == nil {
		return "", ErrStorageUnavailable
	}

	key := models.SlotDocument.Prefix() + "/" + n.ID.String() + "/" + *n.DocumentName
	downloadName := slug.Generate(n.Title)
	if downloadName == "" {
		downloadName = "novel"
	}
	downloadName += path.Ext(*n.DocumentName)

	url, err := l.blobs.SignedURL(ctx, key, true, l.downloadTTL, downloadName)
	if err != nil {
		return "", fmt.Errorf("sign download: %w", err)
	}
	if err := l.novels.IncrementDownloads(ctx, n.ID); err != nil {
		return "", fmt.Errorf("count download: %w", err)
	}
	downloadsTotal.Inc()
	return url, nil
}

// RecordView counts a view of a novel's detail page.
func (l *Library) RecordView(ctx context.Context, id uuid.UUID) error {
	err := l.novels.IncrementViews(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("record view: %w", err)
	}
	return nil
}

// DescriptionHTML renders a novel's Markdown description.
func DescriptionHTML(n *models.Novel) (string, error) {
	if strings.TrimSpace(n.Description) == "" {
		return "", nil
	}
	html, err := markdown.ToHTML(n.Description)
	if err != nil {
		return "", fmt.Errorf("render description: %w", err)
	}
	return html, nil
}

func (l *Library) invalidate(ctx context.Context) {
	if l.listings != nil {
		l.listings.InvalidateAll(context.WithoutCancel(ctx))
	}
}

// Visible reports whether viewer may see n. Approved novels are public;
// others only exist for their owner and admins. viewer may be nil.
func Visible(viewer *models.Identity, n *models.Novel) bool {
	return n.Status == models.NovelStatusApproved || canEdit(viewer, n)
}

func canEdit(actor *models.Identity, n *models.Novel) bool {
	return actor.IsAdmin() || (actor != nil && n.OwnedBy(actor.ID))
}

func validateTitle(title string) error {
	if title == "" {
		return ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return ErrTitleTooLong
	}
	return nil
}

func validatePrice(price float64) error {
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return ErrInvalidPrice
	}
	return nil
}

func validateUpload(slot models.AttachmentSlot, up Upload) error {
	if up.Body == nil || up.Size <= 0 {
		return ErrEmptyFile
	}
	limit := int64(MaxDocumentSize)
	if slot == models.SlotCover {
		limit = MaxCoverSize
	}
	if up.Size > limit {
		return ErrFileTooLarge
	}
	if !allowedTypes[slot][up.ContentType] {
		return ErrUnsupportedType
	}
	return nil
}
