// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"novelpress/internal/cache"
	"novelpress/internal/library"
	"novelpress/internal/middleware"
	"novelpress/internal/models"
)

const (
	// defaultListLimit is the page size of the public catalogue.
	defaultListLimit = 20

	// multipartMemory is how much of an upload is buffered in memory; the
	// rest spills to a temporary file.
	multipartMemory = 32 << 20
)

// zipTypes resolves container formats that content sniffing reports as
// plain zip archives.
var zipTypes = map[string]string{
	".epub": "application/epub+zip",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// ListingCache stores encoded public listing responses.
type ListingCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Generation(ctx context.Context) int64
	Set(ctx context.Context, key string, gen int64, body []byte)
}

// Novels groups the catalogue and authoring handlers.
type Novels struct {
	lib      *library.Library
	listings ListingCache // nil disables listing caching
}

// NewNovels creates a new Novels handler group.
func NewNovels(lib *library.Library, listings ListingCache) *Novels {
	return &Novels{lib: lib, listings: listings}
}

// List serves the public catalogue. Only approved novels are listed,
// whatever the query asks for.
func (n *Novels) List(w http.ResponseWriter, r *http.Request) {
	q, msg := parseNovelQuery(r, defaultListLimit)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	q.Status = models.NovelStatusApproved

	key := cache.ListingKey(q)
	var gen int64
	if n.listings != nil {
		gen = n.listings.Generation(r.Context())
		if body, ok := n.listings.Get(r.Context(), key); ok {
			w.Header().Set("X-Cache", "HIT")
			writeRaw(w, http.StatusOK, body)
			return
		}
	}

	novels, err := n.lib.List(r.Context(), q)
	if err != nil {
		respondErr(w, r, "list novels", err)
		return
	}

	body, err := json.Marshal(envelope{Success: true, Data: novels})
	if err != nil {
		respondErr(w, r, "encode novels", err)
		return
	}
	if n.listings != nil {
		n.listings.Set(r.Context(), key, gen, body)
		w.Header().Set("X-Cache", "MISS")
	}
	writeRaw(w, http.StatusOK, body)
}

type novelDetail struct {
	*models.Novel
	DescriptionHTML string `json:"description_html"`
}

// Get returns one novel with its rendered description and counts the view.
// Unapproved novels only exist for their owner and admins.
func (n *Novels) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid novel ID.")
		return
	}

	novel, err := n.lib.Get(r.Context(), id)
	if err != nil {
		respondErr(w, r, "get novel", err)
		return
	}
	if !library.Visible(middleware.IdentityFromCtx(r.Context()), novel) {
		respondErr(w, r, "get novel", library.ErrNotFound)
		return
	}

	html, err := library.DescriptionHTML(novel)
	if err != nil {
		slog.Warn("description render failed", "novel_id", id, "error", err)
	}

	if err := n.lib.RecordView(r.Context(), id); err != nil {
		slog.Warn("record view failed", "novel_id", id, "error", err)
	} else {
		novel.Views++
	}

	writeJSON(w, http.StatusOK, novelDetail{Novel: novel, DescriptionHTML: html})
}

// Download answers with a short-lived signed URL for the manuscript.
func (n *Novels) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid novel ID.")
		return
	}

	url, err := n.lib.Download(r.Context(), middleware.IdentityFromCtx(r.Context()), id)
	if err != nil {
		respondErr(w, r, "download novel", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Create stores a new pending novel owned by the caller.
func (n *Novels) Create(w http.ResponseWriter, r *http.Request) {
	var spec models.NovelSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	novel, err := n.lib.Create(r.Context(), middleware.IdentityFromCtx(r.Context()), spec)
	if err != nil {
		respondErr(w, r, "create novel", err)
		return
	}
	writeJSON(w, http.StatusCreated, novel)
}

// Update applies a partial update from the owner or an admin.
func (n *Novels) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid novel ID.")
		return
	}

	var patch models.NovelPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	novel, err := n.lib.Update(r.Context(), middleware.IdentityFromCtx(r.Context()), id, patch)
	if err != nil {
		respondErr(w, r, "update novel", err)
		return
	}
	writeJSON(w, http.StatusOK, novel)
}

// Upload stores the multipart "file" field in the slot named by the URL
// and records it on the novel.
func (n *Novels) Upload(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid novel ID.")
		return
	}
	slot := models.AttachmentSlot(chi.URLParam(r, "slot"))
	if !slot.Valid() {
		respondErr(w, r, "upload", library.ErrInvalidSlot)
		return
	}

	limit := int64(library.MaxDocumentSize)
	if slot == models.SlotCover {
		limit = library.MaxCoverSize
	}
	// Leave room for the multipart envelope and form fields.
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondErr(w, r, "upload", library.ErrFileTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "Upload must be multipart/form-data.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided.")
		return
	}
	defer file.Close()

	contentType, err := sniffContentType(file, header.Filename)
	if err != nil {
		respondErr(w, r, "upload", err)
		return
	}

	url, err := n.lib.AttachFile(r.Context(), middleware.IdentityFromCtx(r.Context()), id, slot, library.Upload{
		FileName:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}, uploadProgress(id, slot))
	if err != nil {
		respondErr(w, r, "upload", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// sniffContentType detects the type from the first 512 bytes and rewinds
// the file. The client-declared type is never trusted.
func sniffContentType(file multipart.File, name string) (string, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	contentType := http.DetectContentType(buf[:n])
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if contentType == "application/zip" {
		if t, ok := zipTypes[strings.ToLower(path.Ext(name))]; ok {
			contentType = t
		}
	}
	return contentType, nil
}

// uploadProgress logs every quarter of an upload at debug level.
func uploadProgress(id uuid.UUID, slot models.AttachmentSlot) func(float64) {
	step := 0
	return func(f float64) {
		for step < 4 && f >= float64(step+1)/4 {
			step++
			slog.Debug("upload progress", "novel_id", id, "slot", slot, "percent", step*25)
		}
	}
}
