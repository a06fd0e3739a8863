// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// NovelStatus represents the review state of a novel.
type NovelStatus string

const (
	NovelStatusPending  NovelStatus = "pending"
	NovelStatusApproved NovelStatus = "approved"
	NovelStatusRejected NovelStatus = "rejected"
)

// Valid reports whether s is a known review state.
func (s NovelStatus) Valid() bool {
	switch s {
	case NovelStatusPending, NovelStatusApproved, NovelStatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether an admin may move a novel from s to next.
// Review is one-way: only pending novels can be approved or rejected.
func (s NovelStatus) CanTransition(next NovelStatus) bool {
	return s == NovelStatusPending && (next == NovelStatusApproved || next == NovelStatusRejected)
}

// Novel is a publishable work with its attachments and counters.
type Novel struct {
	ID           uuid.UUID   `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Category     string      `json:"category"`
	Price        float64     `json:"price"`
	AuthorID     *uuid.UUID  `json:"author_id,omitempty"`
	AuthorName   string      `json:"author_name"`
	Status       NovelStatus `json:"status"`
	Featured     bool        `json:"featured"`
	Downloads    int64       `json:"downloads"`
	Sales        int64       `json:"sales"`
	Views        int64       `json:"views"`
	DocumentURL  *string     `json:"document_url,omitempty"`
	DocumentName *string     `json:"document_name,omitempty"`
	DocumentSize int64       `json:"document_size"`
	CoverURL     *string     `json:"cover_url,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// IsFree returns true if the novel can be downloaded without an entitlement.
func (n *Novel) IsFree() bool {
	return n.Price <= 0
}

// OwnedBy returns true if id is the novel's author.
func (n *Novel) OwnedBy(id uuid.UUID) bool {
	return n.AuthorID != nil && *n.AuthorID == id
}

// NovelSpec is the author-supplied part of a new novel.
type NovelSpec struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
}

// NovelPatch is a partial update. Nil fields are left untouched.
type NovelPatch struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Featured    *bool    `json:"featured,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p NovelPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil &&
		p.Price == nil && p.Featured == nil
}

// NovelQuery filters a novel listing. Search is an ordered title prefix.
type NovelQuery struct {
	Limit        int
	Search       string
	FeaturedOnly bool
	Status       NovelStatus // empty means any status
}

// AttachmentSlot names the two files a novel can carry.
type AttachmentSlot string

const (
	SlotDocument AttachmentSlot = "document"
	SlotCover    AttachmentSlot = "cover"
)

// Valid reports whether s is a known slot.
func (s AttachmentSlot) Valid() bool {
	return s == SlotDocument || s == SlotCover
}

// Prefix returns the storage category the slot's objects live under.
func (s AttachmentSlot) Prefix() string {
	if s == SlotCover {
		return "covers"
	}
	return "novels"
}

// Private reports whether objects in the slot need signed URLs to read.
// Manuscripts are sold; covers are public.
func (s AttachmentSlot) Private() bool {
	return s == SlotDocument
}
