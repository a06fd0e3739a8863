// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package storage

import (
	"context"
	"strings"
	"testing"
	"time"
)

func testClient(t *testing.T, publicURL string) *Client {
	t.Helper()
	c, err := New("https://s3.example.test/", "fsn1", "key", "secret", "pub", "priv", publicURL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewWithoutCredentials(t *testing.T) {
	c, err := New("", "fsn1", "", "", "pub", "priv", "")
	if err != nil || c != nil {
		t.Fatalf("expected (nil, nil) without config, got (%v, %v)", c, err)
	}
}

func TestNewRequiresBuckets(t *testing.T) {
	if _, err := New("https://s3.example.test", "fsn1", "k", "s", "", "priv", ""); err == nil {
		t.Error("expected error for missing public bucket")
	}
}

func TestObjectURL(t *testing.T) {
	tests := []struct {
		name      string
		publicURL string
		key       string
		private   bool
		wantURL   string
	}{
		{"public path style", "", "covers/n1/a.jpg", false, "https://s3.example.test/pub/covers/n1/a.jpg"},
		{"public cdn", "https://cdn.example.test/", "covers/n1/a.jpg", false, "https://cdn.example.test/covers/n1/a.jpg"},
		{"private ignores cdn", "https://cdn.example.test", "novels/n1/b.pdf", true, "https://s3.example.test/priv/novels/n1/b.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, tt.publicURL)
			if url := c.ObjectURL(tt.key, tt.private); url != tt.wantURL {
				t.Errorf("ObjectURL: got %q, want %q", url, tt.wantURL)
			}
		})
	}
}

func TestSignedURL(t *testing.T) {
	c := testClient(t, "")
	url, err := c.SignedURL(context.Background(), "novels/n1/b.pdf", true, 15*time.Minute, "the-book.pdf")
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.HasPrefix(url, "https://s3.example.test/priv/novels/n1/b.pdf?") {
		t.Errorf("unexpected URL %q", url)
	}
	if !strings.Contains(url, "X-Amz-Expires=900") {
		t.Errorf("expected 900s expiry in %q", url)
	}
	if !strings.Contains(url, "response-content-disposition=attachment") {
		t.Errorf("expected content disposition in %q", url)
	}
}
