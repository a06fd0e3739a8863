// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package storage

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestWithProgressReportsFractions(t *testing.T) {
	var got []float64
	r := WithProgress(strings.NewReader("0123456789"), 10, func(f float64) { got = append(got, f) })

	buf := make([]byte, 4)
	for {
		_, err := r.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}

	want := []float64{0.4, 0.8, 1}
	if len(got) != len(want) {
		t.Fatalf("reports: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("report %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWithProgressCapsAtOne(t *testing.T) {
	var last float64
	// Declared size smaller than the body.
	r := WithProgress(strings.NewReader("0123456789"), 5, func(f float64) { last = f })
	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if last != 1 {
		t.Errorf("last fraction: got %v, want 1", last)
	}
}

func TestWithProgressSeekRewinds(t *testing.T) {
	var last float64
	r := WithProgress(bytes.NewReader([]byte("abcdefgh")), 8, func(f float64) { last = f })

	s, ok := r.(io.ReadSeeker)
	if !ok {
		t.Fatal("expected a seekable reader for a seekable body")
	}
	if _, err := io.ReadAll(s); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	buf := make([]byte, 2)
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if last != 0.25 {
		t.Errorf("fraction after rewind: got %v, want 0.25", last)
	}
}

func TestWithProgressPassthrough(t *testing.T) {
	src := strings.NewReader("x")
	if got := WithProgress(src, 1, nil); got != io.Reader(src) {
		t.Error("nil callback should return the reader unchanged")
	}
	if got := WithProgress(src, 0, func(float64) {}); got != io.Reader(src) {
		t.Error("unknown size should return the reader unchanged")
	}
}

func TestWithProgressNonSeekable(t *testing.T) {
	r := WithProgress(io.LimitReader(strings.NewReader("abc"), 3), 3, func(float64) {})
	if _, ok := r.(io.Seeker); ok {
		t.Error("non-seekable body must not gain a Seek method")
	}
}
