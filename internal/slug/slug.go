// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug turns titles and uploaded file names into safe identifiers
// for object keys and download file names.
package slug

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Generate creates a URL-friendly slug from the given string. Accented
// Latin letters lose their marks; letters and digits from other scripts
// are kept.
// Example: "Les Misérables, Tome 2" → "les-miserables-tome-2"
func Generate(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		switch {
		case unicode.Is(unicode.Mn, r):
			// Combining marks left over from decomposition.
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			pendingHyphen = true
		}
	}
	return norm.NFC.String(b.String())
}

// maxFileNameLen bounds the base name of an uploaded file in bytes.
const maxFileNameLen = 200

// FileName reduces a client-supplied file name to a single safe path
// segment. Directory components are dropped, the base name is slugged and
// the extension is lowercased. An empty result becomes "file".
// Example: `C:\Users\ana\My Novel (final).PDF` → "my-novel-final.pdf"
func FileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := strings.ToLower(path.Ext(name))
	base := Generate(strings.TrimSuffix(name, path.Ext(name)))

	cleanExt := Generate(strings.TrimPrefix(ext, "."))
	if base == "" {
		base = "file"
	}
	if len(base) > maxFileNameLen {
		base = strings.TrimRight(truncate(base, maxFileNameLen), "-")
	}
	if cleanExt == "" {
		return base
	}
	return base + "." + cleanExt
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
