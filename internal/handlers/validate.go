// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"novelpress/internal/models"
)

// Listing defaults.
const (
	featuredLimit  = 8
	adminListLimit = 50
	maxSearchLen   = 300
	maxTOTPCodeLen = 10
	maxPasswordLen = 512
)

// parseNovelQuery reads limit, q and featured from the query string and
// returns the first problem found as a user-facing message.
func parseNovelQuery(r *http.Request, defaultLimit int) (models.NovelQuery, string) {
	v := r.URL.Query()
	q := models.NovelQuery{Limit: defaultLimit, Search: strings.TrimSpace(v.Get("q"))}

	if utf8.RuneCountInString(q.Search) > maxSearchLen {
		return q, "Search is too long (max 300 characters)."
	}

	if s := v.Get("featured"); s != "" {
		featured, err := strconv.ParseBool(s)
		if err != nil {
			return q, "featured must be true or false."
		}
		q.FeaturedOnly = featured
		if featured && v.Get("limit") == "" {
			q.Limit = featuredLimit
		}
	}

	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, "limit must be a positive number."
		}
		q.Limit = n
	}

	if s := v.Get("status"); s != "" {
		q.Status = models.NovelStatus(s)
		if !q.Status.Valid() {
			return q, "status must be pending, approved or rejected."
		}
	}
	return q, ""
}

// validateCredentials checks the sign-in form before it reaches the gate.
func validateCredentials(email, password string) string {
	if strings.TrimSpace(email) == "" || password == "" {
		return "Email and password are required."
	}
	if len(password) > maxPasswordLen {
		return "Password is too long."
	}
	return ""
}

// validateTOTPCode checks the shape of a one-time code.
func validateTOTPCode(code string) string {
	if code == "" {
		return "Code is required."
	}
	if len(code) > maxTOTPCodeLen {
		return "Code is too long."
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "Code must contain digits only."
		}
	}
	return ""
}
