// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

// NovelTotals aggregates the novels table for the dashboard.
type NovelTotals struct {
	Count     int   `json:"count"`
	Downloads int64 `json:"downloads"`
	Sales     int64 `json:"sales"`
}

// SiteStats is the admin dashboard summary.
type SiteStats struct {
	TotalNovels    int   `json:"total_novels"`
	TotalUsers     int   `json:"total_users"`
	TotalCodes     int   `json:"total_codes"`
	ActiveCodes    int   `json:"active_codes"`
	TotalDownloads int64 `json:"total_downloads"`
	TotalSales     int64 `json:"total_sales"`
}
