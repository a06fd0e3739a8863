// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "fmt"

// Known site setting keys. Only these can be written through the console.
const (
	SettingSiteTitle       = "site_title"
	SettingSiteDescription = "site_description"
	SettingWhatsAppNumber  = "whatsapp_number"
	SettingSupportEmail    = "support_email"
	SettingSiteStatus      = "site_status"
)

// siteStatuses are the values site_status accepts.
var siteStatuses = map[string]bool{"active": true, "maintenance": true}

// SiteSettings is a convenience map for accessing settings by key.
type SiteSettings map[string]string

// Get returns the value for a key, or the fallback if the key doesn't exist.
func (s SiteSettings) Get(key, fallback string) string {
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Validate rejects unknown keys and out-of-range values.
func (s SiteSettings) Validate() error {
	for k, v := range s {
		switch k {
		case SettingSiteTitle, SettingSiteDescription, SettingWhatsAppNumber, SettingSupportEmail:
			if len(v) > 1000 {
				return fmt.Errorf("setting %s is too long", k)
			}
		case SettingSiteStatus:
			if !siteStatuses[v] {
				return fmt.Errorf("site_status must be active or maintenance, got %q", v)
			}
		default:
			return fmt.Errorf("unknown setting %q", k)
		}
	}
	return nil
}
