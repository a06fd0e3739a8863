// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"novelpress/internal/models"
)

var (
	profileHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novelpress_profile_cache_hits_total",
		Help: "Profile mirror lookups served from memory.",
	})
	profileMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novelpress_profile_cache_misses_total",
		Help: "Profile mirror lookups that found nothing.",
	})
)

// ProfileCache is the process-local mirror of signed-in identities.
// Entries expire after the configured TTL and the least recently used
// entry is evicted once the size limit is reached. Values are copied on
// the way in and out so callers never share a snapshot.
type ProfileCache struct {
	lru *expirable.LRU[uuid.UUID, models.Identity]
}

// NewProfileCache creates a mirror holding at most size identities.
func NewProfileCache(size int, ttl time.Duration) *ProfileCache {
	return &ProfileCache{lru: expirable.NewLRU[uuid.UUID, models.Identity](size, nil, ttl)}
}

// Get returns a copy of the mirrored identity, or nil on a miss.
func (c *ProfileCache) Get(id uuid.UUID) *models.Identity {
	u, ok := c.lru.Get(id)
	if !ok {
		profileMissesTotal.Inc()
		return nil
	}
	profileHitsTotal.Inc()
	u.Entitlements = slices.Clone(u.Entitlements)
	return &u
}

// Set overwrites the mirrored identity.
func (c *ProfileCache) Set(u *models.Identity) {
	if u == nil {
		return
	}
	cp := *u
	cp.Entitlements = slices.Clone(u.Entitlements)
	c.lru.Add(u.ID, cp)
}

// Remove evicts an identity.
func (c *ProfileCache) Remove(id uuid.UUID) {
	c.lru.Remove(id)
}

// Len returns the number of mirrored identities.
func (c *ProfileCache) Len() int {
	return c.lru.Len()
}
