// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// listing.go provides a Valkey-backed cache for public novel listings.
// A listing response is stored as encoded JSON so repeated catalogue and
// search requests skip the database entirely.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"novelpress/internal/models"
)

const (
	// listingKeyPrefix is the Valkey key prefix for cached listings.
	listingKeyPrefix = "listing:"

	// listingGenKey counts invalidations. It sits outside the prefix so
	// InvalidateAll does not reset it.
	listingGenKey = "listing_gen"

	// DefaultListingTTL is how long a listing stays cached.
	DefaultListingTTL = 2 * time.Minute
)

// ListingCache manages listing caching in Valkey. Failures are logged and
// treated as misses; the cache never fails a request.
type ListingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewListingCache creates a listing cache backed by the given Valkey client.
func NewListingCache(client *redis.Client, ttl time.Duration) *ListingCache {
	if ttl == 0 {
		ttl = DefaultListingTTL
	}
	return &ListingCache{client: client, ttl: ttl}
}

// Get retrieves a cached listing. Returns false on miss.
func (lc *ListingCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := lc.client.Get(ctx, listingKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("listing cache get error", "key", key, "error", err)
		return nil, false
	}
	slog.Debug("listing cache hit", "key", key)
	return val, true
}

// errListingChanged aborts a Set that raced an invalidation.
var errListingChanged = errors.New("listing generation changed")

// Generation returns the current invalidation count. Read it before loading
// a listing from the database and hand it to Set.
func (lc *ListingCache) Generation(ctx context.Context) int64 {
	gen, err := lc.client.Get(ctx, listingGenKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("listing cache generation error", "error", err)
	}
	return gen
}

// Set stores an encoded listing with the configured TTL. Nothing is stored
// if InvalidateAll ran since gen was read, so a listing loaded before a
// mutation never outlives it.
func (lc *ListingCache) Set(ctx context.Context, key string, gen int64, body []byte) {
	err := lc.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, listingGenKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errListingChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, listingKeyPrefix+key, body, lc.ttl)
			return nil
		})
		return err
	}, listingGenKey)

	switch {
	case err == nil:
	case errors.Is(err, errListingChanged), errors.Is(err, redis.TxFailedErr):
		slog.Debug("listing changed while loading, not cached", "key", key)
	default:
		slog.Warn("listing cache set error", "key", key, "error", err)
	}
}

// InvalidateAll bumps the generation and removes all cached listings by
// scanning for the prefix. Any novel mutation can change any listing, so
// there is no finer scope.
func (lc *ListingCache) InvalidateAll(ctx context.Context) {
	if err := lc.client.Incr(ctx, listingGenKey).Err(); err != nil {
		slog.Warn("listing cache generation bump error", "error", err)
	}

	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := lc.client.Scan(ctx, cursor, listingKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("listing cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := lc.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("listing cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Debug("listing cache cleared", "deleted", deleted)
	}
}

// ListingKey returns the cache key for a listing query.
func ListingKey(q models.NovelQuery) string {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("status", string(q.Status))
	v.Set("featured", strconv.FormatBool(q.FeaturedOnly))
	v.Set("q", q.Search)
	return fmt.Sprintf("novels?%s", v.Encode())
}
