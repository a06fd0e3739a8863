// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package session keeps sign-in state for readers, authors and admins in
// Valkey. The browser holds an opaque id in the np_session cookie; the
// payload only records who signed in and whether the second factor was
// passed. Roles and entitlements come from the auth gate's profile mirror.
//
// Every account also has an index of its live session ids so an admin can
// sign a user out everywhere.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// CookieName is the browser cookie carrying the session id.
	CookieName = "np_session"

	// DefaultTTL bounds a session's life. Rotation restarts it.
	DefaultTTL = 24 * time.Hour

	keyPrefix  = "session:"
	userPrefix = "session_user:"

	// idBytes of randomness, hex encoded in the cookie.
	idBytes = 32
)

// ErrNoSession is returned by Rotate when the request carries no live
// session.
var ErrNoSession = errors.New("session: no active session")

// Data is the payload stored per session.
type Data struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	TwoFADone bool      `json:"two_fa_done"`
	CreatedAt time.Time `json:"created_at"`
}

// Store reads and writes sessions in Valkey.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	secure bool
}

// NewStore returns a store on client. secure sets the cookie's Secure flag
// and belongs on anything served over TLS.
func NewStore(client *redis.Client, secure bool) *Store {
	return &Store{client: client, ttl: DefaultTTL, secure: secure}
}

// Create starts a session for data.UserID and sets the cookie.
func (s *Store) Create(ctx context.Context, w http.ResponseWriter, data *Data) (string, error) {
	id, err := newID()
	if err != nil {
		return "", fmt.Errorf("session create: %w", err)
	}
	data.CreatedAt = time.Now()

	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("session create: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyPrefix+id, payload, s.ttl)
		pipe.SAdd(ctx, userPrefix+data.UserID.String(), id)
		pipe.Expire(ctx, userPrefix+data.UserID.String(), s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("session create: %w", err)
	}

	s.setCookie(w, id, int(s.ttl.Seconds()))
	return id, nil
}

// Get returns the session named by the request cookie, or nil when there is
// none. Unknown, expired and malformed ids are all "no session".
func (s *Store) Get(ctx context.Context, r *http.Request) (*Data, error) {
	id, ok := cookieID(r)
	if !ok {
		return nil, nil
	}

	payload, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}

	var data Data
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	return &data, nil
}

// Rotate stores data under a fresh id, drops the old one and reissues the
// cookie. Call it whenever the session gains privilege, such as after the
// second factor is verified.
func (s *Store) Rotate(ctx context.Context, w http.ResponseWriter, r *http.Request, data *Data) (string, error) {
	oldID, ok := cookieID(r)
	if !ok {
		return "", ErrNoSession
	}
	id, err := newID()
	if err != nil {
		return "", fmt.Errorf("session rotate: %w", err)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("session rotate: %w", err)
	}

	userKey := userPrefix + data.UserID.String()
	cmds, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keyPrefix+oldID)
		pipe.SRem(ctx, userKey, oldID)
		pipe.Set(ctx, keyPrefix+id, payload, s.ttl)
		pipe.SAdd(ctx, userKey, id)
		pipe.Expire(ctx, userKey, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("session rotate: %w", err)
	}
	if cmds[0].(*redis.IntCmd).Val() == 0 {
		// The old session had already expired or been revoked.
		s.client.Del(ctx, keyPrefix+id)
		s.client.SRem(ctx, userKey, id)
		return "", ErrNoSession
	}

	s.setCookie(w, id, int(s.ttl.Seconds()))
	return id, nil
}

// Destroy ends the request's session and clears the cookie.
func (s *Store) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, ok := cookieID(r)
	if !ok {
		return nil
	}

	data, err := s.Get(ctx, r)
	if err != nil {
		return fmt.Errorf("session destroy: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keyPrefix+id)
		if data != nil {
			pipe.SRem(ctx, userPrefix+data.UserID.String(), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session destroy: %w", err)
	}

	s.setCookie(w, "", -1)
	return nil
}

// RevokeUser ends every session of userID and returns how many were live.
func (s *Store) RevokeUser(ctx context.Context, userID uuid.UUID) (int, error) {
	userKey := userPrefix + userID.String()
	ids, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("session revoke: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, keyPrefix+id)
	}
	var live int64
	if len(keys) > 0 {
		if live, err = s.client.Del(ctx, keys...).Result(); err != nil {
			return 0, fmt.Errorf("session revoke: %w", err)
		}
	}
	if err := s.client.Del(ctx, userKey).Err(); err != nil {
		return int(live), fmt.Errorf("session revoke: %w", err)
	}
	return int(live), nil
}

func (s *Store) setCookie(w http.ResponseWriter, id string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// cookieID returns the session id from r if it has the shape newID
// produces.
func cookieID(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || len(c.Value) != 2*idBytes {
		return "", false
	}
	if _, err := hex.DecodeString(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}

func newID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
