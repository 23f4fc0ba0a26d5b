/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package session holds pending verification sessions in memory, keyed by an
// unguessable token, each removed after a fixed time-to-live.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kentakayama/role-verifier/internal/domain/model"
)

const (
	// DefaultTTL is how long an issued token stays redeemable.
	DefaultTTL = 5 * time.Minute

	// 192 bits of entropy, 32 characters once encoded.
	tokenBytes = 24
)

var ErrClosed = errors.New("session table closed")

// Table is safe for concurrent use. Redeem is the only consuming read and is
// atomic: exactly one caller observes a given session.
type Table struct {
	mu       sync.Mutex
	entries  map[string]*entry
	ttl      time.Duration
	now      func() time.Time
	onExpire func(model.VerificationSession)
	logger   *log.Logger
	closed   bool
}

type entry struct {
	session model.VerificationSession
	timer   *time.Timer
}

type Option func(*Table)

// WithClock overrides the clock used for creation times and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(t *Table) {
		t.now = now
	}
}

// WithExpiryHook registers fn to run, outside the table lock, for each session
// removed because its TTL elapsed.
func WithExpiryHook(fn func(model.VerificationSession)) Option {
	return func(t *Table) {
		t.onExpire = fn
	}
}

func NewTable(ttl time.Duration, logger *log.Logger, opts ...Option) *Table {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.Default()
	}
	t := &Table{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TTL returns the configured time-to-live.
func (t *Table) TTL() time.Duration {
	return t.ttl
}

// Issue creates a new session for identityID in communityID and schedules its
// removal. Several live sessions for the same identity are allowed.
func (t *Table) Issue(identityID, communityID string) (*model.VerificationSession, error) {
	if identityID == "" || communityID == "" {
		return nil, errors.New("identity and community are required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	var token string
	for {
		var err error
		token, err = newToken()
		if err != nil {
			return nil, err
		}
		if _, taken := t.entries[token]; !taken {
			break
		}
	}

	now := t.now()
	e := &entry{
		session: model.VerificationSession{
			Token:       token,
			IdentityID:  identityID,
			CommunityID: communityID,
			CreatedAt:   now,
			ExpiresAt:   now.Add(t.ttl),
		},
	}
	// the callback blocks on t.mu until this function returns
	e.timer = time.AfterFunc(t.ttl, func() { t.expire(token, e) })
	t.entries[token] = e

	s := e.session
	return &s, nil
}

// Peek returns the live session for token without consuming it.
func (t *Table) Peek(token string) (*model.VerificationSession, bool) {
	s, ok, expired := t.lookup(token, false)
	if expired != nil {
		t.notifyExpired(*expired)
	}
	return s, ok
}

// Redeem removes and returns the live session for token. Concurrent calls with
// the same token see it at most once between them.
func (t *Table) Redeem(token string) (*model.VerificationSession, bool) {
	s, ok, expired := t.lookup(token, true)
	if expired != nil {
		t.notifyExpired(*expired)
	}
	return s, ok
}

// Revoke removes token without returning it. It reports whether a live session was removed.
func (t *Table) Revoke(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[token]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.entries, token)
	return true
}

// Len returns the number of sessions currently held.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close stops all pending expiry timers and drops every session.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for token, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, token)
	}
	t.closed = true
}

func (t *Table) lookup(token string, consume bool) (*model.VerificationSession, bool, *model.VerificationSession) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[token]
	if !ok {
		return nil, false, nil
	}

	// the timer may not have fired yet even though the TTL has elapsed
	if e.session.Expired(t.now()) {
		e.timer.Stop()
		delete(t.entries, token)
		s := e.session
		return nil, false, &s
	}

	if consume {
		e.timer.Stop()
		delete(t.entries, token)
	}
	s := e.session
	return &s, true, nil
}

func (t *Table) expire(token string, e *entry) {
	t.mu.Lock()
	cur, ok := t.entries[token]
	if !ok || cur != e {
		t.mu.Unlock()
		return
	}
	delete(t.entries, token)
	t.mu.Unlock()

	t.notifyExpired(e.session)
}

func (t *Table) notifyExpired(s model.VerificationSession) {
	t.logger.Printf("session %s for identity %s expired unredeemed", Abbrev(s.Token), s.IdentityID)
	if t.onExpire != nil {
		t.onExpire(s)
	}
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Abbrev shortens a token for log lines so full tokens never reach the logs.
func Abbrev(token string) string {
	const keep = 6
	if len(token) <= keep {
		return token
	}
	return token[:keep] + "…"
}
