/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package session

import (
	"encoding/base64"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kentakayama/role-verifier/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestTable_IssuePeekRedeem(t *testing.T) {
	table := NewTable(time.Hour, quietLogger())
	defer table.Close()

	s, err := table.Issue("user-1", "guild-1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "user-1", s.IdentityID)
	assert.Equal(t, "guild-1", s.CommunityID)
	assert.Equal(t, time.Hour, s.ExpiresAt.Sub(s.CreatedAt))

	peeked, ok := table.Peek(s.Token)
	require.True(t, ok)
	assert.Equal(t, *s, *peeked)
	assert.Equal(t, 1, table.Len())

	redeemed, ok := table.Redeem(s.Token)
	require.True(t, ok)
	assert.Equal(t, *s, *redeemed)

	_, ok = table.Redeem(s.Token)
	assert.False(t, ok, "second redeem must observe absent")
	_, ok = table.Peek(s.Token)
	assert.False(t, ok)
	assert.Equal(t, 0, table.Len())
}

func TestTable_TokenShape(t *testing.T) {
	table := NewTable(time.Hour, quietLogger())
	defer table.Close()

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		s, err := table.Issue("user-1", "guild-1")
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(s.Token)
		require.NoError(t, err)
		assert.Len(t, raw, tokenBytes)
		assert.GreaterOrEqual(t, len(raw)*8, 128)

		_, dup := seen[s.Token]
		require.False(t, dup, "token reused: %s", s.Token)
		seen[s.Token] = struct{}{}
	}
	assert.Equal(t, 200, table.Len())
}

func TestTable_IndependentSessionsForSameIdentity(t *testing.T) {
	table := NewTable(time.Hour, quietLogger())
	defer table.Close()

	first, err := table.Issue("user-1", "guild-1")
	require.NoError(t, err)
	second, err := table.Issue("user-1", "guild-1")
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	_, ok := table.Redeem(first.Token)
	require.True(t, ok)
	_, ok = table.Redeem(second.Token)
	require.True(t, ok)
}

func TestTable_ConcurrentRedeemExactlyOnce(t *testing.T) {
	table := NewTable(time.Hour, quietLogger())
	defer table.Close()

	s, err := table.Issue("user-1", "guild-1")
	require.NoError(t, err)

	const callers = 64
	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		start = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := table.Redeem(s.Token); ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestTable_TimerExpiry(t *testing.T) {
	expired := make(chan model.VerificationSession, 1)
	table := NewTable(20*time.Millisecond, quietLogger(), WithExpiryHook(func(s model.VerificationSession) {
		expired <- s
	}))
	defer table.Close()

	s, err := table.Issue("user-1", "guild-1")
	require.NoError(t, err)

	select {
	case got := <-expired:
		assert.Equal(t, s.Token, got.Token)
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not expire")
	}

	_, ok := table.Redeem(s.Token)
	assert.False(t, ok)
	assert.Equal(t, 0, table.Len())
}

func TestTable_ClockExpiryBeatsLateTimer(t *testing.T) {
	var offset atomic.Int64
	clock := func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }

	var hooked atomic.Int32
	table := NewTable(time.Hour, quietLogger(), WithClock(clock), WithExpiryHook(func(model.VerificationSession) {
		hooked.Add(1)
	}))
	defer table.Close()

	live, err := table.Issue("user-1", "guild-1")
	require.NoError(t, err)
	stale, err := table.Issue("user-2", "guild-1")
	require.NoError(t, err)

	// strictly before the TTL: redemption wins
	offset.Store(int64(59 * time.Minute))
	_, ok := table.Redeem(live.Token)
	require.True(t, ok)

	// at the TTL the timer has not fired yet, but the session is dead
	offset.Store(int64(time.Hour))
	_, ok = table.Peek(stale.Token)
	assert.False(t, ok)
	_, ok = table.Redeem(stale.Token)
	assert.False(t, ok)

	offset.Store(0)
	_, ok = table.Redeem(stale.Token)
	assert.False(t, ok, "expired token must stay unredeemable")
	assert.Equal(t, int32(1), hooked.Load())
}

func TestTable_Revoke(t *testing.T) {
	table := NewTable(time.Hour, quietLogger())
	defer table.Close()

	s, err := table.Issue("user-1", "guild-1")
	require.NoError(t, err)

	assert.True(t, table.Revoke(s.Token))
	assert.False(t, table.Revoke(s.Token))
	_, ok := table.Redeem(s.Token)
	assert.False(t, ok)
}

func TestTable_IssueValidationAndClose(t *testing.T) {
	table := NewTable(time.Hour, quietLogger())

	_, err := table.Issue("", "guild-1")
	assert.Error(t, err)

	_, err = table.Issue("user-1", "guild-1")
	require.NoError(t, err)

	table.Close()
	assert.Equal(t, 0, table.Len())
	_, err = table.Issue("user-1", "guild-1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAbbrev(t *testing.T) {
	assert.Equal(t, "abc", Abbrev("abc"))
	assert.Equal(t, "abcdef…", Abbrev("abcdefghij"))
}
