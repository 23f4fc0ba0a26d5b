/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/role-verifier/internal/config"
)

func TestOpenReputation_Backends(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	backends := []config.ReputationConfig{
		{Backend: config.BackendFile, Path: filepath.Join(dir, "ip.json")},
		{Backend: config.BackendSQLite, SQLitePath: filepath.Join(dir, "reputation.db")},
		{Backend: config.BackendRedis},
	}
	for _, rc := range backends {
		t.Run(rc.Backend, func(t *testing.T) {
			cfg := config.Config{
				Reputation: rc,
				Redis:      config.RedisConfig{Addr: mr.Addr(), Key: "reputation"},
			}
			store, err := openReputation(context.Background(), cfg, logger)
			require.NoError(t, err)
			defer store.Close()

			ctx := context.Background()
			require.NoError(t, store.Record(ctx, "203.0.113.7", "111"))
			got, err := store.Lookup(ctx, "203.0.113.7")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "111", got.IdentityID)

			missing, err := store.Lookup(ctx, "198.51.100.1")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestOpenReputation_UnknownBackend(t *testing.T) {
	cfg := config.Config{Reputation: config.ReputationConfig{Backend: "etcd"}}
	_, err := openReputation(context.Background(), cfg, log.New(io.Discard, "", 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}

func TestHashSalt(t *testing.T) {
	logger := log.New(io.Discard, "", 0)

	salt, err := hashSalt("pepper", logger)
	require.NoError(t, err)
	assert.Equal(t, []byte("pepper"), salt)

	a, err := hashSalt("", logger)
	require.NoError(t, err)
	b, err := hashSalt("", logger)
	require.NoError(t, err)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}
