/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReputation_RecordLookup(t *testing.T) {
	ctx := context.Background()
	db, err := InitDB(ctx, ":memory:")
	if err != nil {
		t.Fatalf("InitDB error: %v", err)
	}
	defer CloseDB(db)

	repo := NewReputationRepository(db)

	if err := repo.Record(ctx, "203.0.113.7", "user-1"); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	got, err := repo.Lookup(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if got == nil {
		t.Fatalf("expected record, got nil")
	}
	assert.Equal(t, "user-1", got.IdentityID)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestReputation_RecordOverwrites(t *testing.T) {
	ctx := context.Background()
	db, err := InitDB(ctx, ":memory:")
	if err != nil {
		t.Fatalf("InitDB error: %v", err)
	}
	defer CloseDB(db)

	repo := NewReputationRepository(db)
	require.NoError(t, repo.Record(ctx, "203.0.113.7", "user-1"))
	require.NoError(t, repo.Record(ctx, "203.0.113.7", "user-2"))

	got, err := repo.Lookup(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-2", got.IdentityID)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReputation_Lookup_NotFound(t *testing.T) {
	ctx := context.Background()
	db, err := InitDB(ctx, ":memory:")
	if err != nil {
		t.Fatalf("InitDB error: %v", err)
	}
	defer CloseDB(db)

	repo := NewReputationRepository(db)

	got, err := repo.Lookup(ctx, "192.0.2.1")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	assert.Error(t, repo.Record(ctx, "", "user-1"))
}

func TestReputation_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reputation.db")

	repo, err := OpenReputationRepository(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Record(ctx, "198.51.100.2", "user-9"))
	require.NoError(t, repo.Close())

	reopened, err := OpenReputationRepository(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Lookup(ctx, "198.51.100.2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-9", got.IdentityID)
}
