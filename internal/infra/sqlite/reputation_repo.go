/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kentakayama/role-verifier/internal/domain/model"
)

// ReputationRepository handles address reputation persistence.
type ReputationRepository struct {
	db *sql.DB
}

func NewReputationRepository(db *sql.DB) *ReputationRepository {
	return &ReputationRepository{db: db}
}

// OpenReputationRepository opens dbPath and returns a repository owning the connection.
func OpenReputationRepository(ctx context.Context, dbPath string, logger *log.Logger) (*ReputationRepository, error) {
	db, err := InitDB(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	r := NewReputationRepository(db)
	n, err := r.Count(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if logger != nil {
		logger.Printf("Loaded %d IP records.", n)
	}
	return r, nil
}

// Lookup returns the binding for address, or nil when it has never been claimed.
func (r *ReputationRepository) Lookup(ctx context.Context, address string) (*model.ReputationRecord, error) {
	const q = `
		SELECT address, identity_id, updated_at
		FROM reputation_records
		WHERE address = ?
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, q, address)
	var rec model.ReputationRecord
	if err := row.Scan(&rec.Address, &rec.IdentityID, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan reputation record: %w", err)
	}
	return &rec, nil
}

// Record inserts or overwrites the binding for address.
func (r *ReputationRepository) Record(ctx context.Context, address string, identityID string) error {
	if address == "" || identityID == "" {
		return errors.New("address and identity are required")
	}
	const q = `
		INSERT INTO reputation_records (address, identity_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			identity_id = excluded.identity_id,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC().Truncate(time.Second)
	if _, err := r.db.ExecContext(ctx, q, address, identityID, now, now); err != nil {
		return fmt.Errorf("upsert reputation record: %w", err)
	}
	return nil
}

// Count returns the number of stored bindings.
func (r *ReputationRepository) Count(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM reputation_records`
	var n int
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reputation records: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (r *ReputationRepository) Close() error {
	return CloseDB(r.db)
}
