/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package jsonstore keeps the address reputation map in a single JSON
// artifact that is loaded wholesale at startup and rewritten on every update.
package jsonstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/kentakayama/role-verifier/internal/domain/model"
)

var ErrCorrupt = errors.New("reputation file corrupt")

// Store is the file-backed reputation repository.
type Store struct {
	path   string
	logger *log.Logger

	// writeMu serializes the read-modify-persist sequence of Record.
	writeMu sync.Mutex
	mu      sync.RWMutex
	records map[string]string
}

// Open loads path, creating an empty artifact when none exists. A file that
// cannot be decoded is an error; it is never reset.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Store{
		path:    path,
		logger:  logger,
		records: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Printf("no %s found, creating new one", path)
		if err := s.persist(s.records); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reputation file: %w", err)
	}

	records, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	s.records = records
	logger.Printf("Loaded %d IP records.", len(records))
	return s, nil
}

func decode(data []byte) (map[string]string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty file")
	}
	var records map[string]string
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	if records == nil {
		return nil, errors.New("not a JSON object")
	}
	for addr, id := range records {
		if addr == "" || id == "" {
			return nil, fmt.Errorf("empty address or identity in entry %q", addr)
		}
	}
	return records, nil
}

// Lookup returns the binding for address, or nil when it has never been claimed.
func (s *Store) Lookup(_ context.Context, address string) (*model.ReputationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.records[address]
	if !ok {
		return nil, nil
	}
	return &model.ReputationRecord{Address: address, IdentityID: id}, nil
}

// Record binds address to identityID. The artifact is flushed to disk before
// the binding becomes visible to Lookup.
func (s *Store) Record(_ context.Context, address string, identityID string) error {
	if address == "" || identityID == "" {
		return errors.New("address and identity are required")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	next := make(map[string]string, len(s.records)+1)
	for k, v := range s.records {
		next[k] = v
	}
	s.mu.RUnlock()
	next[address] = identityID

	if err := s.persist(next); err != nil {
		return err
	}

	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
	return nil
}

// Count returns the number of bindings held.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Store) Close() error {
	return nil
}

// persist writes records to a temporary file, syncs it, and renames it over
// the artifact so readers never see a partial file.
func (s *Store) persist(records map[string]string) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode reputation records: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return fmt.Errorf("create temporary reputation file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write reputation file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync reputation file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close reputation file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod reputation file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace reputation file: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			s.logger.Printf("sync reputation directory: %v", err)
		}
		d.Close()
	}
	return nil
}
