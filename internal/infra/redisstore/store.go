/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package redisstore keeps the address reputation map in a Redis hash.
// Durability follows the server's persistence settings; run Redis with
// appendonly yes and appendfsync always for flush-on-write semantics.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kentakayama/role-verifier/internal/config"
	"github.com/kentakayama/role-verifier/internal/domain/model"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

type Store struct {
	client redis.UniversalClient
	key    string
}

func New(client redis.UniversalClient, key string) *Store {
	if key == "" {
		key = "reputation"
	}
	return &Store{client: client, key: key}
}

// Dial connects to the configured Redis server and verifies it answers.
func Dial(ctx context.Context, cfg config.RedisConfig, logger *log.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	s := New(client, cfg.Key)
	n, err := s.Count(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}
	if logger != nil {
		logger.Printf("Loaded %d IP records.", n)
	}
	return s, nil
}

func (s *Store) Lookup(ctx context.Context, address string) (*model.ReputationRecord, error) {
	id, err := s.client.HGet(ctx, s.key, address).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis lookup: %w", err)
	}
	return &model.ReputationRecord{Address: address, IdentityID: id}, nil
}

func (s *Store) Record(ctx context.Context, address string, identityID string) error {
	if address == "" || identityID == "" {
		return errors.New("address and identity are required")
	}
	if err := s.client.HSet(ctx, s.key, address, identityID).Err(); err != nil {
		return fmt.Errorf("redis record: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis count: %w", err)
	}
	return int(n), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
