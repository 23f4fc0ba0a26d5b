/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Command verifier runs the verification bot and its web surface.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kentakayama/role-verifier/internal/audit"
	"github.com/kentakayama/role-verifier/internal/config"
	"github.com/kentakayama/role-verifier/internal/domain/service"
	"github.com/kentakayama/role-verifier/internal/infra/discord"
	"github.com/kentakayama/role-verifier/internal/infra/hcaptcha"
	"github.com/kentakayama/role-verifier/internal/infra/jsonstore"
	"github.com/kentakayama/role-verifier/internal/infra/proxycheck"
	"github.com/kentakayama/role-verifier/internal/infra/redisstore"
	"github.com/kentakayama/role-verifier/internal/infra/sqlite"
	"github.com/kentakayama/role-verifier/internal/server"
	"github.com/kentakayama/role-verifier/internal/session"
	"github.com/kentakayama/role-verifier/internal/telemetry"
	"github.com/kentakayama/role-verifier/internal/verification"
)

const (
	serviceName     = "role-verifier"
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger := log.New(os.Stderr, "[verifier] ", log.LstdFlags)

	cfg, err := config.Load(logger)
	if err != nil {
		config.Exitf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatalf("verifier stopped: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := cfg.Logger

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.TelemetryEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Printf("failed to flush traces: %v", err)
		}
	}()

	store, err := openReputation(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	validator, err := hcaptcha.NewClient(cfg.Challenge)
	if err != nil {
		return err
	}
	detector, err := proxycheck.NewClient(cfg.ProxyCheck)
	if err != nil {
		return err
	}

	dc, err := discord.NewClient(cfg.Discord, logger)
	if err != nil {
		return err
	}
	publisher, err := discord.NewAuditPublisher(dc, cfg.Discord.LogsChannelID)
	if err != nil {
		return err
	}
	dispatcher := audit.NewDispatcher(publisher, cfg.Audit.QueueSize, cfg.PlatformTimeout, logger)

	salt, err := hashSalt(cfg.Audit.HashSalt, logger)
	if err != nil {
		return err
	}

	table := session.NewTable(cfg.SessionTTL, logger)
	defer table.Close()

	engine, err := verification.New(verification.Options{
		Sessions:        table,
		Reputation:      store,
		Validator:       validator,
		Detector:        detector,
		Platform:        dc,
		Audit:           dispatcher,
		RoleID:          cfg.VerifiedRoleID,
		Link:            cfg.VerifyLink,
		PlatformTimeout: cfg.PlatformTimeout,
		HashSalt:        salt,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, engine)
	if err != nil {
		return err
	}

	dc.Register(engine, cfg.PlatformTimeout)
	if err := dc.Open(); err != nil {
		return err
	}
	defer func() {
		if err := dc.Close(); err != nil {
			logger.Printf("failed to close discord session: %v", err)
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := dispatcher.Close(sctx); err != nil {
			logger.Printf("audit events left undelivered: %v", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	logger.Printf("Shutting down.")
	return err
}

// openReputation opens the configured reputation backend.
func openReputation(ctx context.Context, cfg config.Config, logger *log.Logger) (service.ReputationRepository, error) {
	switch cfg.Reputation.Backend {
	case config.BackendFile, "":
		return jsonstore.Open(cfg.Reputation.Path, logger)
	case config.BackendSQLite:
		return sqlite.OpenReputationRepository(ctx, cfg.Reputation.SQLitePath, logger)
	case config.BackendRedis:
		return redisstore.Dial(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown reputation backend %q", cfg.Reputation.Backend)
	}
}

// hashSalt returns the configured audit salt, or a random one that only
// lives as long as the process.
func hashSalt(configured string, logger *log.Logger) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate audit salt: %w", err)
	}
	logger.Printf("AUDIT_HASH_SALT not set, address fingerprints are stable only until restart")
	return salt, nil
}
