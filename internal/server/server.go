/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kentakayama/role-verifier/internal/config"
	"github.com/kentakayama/role-verifier/internal/verification"
)

// Verifier is the part of the verification engine the web surface drives.
type Verifier interface {
	Peek(token string) bool
	Redeem(ctx context.Context, req verification.RedeemRequest) verification.Outcome
}

// Server wires the HTTP listener and request handling stack.
type Server struct {
	cfg     config.Config
	handler http.Handler
	http    *http.Server
	logger  *log.Logger
}

// New constructs a Server using the provided configuration.
func New(cfg config.Config, verifier Verifier) (*Server, error) {
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	h := newHandler(verifier, cfg.Challenge.SiteKey, cfg.TrustForwardedFor, logger)
	root := otelhttp.NewHandler(h.routes(), "verifier")

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		cfg:     cfg,
		handler: root,
		http:    httpSrv,
		logger:  logger,
	}, nil
}

// Handler exposes the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("Verification server listening on %s.", s.http.Addr)

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully takes down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
