/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package service

import (
	"context"

	"github.com/kentakayama/role-verifier/internal/domain/model"
)

// ReputationRepository defines the interface for address reputation persistence.
// Lookup returns nil when the address has never been claimed.
// Record overwrites unconditionally and returns only once the binding is durable.
type ReputationRepository interface {
	Lookup(ctx context.Context, address string) (*model.ReputationRecord, error)
	Record(ctx context.Context, address string, identityID string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// ChallengeValidator checks a human-challenge response with the challenge service.
// A transport failure is returned as an error wrapping domain.ErrValidatorUnavailable;
// an explicit rejection is a result with Verified == false and a nil error.
type ChallengeValidator interface {
	Validate(ctx context.Context, response string, remoteAddress string) (model.ChallengeResult, error)
}

// ProxyDetector reports whether an address belongs to an anonymizing network.
// Callers treat any returned error as "not a proxy".
type ProxyDetector interface {
	Detect(ctx context.Context, address string) (model.ProxyResult, error)
}

// Platform is the chat-platform collaborator consumed by the verification engine.
type Platform interface {
	HasRole(ctx context.Context, communityID, identityID, roleID string) (bool, error)
	AddRole(ctx context.Context, communityID, identityID, roleID string) error
	SendDirect(ctx context.Context, identityID string, msg model.DirectMessage) error
}

// AuditPublisher delivers an audit event to the external audit channel.
type AuditPublisher interface {
	Publish(ctx context.Context, event model.AuditEvent) error
}

// AuditSink records terminal outcomes. Emit never blocks on delivery and never fails.
type AuditSink interface {
	Emit(title, description string, severity model.Severity, fields ...model.AuditField)
}
