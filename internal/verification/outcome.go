/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package verification

import (
	"time"

	"github.com/kentakayama/role-verifier/internal/domain/model"
)

// State is the lifecycle position of a verification session.
type State string

const (
	StateIssued           State = "ISSUED"
	StateExpired          State = "EXPIRED"
	StateChallengeFailed  State = "CHALLENGE_FAILED"
	StateConflictRejected State = "CONFLICT_REJECTED"
	StateProxyRejected    State = "PROXY_REJECTED"
	StateGranted          State = "GRANTED"
	StateSystemError      State = "SYSTEM_ERROR"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s != StateIssued
}

// Outcome is the tagged result of one redemption attempt.
//
// Err is one of the domain taxonomy errors and decides what the browser sees.
// Cause carries server-side detail and is never rendered.
type Outcome struct {
	State    State
	Err      error
	Cause    error
	Session  *model.VerificationSession
	Address  string
	Evidence model.AbuseCheckResult
}

// Granted reports whether the role was attached.
func (o Outcome) Granted() bool {
	return o.State == StateGranted
}

// RedeemRequest is what the browser submits against a token.
type RedeemRequest struct {
	Token             string
	ChallengeResponse string
	Address           string
}

// Issued describes a freshly issued challenge.
type Issued struct {
	Token     string
	Link      string
	ExpiresAt time.Time
}
