/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "time"

// VerificationSession represents one outstanding challenge bound to an identity.
type VerificationSession struct {
	Token       string
	IdentityID  string
	CommunityID string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the session can no longer be redeemed at now.
func (s *VerificationSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
