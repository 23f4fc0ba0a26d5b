/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "time"

// ReputationRecord binds a network address to the identity that claimed it.
type ReputationRecord struct {
	Address    string
	IdentityID string
	UpdatedAt  time.Time
}
