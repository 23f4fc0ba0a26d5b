/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

// ChallengeResult is the outcome of a human-challenge validation.
// ErrorCodes are reported by the challenge service on rejection.
type ChallengeResult struct {
	Verified   bool
	Response   string
	Hostname   string
	ErrorCodes []string
}

// ProxyResult is the outcome of an anonymizing-network lookup.
type ProxyResult struct {
	Address  string
	Detected bool
	Type     string
	Provider string
}

// AbuseCheckResult carries the evidence gathered while redeeming a session.
// It is never persisted.
type AbuseCheckResult struct {
	Challenge ChallengeResult
	Proxy     ProxyResult
}
