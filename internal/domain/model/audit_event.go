/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityBlock Severity = "block"
	SeverityError Severity = "error"
)

// AuditField is one named value of an event. Sensitive values are hidden
// until revealed by whoever renders them; Identity values hold an identity ID.
type AuditField struct {
	Name      string
	Value     string
	Inline    bool
	Sensitive bool
	Identity  bool
}

// AuditEvent is a structured record of a terminal verification outcome.
type AuditEvent struct {
	ID          uuid.UUID
	Title       string
	Description string
	Severity    Severity
	Fields      []AuditField
	OccurredAt  time.Time
}

// NewAuditEvent stamps a fresh identifier and timestamp.
func NewAuditEvent(title, description string, severity Severity, fields []AuditField) AuditEvent {
	return AuditEvent{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Severity:    severity,
		Fields:      fields,
		OccurredAt:  time.Now().UTC(),
	}
}
