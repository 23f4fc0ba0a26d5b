/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package audit delivers outcome events to an external channel off the
// request path.
package audit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kentakayama/role-verifier/internal/domain"
	"github.com/kentakayama/role-verifier/internal/domain/model"
	"github.com/kentakayama/role-verifier/internal/domain/service"
)

const (
	DefaultQueueSize      = 64
	DefaultPublishTimeout = 10 * time.Second
)

// Dispatcher queues events and publishes them from a single background worker.
// When the queue is full new events are dropped and logged.
type Dispatcher struct {
	publisher service.AuditPublisher
	queue     chan model.AuditEvent
	timeout   time.Duration
	logger    *log.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(publisher service.AuditPublisher, queueSize int, timeout time.Duration, logger *log.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	d := &Dispatcher{
		publisher: publisher,
		queue:     make(chan model.AuditEvent, queueSize),
		timeout:   timeout,
		logger:    logger,
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit builds an event and enqueues it.
func (d *Dispatcher) Emit(title, description string, severity model.Severity, fields ...model.AuditField) {
	d.Enqueue(model.NewAuditEvent(title, description, severity, fields))
}

// Enqueue hands ev to the worker without waiting.
func (d *Dispatcher) Enqueue(ev model.AuditEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Printf("audit: dispatcher closed, dropping %q (%s)", ev.Title, ev.ID)
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.logger.Printf("audit: queue full, dropping %q (%s)", ev.Title, ev.ID)
	}
}

// Close stops accepting events and waits for queued ones to be published or
// for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		if err := d.publish(ev); err != nil {
			d.logger.Printf("audit: publish failed: %v", err)
		}
	}
}

func (d *Dispatcher) publish(ev model.AuditEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %q panicked: %v", domain.ErrNotificationFailure, ev.Title, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, ev); err != nil {
		return fmt.Errorf("%w: %q (%s): %v", domain.ErrNotificationFailure, ev.Title, ev.ID, err)
	}
	return nil
}
