// audit.go: Fire-and-forget audit events for codec operations.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"context"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Operation names reported in audit events.
const (
	OpEncryptText = "encrypt_text"
	OpDecryptText = "decrypt_text"
	OpEncryptFile = "encrypt_file"
	OpDecryptFile = "decrypt_file"
	OpValidate    = "validate"
	OpHide        = "hide"
	OpExtract     = "extract"
)

// AuditEvent describes one finished operation. It never carries key material
// or plaintext.
type AuditEvent struct {
	ID        string
	Operation string
	Algorithm string
	Outcome   string
	Kind      ErrorKind
	Duration  time.Duration
	At        time.Time
}

// AuditSink receives audit events. Errors are logged by the engine and never
// change the result of the audited operation.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(ctx context.Context, event AuditEvent) error

// Record calls f(ctx, event).
func (f AuditSinkFunc) Record(ctx context.Context, event AuditEvent) error {
	return f(ctx, event)
}

// LogAuditSink writes audit events to a logrus logger at info level.
type LogAuditSink struct {
	Logger logrus.FieldLogger
}

// Record logs the event.
func (s LogAuditSink) Record(_ context.Context, event AuditEvent) error {
	s.Logger.WithFields(logrus.Fields{
		"audit_id":  event.ID,
		"operation": event.Operation,
		"algorithm": event.Algorithm,
		"outcome":   event.Outcome,
		"kind":      event.Kind.String(),
		"duration":  event.Duration,
	}).Info("audit")
	return nil
}

// auditSpan times one operation.
type auditSpan struct {
	op     string
	method string
	start  time.Time
}

func startAudit(op, method string) auditSpan {
	return auditSpan{op: op, method: method, start: timecache.CachedTime()}
}

// audit emits the event for span. Sink failures and panics are logged and swallowed.
func (e *Engine) audit(ctx context.Context, span auditSpan, err error) {
	if e.auditSink == nil {
		return
	}
	now := timecache.CachedTime()
	event := AuditEvent{
		ID:        uuid.NewString(),
		Operation: span.op,
		Algorithm: span.method,
		Outcome:   OutcomeSuccess,
		Kind:      KindOf(err),
		Duration:  now.Sub(span.start),
		At:        now.UTC(),
	}
	if err != nil {
		event.Outcome = OutcomeFailure
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"audit_id":  event.ID,
				"operation": span.op,
				"panic":     r,
			}).Error("audit sink panicked")
		}
	}()
	if serr := e.auditSink.Record(ctx, event); serr != nil {
		e.logger.WithFields(logrus.Fields{
			"audit_id":  event.ID,
			"operation": span.op,
		}).WithError(serr).Warn("audit sink failed")
	}
}
