// Package audit fans audit events out to log and stream sinks.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Dan9191/bank-cards/internal/models"
)

// Sink receives audit events. Implementations handle their own failures;
// Record never blocks the caller on delivery errors.
type Sink interface {
	Record(ctx context.Context, event models.AuditEvent)
}

// Multi sends every event to each sink in order
type Multi []Sink

// Record implements Sink
func (m Multi) Record(ctx context.Context, event models.AuditEvent) {
	for _, s := range m {
		s.Record(ctx, event)
	}
}

// Nop discards events
type Nop struct{}

// Record implements Sink
func (Nop) Record(context.Context, models.AuditEvent) {}

// Stamp fills in the event id and timestamp when missing
func Stamp(event models.AuditEvent, now time.Time) models.AuditEvent {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now.UTC()
	}
	return event
}
