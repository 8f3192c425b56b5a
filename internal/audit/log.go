package audit

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/models"
)

// LogSink writes audit events as structured log entries
type LogSink struct {
	log *logrus.Logger
}

// NewLogSink creates a sink that logs through logger
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{log: logger}
}

// Record implements Sink
func (s *LogSink) Record(_ context.Context, event models.AuditEvent) {
	entry := s.log.WithFields(logrus.Fields{
		"audit_id":    event.ID,
		"user_id":     event.UserID,
		"action":      event.Action,
		"outcome":     event.Outcome,
		"entity_type": event.EntityType,
		"entity_id":   event.EntityID,
		"timestamp":   event.Timestamp,
	})
	if event.Outcome == models.OutcomeFailed {
		entry.Warnf("audit: %s", event.Detail)
		return
	}
	entry.Infof("audit: %s", event.Detail)
}
