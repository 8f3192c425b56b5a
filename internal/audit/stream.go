package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/models"
)

// DefaultStream is the Redis stream audit events are appended to
const DefaultStream = "audit:events"

const publishTimeout = 2 * time.Second

// StreamSink appends audit events to a Redis stream for downstream consumers
type StreamSink struct {
	client *redis.Client
	stream string
	log    *logrus.Logger
}

// NewStreamSink creates a sink publishing to stream
func NewStreamSink(client *redis.Client, stream string, logger *logrus.Logger) *StreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamSink{client: client, stream: stream, log: logger}
}

// Publish appends one event to the stream
func (s *StreamSink) Publish(ctx context.Context, event models.AuditEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"type":  event.Action,
			"event": eventJSON,
		},
	}

	if _, err := s.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}
	return nil
}

// Record implements Sink. Publish failures are logged and dropped.
func (s *StreamSink) Record(ctx context.Context, event models.AuditEvent) {
	// The caller's request may already be finished; delivery gets its own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.Publish(ctx, event); err != nil {
		s.log.WithFields(logrus.Fields{
			"audit_id": event.ID,
			"action":   event.Action,
		}).Errorf("Failed to publish audit event: %v", err)
	}
}
