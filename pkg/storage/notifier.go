package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SegmentEvent announces a segment that has been stored.
type SegmentEvent struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	Segment   string    `json:"segment"`
	Location  string    `json:"location"`
	Format    string    `json:"format"`
	MIMEType  string    `json:"mime_type"`
	Triples   int       `json:"triples"`
	Bytes     int       `json:"bytes"`
	WrittenAt time.Time `json:"written_at"`
}

// Notifier publishes segment events.
type Notifier interface {
	Notify(ctx context.Context, event SegmentEvent) error
}

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSNotifier publishes segment events as JSON on a NATS subject.
type NATSNotifier struct {
	conn       Publisher
	subject    string
	maxRetries int
	retryWait  time.Duration
	logger     *zap.Logger
}

// NewNATSNotifier creates a notifier publishing on subject. A failed publish
// is retried up to maxRetries times, one second apart.
func NewNATSNotifier(conn Publisher, subject string, maxRetries int, logger *zap.Logger) *NATSNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSNotifier{
		conn:       conn,
		subject:    subject,
		maxRetries: max(maxRetries, 0),
		retryWait:  time.Second,
		logger:     logger,
	}
}

// Notify publishes event.
func (n *NATSNotifier) Notify(ctx context.Context, event SegmentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal segment event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			n.logger.Warn("Retrying segment event publish",
				zap.String("segment", event.Segment),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.retryWait):
			}
		}

		if lastErr = n.conn.Publish(n.subject, data); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("failed to publish segment event after %d attempts: %w", n.maxRetries+1, lastErr)
}
