package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is the root of all foreman event subjects. Events publish to
// foreman.event.<type> so observers can subscribe with foreman.event.>.
const SubjectPrefix = "foreman.event"

// NATSNotifier publishes lifecycle events as JSON over NATS.
type NATSNotifier struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSNotifier connects to the given NATS URL.
func NewNATSNotifier(url string, logger *slog.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("foreman-notifier"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSNotifier{conn: conn, logger: logger}, nil
}

// Publish implements Notifier.
func (n *NATSNotifier) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, event.Type)
	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.Warn("Failed to publish event",
			"subject", subject,
			"error", err)
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}

// Close drains the connection.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		_ = n.conn.Drain()
	}
}
