package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects of the delegated executor protocol.
const (
	SubjectRequest   = "foreman.exec.request"
	SubjectInterrupt = "foreman.exec.interrupt"
)

// NATSBackend delegates work over NATS request/reply. The collaborator
// subscribes on SubjectRequest and replies with a wire-format Response;
// interrupts are fire-and-forget on SubjectInterrupt.
type NATSBackend struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSBackend connects to the NATS server at url.
func NewNATSBackend(url string, logger *slog.Logger) (*NATSBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("foreman-executor"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return &NATSBackend{conn: conn, logger: logger}, nil
}

// Execute sends the request and waits for the collaborator's reply. The
// context carries the stage deadline; NATS returns a timeout error on expiry,
// which the retry policy classifies.
func (b *NATSBackend) Execute(ctx context.Context, req Request) (*Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal executor request: %w", err)
	}

	b.logger.Debug("Dispatching delegated request",
		"task_id", req.TaskID,
		"profile", req.Profile,
		"subject", SubjectRequest)

	msg, err := b.conn.RequestWithContext(ctx, SubjectRequest, data)
	if err != nil {
		return nil, fmt.Errorf("delegated request for task %s: %w", req.TaskID, err)
	}
	return ParseResponse(msg.Data)
}

// Interrupt publishes an abort signal for the task. Delivery is best effort;
// a collaborator that already finished ignores it.
func (b *NATSBackend) Interrupt(ctx context.Context, taskID string) error {
	payload, err := json.Marshal(map[string]string{"task_id": taskID})
	if err != nil {
		return fmt.Errorf("marshal interrupt: %w", err)
	}
	if err := b.conn.Publish(SubjectInterrupt, payload); err != nil {
		return fmt.Errorf("publish interrupt for task %s: %w", taskID, err)
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains the connection.
func (b *NATSBackend) Close() error {
	return b.conn.Drain()
}
