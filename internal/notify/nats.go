// internal/notify/nats.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const natsPrefix = "nats:"

// NATS publishes events as JSON on the subject named by the target
// ("nats:boxwatch.status").
type NATS struct {
	nc *nats.Conn
}

// NewNATS connects to the server at url.
func NewNATS(url string, extra ...nats.Option) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("boxwatch-notify"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{nc: nc}, nil
}

// Deliver implements Handler for "nats:<subject>" targets.
func (n *NATS) Deliver(_ context.Context, target string, ev Event) error {
	subject, ok := strings.CutPrefix(target, natsPrefix)
	if !ok || subject == "" {
		return fmt.Errorf("invalid nats target: %s", target)
	}
	if n.nc == nil || n.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (n *NATS) Close() {
	if n.nc != nil {
		n.nc.Drain()
		n.nc.Close()
	}
}

// Log is a Handler that writes events to the structured log. Targets look
// like "log:" or "log:<label>".
func Log(_ context.Context, target string, ev Event) error {
	slog.Info("box status changed",
		"target", target,
		"event_id", ev.ID,
		"peer_id", ev.PeerID,
		"status", ev.Status,
		"previous", ev.Previous,
	)
	return nil
}
