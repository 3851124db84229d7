// internal/notify/notifier.go
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/user/boxwatch/internal/history"
	"github.com/user/boxwatch/internal/state"
	"github.com/user/boxwatch/internal/types"
)

// Journal records settled transitions.
type Journal interface {
	Append(ctx context.Context, e *history.Entry) error
}

// DeviceLookup resolves a peer to its device record for display names.
type DeviceLookup interface {
	Device(peerID types.PeerID) (types.Device, bool)
}

// Notifier watches the state container for settled status transitions
// (PENDING is ignored), journals each one and delivers it to every target.
// The first settled status of a peer is journaled but not delivered.
type Notifier struct {
	registry *Registry
	targets  []string
	journal  Journal
	devices  DeviceLookup

	mu      sync.Mutex
	last    map[types.PeerID]types.ConnectionStatus
	seen    map[types.PeerID]uint64
	cleared uint64

	events chan Event
}

// NewNotifier creates a notifier. journal and devices may be nil.
func NewNotifier(registry *Registry, targets []string, journal Journal, devices DeviceLookup) *Notifier {
	return &Notifier{
		registry: registry,
		targets:  targets,
		journal:  journal,
		devices:  devices,
		last:     make(map[types.PeerID]types.ConnectionStatus),
		seen:     make(map[types.PeerID]uint64),
		events:   make(chan Event, 64),
	}
}

// Observe is a state.Store subscriber. It never blocks: when the queue is
// full the event is dropped and logged. A change older (by Seq) than one
// already seen for the same peer is ignored, so the last status recorded
// here always matches the store.
func (n *Notifier) Observe(c state.Change) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch c.Kind {
	case state.ChangeReset, state.ChangeStatuses:
		clear(n.last)
		clear(n.seen)
		n.cleared = max(n.cleared, c.Seq)
		return
	case state.ChangeStatus:
	default:
		return
	}
	if c.Seq <= n.cleared || c.Seq <= n.seen[c.PeerID] {
		slog.Debug("ignoring stale status change", "peer_id", c.PeerID, "status", c.Status, "seq", c.Seq)
		return
	}
	n.seen[c.PeerID] = c.Seq
	if c.Status == types.StatusPending {
		return
	}

	prev := n.last[c.PeerID]
	n.last[c.PeerID] = c.Status
	if prev == c.Status {
		return
	}

	ev := Event{
		ID:       types.NewEventID(),
		PeerID:   c.PeerID,
		Status:   c.Status,
		Previous: prev,
		At:       time.Now().UTC(),
	}
	if n.devices != nil {
		if d, ok := n.devices.Device(c.PeerID); ok {
			ev.Name = d.Name
		}
	}

	select {
	case n.events <- ev:
	default:
		slog.Warn("notification queue full, dropping event", "peer_id", ev.PeerID, "status", ev.Status)
	}
}

// Run processes queued events until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case ev := <-n.events:
			n.handle(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (n *Notifier) handle(ctx context.Context, ev Event) {
	if n.journal != nil {
		entry := &history.Entry{
			ID:       ev.ID,
			PeerID:   ev.PeerID,
			Status:   ev.Status,
			Previous: ev.Previous,
			At:       ev.At,
		}
		if err := n.journal.Append(ctx, entry); err != nil {
			slog.Warn("record status history failed", "peer_id", ev.PeerID, "error", err)
		}
	}

	if ev.Previous == "" {
		return
	}
	for _, target := range n.targets {
		if err := n.registry.Deliver(ctx, target, ev); err != nil {
			slog.Warn("deliver notification failed", "target", target, "peer_id", ev.PeerID, "error", err)
			continue
		}
		slog.Debug("notification delivered", "target", target, "peer_id", ev.PeerID, "status", ev.Status)
	}
}
