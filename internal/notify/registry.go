// internal/notify/registry.go
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/user/boxwatch/internal/types"
)

// Event is a settled connection status transition of one device.
type Event struct {
	ID       types.EventID          `json:"id"`
	PeerID   types.PeerID           `json:"peerId"`
	Name     string                 `json:"name,omitempty"`
	Status   types.ConnectionStatus `json:"status"`
	Previous types.ConnectionStatus `json:"previous,omitempty"`
	At       time.Time              `json:"at"`
}

// Text renders the event as a one-line human message.
func (e Event) Text() string {
	label := string(e.PeerID)
	if e.Name != "" {
		label = fmt.Sprintf("%s (%s)", e.Name, e.PeerID)
	}
	switch e.Status {
	case types.StatusConnected:
		return fmt.Sprintf("Box %s is back online", label)
	case types.StatusDisconnected:
		return fmt.Sprintf("Box %s went offline", label)
	}
	return fmt.Sprintf("Box %s is %s", label, strings.ToLower(string(e.Status)))
}

// Handler delivers an event to a target such as "telegram:12345".
type Handler func(ctx context.Context, target string, ev Event) error

// Registry routes events to the delivery handler registered for the target's
// prefix (e.g. "telegram:", "nats:"). The longest matching prefix wins.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for targets starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Deliver finds the handler matching the target prefix and calls it.
// Returns an error if no handler is registered for the prefix.
func (r *Registry) Deliver(ctx context.Context, target string, ev Event) error {
	r.mu.RLock()
	var (
		best    string
		handler Handler
	)
	for prefix, h := range r.handlers {
		if strings.HasPrefix(target, prefix) && len(prefix) >= len(best) {
			best, handler = prefix, h
		}
	}
	r.mu.RUnlock()

	if handler == nil {
		return fmt.Errorf("no delivery handler for target: %s", target)
	}
	return handler(ctx, target, ev)
}
