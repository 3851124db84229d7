// internal/state/hydrate.go
package state

import (
	"context"
	"errors"
	"log/slog"

	"github.com/user/boxwatch/internal/codec"
	"github.com/user/boxwatch/internal/types"
)

// Hydrate loads the persisted device collection, merges it over the current
// devices (persisted entries win) and marks the store hydrated. Missing,
// unreadable or undecodable data is logged and treated as "nothing
// persisted". Device changes made before Hydrate are saved together with the
// merged collection. Only the first call does any work.
func (s *Store) Hydrate(ctx context.Context) {
	s.hydrateOnce.Do(func() {
		persisted := s.load(ctx)

		var changes []Change
		s.mu.Lock()
		if len(persisted) > 0 {
			for k, d := range persisted {
				s.devices[k] = d
			}
			changes = append(changes, s.changeLocked(Change{Kind: ChangeDevices}))
		}
		s.hydrated = true
		rev, snap, save := s.releaseLocked()
		changes = append(changes, s.changeLocked(Change{Kind: ChangeHydrated}))
		s.mu.Unlock()

		if save {
			s.persist.dispatch(rev, snap)
		}
		s.emit(changes...)
		slog.Info("state hydrated", "devices", len(persisted))
	})
}

func (s *Store) load(ctx context.Context) types.Devices {
	p := s.persist
	raw, ok, err := p.blobs.Get(ctx, p.key)
	if err != nil {
		slog.Warn("read persisted state failed", "key", p.key, "error", err)
		return nil
	}
	if !ok {
		slog.Debug("no persisted state", "key", p.key)
		return nil
	}

	devices, err := p.codec.Decode(raw)
	if err != nil {
		if errors.Is(err, codec.ErrVersionMismatch) {
			slog.Warn("discarding persisted state from another version", "key", p.key, "error", err)
		} else {
			slog.Warn("decode persisted state failed", "key", p.key, "error", err)
		}
		return nil
	}
	return devices
}
