// internal/state/remote.go
package state

import (
	"context"
	"time"

	"github.com/user/boxwatch/internal/types"
)

type freeSpaceOptions struct {
	updateStore bool
}

// FreeSpaceOption configures GetFreeSpace.
type FreeSpaceOption func(*freeSpaceOptions)

// WithoutStoreUpdate makes GetFreeSpace return the metrics without recording
// them on the device.
func WithoutStoreUpdate() FreeSpaceOption {
	return func(o *freeSpaceOptions) { o.updateStore = false }
}

// GetFreeSpace fetches the free-space report of the connected box and, unless
// WithoutStoreUpdate is given, stores it on the device at peerID, keeping the
// record's other fields. The probe is not addressed to peerID: it always
// answers for the box this host is currently connected to.
//
// Probe errors are returned unchanged and leave the state untouched.
func (s *Store) GetFreeSpace(ctx context.Context, peerID types.PeerID, opts ...FreeSpaceOption) (*types.FreeSpace, error) {
	o := freeSpaceOptions{updateStore: true}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	fs, err := s.probe.FetchFreeSpace(ctx)
	s.recorder.ObserveProbe("free_space", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if fs == nil {
		fs = &types.FreeSpace{}
	}

	if o.updateStore {
		stored := *fs

		s.mu.Lock()
		d := s.devices[peerID].Clone()
		d.PeerID = peerID
		d.FreeSpace = &stored
		s.devices[peerID] = d
		s.unsaved = true
		rev, snap, save := s.releaseLocked()
		c := s.changeLocked(Change{Kind: ChangeDevices, PeerID: peerID})
		s.mu.Unlock()

		if save {
			s.persist.dispatch(rev, snap)
		}
		s.emit(c)
	}
	return fs, nil
}

// CheckConnection runs the connection state machine for peerID: the status
// becomes PENDING before the probe is called, then CONNECTED or DISCONNECTED
// from its answer. A probe error records DISCONNECTED and is returned
// unchanged. Concurrent checks of one peer are not serialized; whichever
// resolves last wins.
func (s *Store) CheckConnection(ctx context.Context, peerID types.PeerID) (bool, error) {
	s.setStatus(peerID, types.StatusPending)

	start := time.Now()
	connected, err := s.probe.CheckConnectivity(ctx)
	s.recorder.ObserveProbe("connection", time.Since(start), err)
	if err != nil {
		s.setStatus(peerID, types.StatusDisconnected)
		return false, err
	}

	if connected {
		s.setStatus(peerID, types.StatusConnected)
	} else {
		s.setStatus(peerID, types.StatusDisconnected)
	}
	return connected, nil
}
