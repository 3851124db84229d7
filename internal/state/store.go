// internal/state/store.go
package state

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/user/boxwatch/internal/codec"
	"github.com/user/boxwatch/internal/types"
)

// DefaultKey is the blob key the device projection is stored under.
const DefaultKey = "bloxsModelSlice"

// ErrPeerIDRequired is returned when a device or patch has no peer ID.
var ErrPeerIDRequired = errors.New("peer id required")

// Recorder receives timing and outcome of probe calls and persistence writes.
type Recorder interface {
	ObserveProbe(op string, d time.Duration, err error)
	ObservePersist(d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveProbe(string, time.Duration, error) {}
func (nopRecorder) ObservePersist(time.Duration, error)       {}

// Snapshot is a point-in-time copy of the root state.
type Snapshot struct {
	Hydrated         bool           `json:"hydrated"`
	Devices          types.Devices  `json:"devices"`
	ConnectionStatus types.Statuses `json:"connectionStatus"`
	CurrentPeerID    types.PeerID   `json:"currentPeerId,omitempty"`
}

// Store is the state container. All reads return copies; all mutations are
// applied under one lock so observers never see a half-applied change.
//
// Device changes made before hydration are kept in memory only. Hydrate
// merges the persisted collection over them and then saves the result once,
// so an early mutation never overwrites data that has not been read yet.
type Store struct {
	mu            sync.RWMutex
	hydrated      bool
	devices       types.Devices
	statuses      types.Statuses
	currentPeerID types.PeerID
	rev           uint64
	seq           uint64
	unsaved       bool

	probe       types.Probe
	persist     *persister
	recorder    Recorder
	hydrateOnce sync.Once

	subsMu  sync.RWMutex
	subs    map[uint64]func(Change)
	nextSub uint64
}

type options struct {
	key                 string
	codec               types.Codec
	recorder            Recorder
	maxConcurrentWrites int64
}

// Option configures a Store.
type Option func(*options)

// WithKey overrides the blob key (DefaultKey).
func WithKey(key string) Option {
	return func(o *options) { o.key = key }
}

// WithCodec sets the codec used for the persisted projection (JSON by default).
func WithCodec(c types.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithMaxConcurrentWrites bounds the number of persistence writes encoding
// at the same time.
func WithMaxConcurrentWrites(n int64) Option {
	return func(o *options) { o.maxConcurrentWrites = n }
}

// New creates an empty, unhydrated Store persisting into blobs and probing
// through probe.
func New(blobs types.BlobStore, probe types.Probe, opts ...Option) *Store {
	o := options{
		key:                 DefaultKey,
		codec:               codec.JSON{},
		recorder:            nopRecorder{},
		maxConcurrentWrites: 2,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxConcurrentWrites < 1 {
		o.maxConcurrentWrites = 1
	}
	return &Store{
		devices:  types.Devices{},
		statuses: types.Statuses{},
		probe:    probe,
		recorder: o.recorder,
		persist:  newPersister(blobs, o.codec, o.key, o.maxConcurrentWrites, o.recorder),
		subs:     make(map[uint64]func(Change)),
	}
}

// Hydrated reports whether persisted data has been loaded.
func (s *Store) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// Devices returns a deep copy of the device collection.
func (s *Store) Devices() types.Devices {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.devices.Clone()
}

// Device returns a copy of the record at peerID.
func (s *Store) Device(peerID types.PeerID) (types.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[peerID]
	if !ok {
		return types.Device{}, false
	}
	return d.Clone(), true
}

// ConnectionStatus returns a copy of the status collection.
func (s *Store) ConnectionStatus() types.Statuses {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statuses.Clone()
}

// Status returns the recorded status for peerID; ok is false when the peer
// has never been checked.
func (s *Store) Status(peerID types.PeerID) (types.ConnectionStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[peerID]
	return st, ok
}

// CurrentPeerID returns the selected box, if any.
func (s *Store) CurrentPeerID() (types.PeerID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentPeerID, s.currentPeerID != ""
}

// Snapshot returns a copy of the whole root state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Hydrated:         s.hydrated,
		Devices:          s.devices.Clone(),
		ConnectionStatus: s.statuses.Clone(),
		CurrentPeerID:    s.currentPeerID,
	}
}

// SetHydrated sets the hydrated flag. Normally only Hydrate calls it.
func (s *Store) SetHydrated(flag bool) {
	s.mu.Lock()
	s.hydrated = flag
	rev, snap, save := s.releaseLocked()
	c := s.changeLocked(Change{Kind: ChangeHydrated})
	s.mu.Unlock()

	if save {
		s.persist.dispatch(rev, snap)
	}
	s.emit(c)
}

// Patch is a field-level overwrite of the root state. Nil fields are left
// alone. Devices, when supplied, replaces the whole collection.
type Patch struct {
	Hydrated         *bool
	Devices          types.Devices
	ConnectionStatus types.Statuses
	CurrentPeerID    *types.PeerID
}

// Apply overwrites the supplied fields of the root state. It is meant for
// bulk and administrative updates; entry-level changes go through
// AddDevice, UpdateDevice and RemoveDevice.
func (s *Store) Apply(p Patch) {
	var changes []Change

	s.mu.Lock()
	if p.Hydrated != nil {
		s.hydrated = *p.Hydrated
		changes = append(changes, s.changeLocked(Change{Kind: ChangeHydrated}))
	}
	if p.ConnectionStatus != nil {
		s.statuses = p.ConnectionStatus.Clone()
		changes = append(changes, s.changeLocked(Change{Kind: ChangeStatuses}))
	}
	if p.CurrentPeerID != nil {
		s.currentPeerID = *p.CurrentPeerID
		changes = append(changes, s.changeLocked(Change{Kind: ChangeCurrent, PeerID: s.currentPeerID}))
	}
	if p.Devices != nil {
		s.devices = make(types.Devices, len(p.Devices))
		for k, d := range p.Devices {
			d = d.Clone()
			d.PeerID = k
			s.devices[k] = d
		}
		s.unsaved = true
		changes = append(changes, s.changeLocked(Change{Kind: ChangeDevices}))
	}
	rev, snap, save := s.releaseLocked()
	s.mu.Unlock()

	if save {
		s.persist.dispatch(rev, snap)
	}
	s.emit(changes...)
}

// AddDevice inserts d, replacing any record already stored at d.PeerID.
func (s *Store) AddDevice(d types.Device) error {
	if d.PeerID == "" {
		return ErrPeerIDRequired
	}
	s.mu.Lock()
	s.devices[d.PeerID] = d.Clone()
	s.unsaved = true
	rev, snap, save := s.releaseLocked()
	c := s.changeLocked(Change{Kind: ChangeDevices, PeerID: d.PeerID})
	s.mu.Unlock()

	if save {
		s.persist.dispatch(rev, snap)
	}
	s.emit(c)
	return nil
}

// UpdateDevice merges the supplied fields of p into the record at p.PeerID.
// A missing record is created from the supplied fields alone.
func (s *Store) UpdateDevice(p types.DevicePatch) error {
	if p.PeerID == "" {
		return ErrPeerIDRequired
	}
	s.mu.Lock()
	s.devices[p.PeerID] = p.Apply(s.devices[p.PeerID])
	s.unsaved = true
	rev, snap, save := s.releaseLocked()
	c := s.changeLocked(Change{Kind: ChangeDevices, PeerID: p.PeerID})
	s.mu.Unlock()

	if save {
		s.persist.dispatch(rev, snap)
	}
	s.emit(c)
	return nil
}

// RemoveDevice deletes the record at peerID. Removing an absent peer is a no-op.
func (s *Store) RemoveDevice(peerID types.PeerID) {
	s.mu.Lock()
	if _, ok := s.devices[peerID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.devices, peerID)
	s.unsaved = true
	rev, snap, save := s.releaseLocked()
	c := s.changeLocked(Change{Kind: ChangeDevices, PeerID: peerID})
	s.mu.Unlock()

	if save {
		s.persist.dispatch(rev, snap)
	}
	s.emit(c)
}

// SelectDevice marks peerID as the current box. An empty peerID clears it.
func (s *Store) SelectDevice(peerID types.PeerID) {
	s.mu.Lock()
	s.currentPeerID = peerID
	c := s.changeLocked(Change{Kind: ChangeCurrent, PeerID: peerID})
	s.mu.Unlock()
	s.emit(c)
}

// Reset empties devices, statuses and the current selection. The hydrated
// flag is kept.
func (s *Store) Reset() {
	s.mu.Lock()
	s.devices = types.Devices{}
	s.statuses = types.Statuses{}
	s.currentPeerID = ""
	s.unsaved = true
	rev, snap, save := s.releaseLocked()
	c := s.changeLocked(Change{Kind: ChangeReset})
	s.mu.Unlock()

	if save {
		s.persist.dispatch(rev, snap)
	}
	s.emit(c)
}

// releaseLocked hands out a revisioned copy of the devices when there are
// unsaved changes and the store is hydrated. Caller must hold s.mu.
func (s *Store) releaseLocked() (uint64, types.Devices, bool) {
	if !s.unsaved || !s.hydrated {
		return 0, nil, false
	}
	s.unsaved = false
	s.rev++
	return s.rev, s.devices.Clone(), true
}

// changeLocked stamps c with the next sequence number. Caller must hold s.mu.
func (s *Store) changeLocked(c Change) Change {
	s.seq++
	c.Seq = s.seq
	return c
}

func (s *Store) setStatus(peerID types.PeerID, status types.ConnectionStatus) {
	s.mu.Lock()
	prev := s.statuses[peerID]
	s.statuses[peerID] = status
	c := s.changeLocked(Change{Kind: ChangeStatus, PeerID: peerID, Status: status, Previous: prev})
	s.mu.Unlock()

	slog.Debug("connection status", "peer_id", peerID, "status", status, "previous", prev)
	s.emit(c)
}
