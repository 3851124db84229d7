package state

import (
	"github.com/user/boxwatch/internal/types"
)

// ChangeKind names what part of the state a Change touched.
type ChangeKind string

const (
	ChangeHydrated ChangeKind = "hydrated"
	ChangeDevices  ChangeKind = "devices"
	ChangeStatus   ChangeKind = "status"
	ChangeStatuses ChangeKind = "statuses"
	ChangeCurrent  ChangeKind = "current"
	ChangeReset    ChangeKind = "reset"
)

// Change describes one mutation. PeerID is set when the change concerns a
// single peer; Status and Previous are set for ChangeStatus.
//
// Seq is taken under the state lock, so it follows the order in which the
// mutations were applied. Changes are delivered after the lock is released
// and concurrent mutations may reach subscribers out of order; compare Seq
// to tell which one is newer.
type Change struct {
	Kind     ChangeKind
	Seq      uint64
	PeerID   types.PeerID
	Status   types.ConnectionStatus
	Previous types.ConnectionStatus
}

// Subscribe registers fn to be called after every mutation, on the goroutine
// that made it and after the state lock is released. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) emit(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	s.subsMu.RLock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.RUnlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}
