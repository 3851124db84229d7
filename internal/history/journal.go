// internal/history/journal.go
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/boxwatch/internal/types"
)

// Entry is one recorded connection status transition.
type Entry struct {
	ID       types.EventID          `json:"id"`
	Seq      int64                  `json:"seq"`
	PeerID   types.PeerID           `json:"peerId"`
	Status   types.ConnectionStatus `json:"status"`
	Previous types.ConnectionStatus `json:"previous,omitempty"`
	At       time.Time              `json:"at"`
}

// Journal is a JSONL-backed, append-only log of status transitions.
// Entries are stored per peer in <root>/<escaped peer id>.jsonl.
type Journal struct {
	root  string
	mu    sync.Mutex
	locks map[types.PeerID]*sync.Mutex
}

// NewJournal creates a journal rooted at the given directory.
func NewJournal(root string) *Journal {
	return &Journal{
		root:  root,
		locks: make(map[types.PeerID]*sync.Mutex),
	}
}

func (j *Journal) getLock(peerID types.PeerID) *sync.Mutex {
	j.mu.Lock()
	defer j.mu.Unlock()

	if lock, ok := j.locks[peerID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	j.locks[peerID] = lock
	return lock
}

func (j *Journal) path(peerID types.PeerID) string {
	return filepath.Join(j.root, url.PathEscape(string(peerID))+".jsonl")
}

// count counts lines in the peer's file. Caller must hold the peer lock.
func (j *Journal) count(peerID types.PeerID) (int64, error) {
	f, err := os.Open(j.path(peerID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	var n int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan history file: %w", err)
	}
	return n, nil
}

// Append records e, assigning its sequence number and, when missing, its ID
// and timestamp.
func (j *Journal) Append(_ context.Context, e *Entry) error {
	if e.PeerID == "" {
		return fmt.Errorf("append history: empty peer id")
	}
	lock := j.getLock(e.PeerID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(j.root, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	existing, err := j.count(e.PeerID)
	if err != nil {
		return err
	}
	e.Seq = existing + 1
	if e.ID == "" {
		e.ID = types.NewEventID()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	f, err := os.OpenFile(j.path(e.PeerID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write history entry: %w", err)
	}
	return nil
}

// Tail returns the last limit entries for peerID, oldest first. A limit of
// zero or less returns everything.
func (j *Journal) Tail(_ context.Context, peerID types.PeerID, limit int) ([]*Entry, error) {
	lock := j.getLock(peerID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(j.path(peerID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	var entries []*Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("unmarshal history entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history file: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Count returns the number of entries recorded for peerID.
func (j *Journal) Count(_ context.Context, peerID types.PeerID) (int64, error) {
	lock := j.getLock(peerID)
	lock.Lock()
	defer lock.Unlock()

	return j.count(peerID)
}
