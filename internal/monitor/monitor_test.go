// internal/monitor/monitor_test.go
package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/boxwatch/internal/blobstore"
	"github.com/user/boxwatch/internal/probe"
	"github.com/user/boxwatch/internal/state"
	"github.com/user/boxwatch/internal/types"
)

func newStore(t *testing.T, p types.Probe) *state.Store {
	t.Helper()
	s := state.New(blobstore.NewMemoryStore(), p)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestSweepChecksEveryDevice(t *testing.T) {
	var spaceCalls atomic.Int32
	s := newStore(t, probe.Funcs{
		Connectivity: func(context.Context) (bool, error) { return true, nil },
		FreeSpace: func(context.Context) (*types.FreeSpace, error) {
			spaceCalls.Add(1)
			return &types.FreeSpace{Avail: 42}, nil
		},
	})
	s.AddDevice(types.Device{PeerID: "a"})
	s.AddDevice(types.Device{PeerID: "b"})
	s.SelectDevice("b")

	res := New(s, "", 0).Sweep(context.Background())

	if res.Checked != 2 || res.Connected != 2 || res.Failed != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if spaceCalls.Load() != 1 {
		t.Errorf("expected one free space call, got %d", spaceCalls.Load())
	}
	for _, id := range []types.PeerID{"a", "b"} {
		if st, _ := s.Status(id); st != types.StatusConnected {
			t.Errorf("peer %s: expected CONNECTED, got %q", id, st)
		}
	}
	if d, _ := s.Device("b"); d.FreeSpace == nil || d.FreeSpace.Avail != 42 {
		t.Errorf("expected current device free space refreshed, got %+v", d.FreeSpace)
	}
	if d, _ := s.Device("a"); d.FreeSpace != nil {
		t.Errorf("expected non-current device untouched, got %+v", d.FreeSpace)
	}
}

func TestSweepContinuesAfterFailure(t *testing.T) {
	s := newStore(t, probe.Funcs{
		Connectivity: func(context.Context) (bool, error) { return false, errors.New("unreachable") },
	})
	s.AddDevice(types.Device{PeerID: "a"})
	s.AddDevice(types.Device{PeerID: "b"})

	res := New(s, "", 0).Sweep(context.Background())

	if res.Checked != 2 || res.Failed != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.FreeSpace != nil {
		t.Error("expected no free space without a current device")
	}
	if st, _ := s.Status("b"); st != types.StatusDisconnected {
		t.Errorf("expected DISCONNECTED, got %q", st)
	}
}

func TestSweepAppliesTimeout(t *testing.T) {
	s := newStore(t, probe.Funcs{
		Connectivity: func(ctx context.Context) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		},
	})
	s.AddDevice(types.Device{PeerID: "a"})

	res := New(s, "", 20*time.Millisecond).Sweep(context.Background())
	if res.Failed != 1 {
		t.Errorf("expected timed out check to fail, got %+v", res)
	}
}

func TestMonitorFiresOnSchedule(t *testing.T) {
	var checks atomic.Int32
	s := newStore(t, probe.Funcs{
		Connectivity: func(context.Context) (bool, error) {
			checks.Add(1)
			return true, nil
		},
	})
	s.AddDevice(types.Device{PeerID: "a"})

	m := New(s, "* * * * * *", 0)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("monitor did not fire within 2.5s, checks=%d", checks.Load())
		case <-ticker.C:
			if checks.Load() > 0 {
				return
			}
		}
	}
}

func TestInvalidSchedule(t *testing.T) {
	if err := Validate("not a schedule"); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if err := Validate("@every 30s"); err != nil {
		t.Errorf("expected valid schedule, got %v", err)
	}
	m := New(newStore(t, probe.Funcs{}), "bogus", 0)
	if err := m.Start(); err == nil {
		m.Stop()
		t.Error("expected Start to reject invalid schedule")
	}
}
