// internal/monitor/monitor.go
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/boxwatch/internal/state"
	"github.com/user/boxwatch/internal/types"
)

// Target is the part of the state container the monitor drives.
type Target interface {
	Devices() types.Devices
	CurrentPeerID() (types.PeerID, bool)
	CheckConnection(ctx context.Context, peerID types.PeerID) (bool, error)
	GetFreeSpace(ctx context.Context, peerID types.PeerID, opts ...state.FreeSpaceOption) (*types.FreeSpace, error)
}

var _ Target = (*state.Store)(nil)

// DefaultSchedule runs a sweep once a minute.
const DefaultSchedule = "@every 1m"

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Monitor periodically checks the connection of every known device and
// refreshes the free space of the current one. Sweeps never overlap.
type Monitor struct {
	target   Target
	schedule string
	timeout  time.Duration
	cron     *cron.Cron

	sweepMu sync.Mutex
}

// New creates a monitor. An empty schedule means DefaultSchedule; timeout
// bounds each probe call (zero means no bound).
func New(target Target, schedule string, timeout time.Duration) *Monitor {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Monitor{
		target:   target,
		schedule: schedule,
		timeout:  timeout,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Validate reports whether schedule is a valid cron expression.
func Validate(schedule string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// Start registers the sweep and starts the cron ticker.
func (m *Monitor) Start() error {
	_, err := m.cron.AddFunc(m.schedule, func() {
		m.Sweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", m.schedule, err)
	}
	m.cron.Start()
	slog.Info("monitor started", "schedule", m.schedule)
	return nil
}

// Stop stops the ticker and waits for a running sweep to finish.
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
}

// Result summarizes one sweep.
type Result struct {
	Checked   int
	Connected int
	Failed    int
	FreeSpace *types.FreeSpace
}

// Sweep checks every device once and, if a device is selected, refreshes its
// free space. Errors are logged and counted; the sweep carries on.
func (m *Monitor) Sweep(ctx context.Context) Result {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	var res Result
	devices := m.target.Devices()
	ids := make([]types.PeerID, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if ctx.Err() != nil {
			return res
		}
		res.Checked++
		connected, err := m.check(ctx, id)
		if err != nil {
			res.Failed++
			slog.Warn("connection check failed", "peer_id", id, "error", err)
			continue
		}
		if connected {
			res.Connected++
		}
	}

	if current, ok := m.target.CurrentPeerID(); ok && ctx.Err() == nil {
		fs, err := m.freeSpace(ctx, current)
		if err != nil {
			slog.Warn("free space refresh failed", "peer_id", current, "error", err)
		} else {
			res.FreeSpace = fs
		}
	}

	slog.Debug("monitor sweep", "checked", res.Checked, "connected", res.Connected, "failed", res.Failed)
	return res
}

func (m *Monitor) check(ctx context.Context, id types.PeerID) (bool, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	return m.target.CheckConnection(ctx, id)
}

func (m *Monitor) freeSpace(ctx context.Context, id types.PeerID) (*types.FreeSpace, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	return m.target.GetFreeSpace(ctx, id)
}
