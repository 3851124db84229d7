//go:build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/boxwatch/internal/api"
	"github.com/user/boxwatch/internal/blobstore"
	"github.com/user/boxwatch/internal/codec"
	"github.com/user/boxwatch/internal/history"
	"github.com/user/boxwatch/internal/monitor"
	"github.com/user/boxwatch/internal/notify"
	"github.com/user/boxwatch/internal/probe"
	"github.com/user/boxwatch/internal/state"
	"github.com/user/boxwatch/internal/types"
)

// fakeBox serves the box's local API.
func fakeBox(t *testing.T, online *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/connection":
			json.NewEncoder(w).Encode(map[string]bool{"connected": online.Load()})
		case "/free-space":
			json.NewEncoder(w).Encode(types.FreeSpace{Size: 1000, Avail: 100, Used: 900, UsedPercentage: 90})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	var online atomic.Bool
	online.Store(true)
	box := fakeBox(t, &online)
	p := probe.NewHTTP(box.URL, 5*time.Second, nil)

	// First run: pair a box, probe it, persist.
	blobs := blobstore.NewFileStore(dir)
	store := state.New(blobs, p, state.WithCodec(codec.YAML{}))
	store.Hydrate(ctx)

	journal := history.NewJournal(t.TempDir())
	deliveries := notify.NewRegistry()
	var delivered atomic.Int32
	deliveries.Register("test:", func(context.Context, string, notify.Event) error {
		delivered.Add(1)
		return nil
	})
	notifier := notify.NewNotifier(deliveries, []string{"test:1"}, journal, store)
	store.Subscribe(notifier.Observe)
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go notifier.Run(runCtx)

	ts := httptest.NewServer(api.NewServer(store, journal, nil))
	defer ts.Close()
	client := api.NewClient(ts.URL, 5*time.Second)

	if _, err := client.AddDevice(ctx, types.Device{PeerID: "box-1", Name: "Home"}); err != nil {
		t.Fatal(err)
	}
	if _, err := client.SelectDevice(ctx, "box-1"); err != nil {
		t.Fatal(err)
	}

	mon := monitor.New(store, "", time.Second)
	res := mon.Sweep(ctx)
	if res.Connected != 1 || res.FreeSpace == nil || res.FreeSpace.Avail != 100 {
		t.Fatalf("unexpected sweep: %+v", res)
	}

	online.Store(false)
	mon.Sweep(ctx)

	deadline := time.After(5 * time.Second)
	for delivered.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no notification delivered")
		case <-time.After(20 * time.Millisecond):
		}
	}

	if err := store.Close(ctx); err != nil {
		t.Fatal(err)
	}

	// Second run: only devices come back.
	restarted := state.New(blobstore.NewFileStore(dir), p, state.WithCodec(codec.YAML{}))
	defer restarted.Close(ctx)
	restarted.Hydrate(ctx)

	d, ok := restarted.Device("box-1")
	if !ok {
		t.Fatal("device not restored")
	}
	if d.Name != "Home" || d.FreeSpace == nil || d.FreeSpace.Avail != 100 {
		t.Errorf("unexpected restored device: %+v", d)
	}
	if len(restarted.ConnectionStatus()) != 0 {
		t.Error("connection status should not be persisted")
	}
	if _, ok := restarted.CurrentPeerID(); ok {
		t.Error("current peer should not be persisted")
	}

	entries, err := journal.Tail(ctx, "box-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 journaled transitions, got %d", len(entries))
	}
}
