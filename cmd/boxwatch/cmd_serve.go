package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/user/boxwatch/internal/api"
	"github.com/user/boxwatch/internal/blobstore"
	"github.com/user/boxwatch/internal/codec"
	"github.com/user/boxwatch/internal/history"
	"github.com/user/boxwatch/internal/metrics"
	"github.com/user/boxwatch/internal/monitor"
	"github.com/user/boxwatch/internal/notify"
	"github.com/user/boxwatch/internal/probe"
	"github.com/user/boxwatch/internal/state"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("ephemeral", false, "keep device state in memory only")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the boxwatch daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "boxwatch.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if ephemeral, _ := cmd.Flags().GetBool("ephemeral"); ephemeral {
		cfg.Storage.Backend = "memory"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Monitor.Enabled {
		if err := monitor.Validate(cfg.Monitor.Schedule); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Write PID file
	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Durable store and codec
	blobs, err := blobstore.Open(ctx, blobstore.Options{
		Backend:   cfg.Storage.Backend,
		DataDir:   cfg.DataDir,
		NATSURL:   cfg.Storage.NATS.URL,
		NATSToken: cfg.Storage.NATS.Token,
		NATSKV:    cfg.Storage.NATS.Bucket,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer blobs.Close()

	stateCodec, err := codec.ByName(cfg.Storage.Codec)
	if err != nil {
		return err
	}

	// Probe
	retry := probe.DefaultRetryPolicy()
	retry.MaxAttempts = max(cfg.Probe.MaxAttempts, 1)
	box := probe.NewHTTP(cfg.Probe.BaseURL, cfg.ProbeTimeout(), retry)

	// Metrics
	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	// State container
	store := state.New(blobs, box,
		state.WithKey(cfg.Storage.Key),
		state.WithCodec(stateCodec),
		state.WithRecorder(recorder),
		state.WithMaxConcurrentWrites(int64(cfg.Storage.MaxConcurrentWrites)),
	)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := store.Close(closeCtx); err != nil {
			slog.Warn("flush state on shutdown failed", "error", err)
		}
	}()
	store.Subscribe(recorder.Track(store))
	store.Hydrate(ctx)

	journal := history.NewJournal(filepath.Join(cfg.DataDir, "history"))

	// Delivery registry
	deliveries := notify.NewRegistry()
	deliveries.Register("log:", notify.Log)

	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("create telegram sink: %w", err)
		}
		deliveries.Register("telegram:", tg.Deliver)
		go tg.Listen(ctx, store)
		slog.Info("telegram notifications enabled")
	} else {
		slog.Warn("telegram notifications disabled (no token)")
	}

	if cfg.Notify.NATSURL != "" {
		var extra []nats.Option
		if cfg.Notify.NATSToken != "" {
			extra = append(extra, nats.Token(cfg.Notify.NATSToken))
		}
		sink, err := notify.NewNATS(cfg.Notify.NATSURL, extra...)
		if err != nil {
			return fmt.Errorf("create nats sink: %w", err)
		}
		defer sink.Close()
		deliveries.Register("nats:", sink.Deliver)
		slog.Info("nats notifications enabled", "url", cfg.Notify.NATSURL)
	}

	notifier := notify.NewNotifier(deliveries, cfg.Notify.Targets, journal, store)
	store.Subscribe(notifier.Observe)
	go notifier.Run(ctx)

	// Monitor
	if cfg.Monitor.Enabled {
		mon := monitor.New(store, cfg.Monitor.Schedule, cfg.ProbeTimeout())
		if err := mon.Start(); err != nil {
			return fmt.Errorf("start monitor: %w", err)
		}
		defer mon.Stop()
	}

	slog.Info("boxwatch started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"backend", cfg.Storage.Backend,
		"codec", cfg.Storage.Codec,
		"probe_url", cfg.Probe.BaseURL,
		"devices", len(store.Devices()),
		"pid_file", pidPath,
	)

	// HTTP API
	if cfg.HTTP.Enabled {
		httpServer := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           api.NewServer(store, journal, recorder.Handler()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("http api started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http api error", "error", err)
			}
		}()
		defer httpServer.Close()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			flushCtx, flushCancel := context.WithTimeout(ctx, 5*time.Second)
			if err := store.Flush(flushCtx); err != nil {
				slog.Warn("flush state before restart failed", "error", err)
			}
			flushCancel()
			blobs.Close()
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				// Storage is already closed, so there is nothing to fall back to.
				return fmt.Errorf("re-exec: %w", err)
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
