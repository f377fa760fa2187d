package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"gazemap-go/internal/config"
	"gazemap-go/internal/device"
	"gazemap-go/internal/device/pupil"
	"gazemap-go/internal/device/replay"
	"gazemap-go/internal/device/sim"
	"gazemap-go/internal/mapping"
	"gazemap-go/internal/output"
	"gazemap-go/internal/processing"
	"gazemap-go/internal/server"
	"gazemap-go/internal/session"
	"gazemap-go/internal/surface"
	"gazemap-go/internal/telemetry"
	"gazemap-go/internal/types"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gazemap exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	pflag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP port for websocket subscribers and the web UI")
	pflag.StringVar(&cfg.RemoteEndpoint, "remote", cfg.RemoteEndpoint, "Pupil Remote endpoint")
	pflag.StringVar(&cfg.LayoutFile, "layout", cfg.LayoutFile, "Surface layout YAML (built-in layout when empty)")
	pflag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Run with a simulated eye tracker")
	pflag.Float64Var(&cfg.SimRate, "sim-rate", cfg.SimRate, "Simulated frame rate (frames/sec)")
	pflag.StringVar(&cfg.ReplayFile, "replay", cfg.ReplayFile, "Replay a recording instead of a live device")
	pflag.BoolVar(&cfg.ReplayLoop, "replay-loop", cfg.ReplayLoop, "Restart the replay at end of file")
	pflag.StringVar(&cfg.RecordDir, "record-dir", cfg.RecordDir, "Record acquired frames into this directory")
	pflag.IntVar(&cfg.BroadcastBuffer, "broadcast-buffer", cfg.BroadcastBuffer, "Gaze events queued for subscribers before dropping")
	pflag.Float64Var(&cfg.MinConfidence, "min-confidence", cfg.MinConfidence, "Drop gaze below this confidence")
	pflag.DurationVar(&cfg.MaxSkew, "max-skew", cfg.MaxSkew, "Largest accepted frame/gaze timestamp difference")
	pflag.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Fail the session when the device sends nothing for this long")
	pflag.BoolVar(&cfg.StartFramePublisher, "start-frame-publisher", cfg.StartFramePublisher, "Ask Pupil Capture to start the Frame_Publisher plugin")
	pflag.DurationVar(&cfg.StatusInterval, "status-interval", cfg.StatusInterval, "Pupil Remote status polling interval")
	pflag.BoolVar(&cfg.AutoStart, "auto-start", cfg.AutoStart, "Start streaming without waiting for a subscriber")
	pflag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	pflag.IntVar(&cfg.IngestLogEvery, "ingest-log-every", cfg.IngestLogEvery, "Log every Nth skipped device message")
	pflag.Parse()

	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "gazemap")
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace flush failed", "err", err)
		}
	}()

	layout := config.DefaultLayout()
	if cfg.LayoutFile != "" {
		if layout, err = config.LoadLayout(cfg.LayoutFile); err != nil {
			return err
		}
	}
	registry, err := config.BuildRegistry(layout)
	if err != nil {
		return fmt.Errorf("surface layout: %w", err)
	}
	for _, s := range registry.Surfaces() {
		logger.Info("surface registered", "name", s.Name, "uid", s.UID, "markers", s.MarkerIDs())
	}

	var calibration types.Calibration
	if layout.Calibration != nil {
		calibration = *layout.Calibration
	}

	deviceStatus := &statusBox{value: map[string]any{"remote": "unknown"}}
	dev, err := openDevice(ctx, cfg, registry, calibration, logger, deviceStatus)
	if err != nil {
		return err
	}
	defer dev.Close()

	cal, err := dev.Calibration(ctx)
	if err != nil {
		return device.Wrap("calibration", err)
	}
	if cal.IsZero() {
		logger.Warn("no camera calibration, mapping distorted image coordinates")
	}

	var recorder processing.Recorder
	if cfg.RecordDir != "" {
		rec, err := output.NewRecorder(cfg.RecordDir, "gaze")
		if err != nil {
			return fmt.Errorf("start recording: %w", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Warn("recording close failed", "err", err)
			}
			logger.Info("recording closed", "path", rec.Path(), "frames", rec.Count())
		}()
		logger.Info("recording frames", "path", rec.Path())
		recorder = rec
	}

	stats := &processing.Stats{}
	srv := server.New(server.Options{
		Port:         cfg.Port,
		Surfaces:     registry.Surfaces(),
		Buffer:       cfg.BroadcastBuffer,
		DeviceStatus: deviceStatus.get,
		Logger:       logger,
	})
	ctrl := session.New(ctx, session.Config{
		Device:   dev,
		Oracle:   mapping.NewMapper(cal, nil),
		Registry: registry,
		Emit:     srv.Emit,
		Recorder: recorder,
		Stats:    stats,
		Logger:   logger,
	})
	srv.SetController(ctrl)
	defer ctrl.Stop()

	if cfg.AutoStart {
		if err := ctrl.Start(); err != nil {
			return err
		}
	}

	go logStats(ctx, logger, stats)

	logger.Info("starting web UI", "url", fmt.Sprintf("http://localhost:%d", cfg.Port))
	return srv.Run(ctx)
}

func openDevice(ctx context.Context, cfg config.AppConfig, registry *surface.Registry, cal types.Calibration, logger *slog.Logger, status *statusBox) (device.Device, error) {
	switch {
	case cfg.Debug:
		status.set(map[string]any{"remote": "simulator"})
		return sim.New(registry.Surfaces(), cfg.SimRate), nil
	case cfg.ReplayFile != "":
		status.set(map[string]any{"remote": "replay", "path": cfg.ReplayFile})
		return replay.Open(cfg.ReplayFile, replay.Options{Realtime: true, Loop: cfg.ReplayLoop, Calibration: cal})
	}

	dev, err := pupil.Dial(pupil.Options{
		Endpoint:            cfg.RemoteEndpoint,
		StartFramePublisher: cfg.StartFramePublisher,
		MinConfidence:       cfg.MinConfidence,
		MaxSkew:             cfg.MaxSkew,
		IdleTimeout:         cfg.IdleTimeout,
		Calibration:         cal,
		LogEvery:            cfg.IngestLogEvery,
		Logger:              logger,
	})
	if err != nil {
		return nil, err
	}
	go pupil.Poll(ctx, cfg.RemoteEndpoint, cfg.StatusInterval, func(s pupil.Status) {
		status.set(s)
	})
	return dev, nil
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func logStats(ctx context.Context, logger *slog.Logger, stats *processing.Stats) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("pipeline stats",
				"acquired", stats.FramesAcquired(),
				"processed", stats.FramesProcessed(),
				"events", stats.EventsEmitted(),
			)
		}
	}
}

type statusBox struct {
	mu    sync.Mutex
	value any
}

func (b *statusBox) set(v any) {
	b.mu.Lock()
	b.value = v
	b.mu.Unlock()
}

func (b *statusBox) get() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}
