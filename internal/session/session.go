// Package session owns the lifecycle of the acquisition and processing loops.
//
// A Controller is either Idle or Streaming. Start launches one fresh pair of
// loops sharing a new relay; Stop cancels them and waits until both have
// returned. Both operations are idempotent and serialized, so at most one
// pair of loops is alive at any time.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gazemap-go/internal/device"
	"gazemap-go/internal/mapping"
	"gazemap-go/internal/processing"
	"gazemap-go/internal/relay"
	"gazemap-go/internal/surface"
	"gazemap-go/internal/types"
)

type State int

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

type Config struct {
	Device   device.Device
	Oracle   mapping.Oracle
	Registry *surface.Registry
	Emit     processing.Emitter
	Recorder processing.Recorder
	Stats    *processing.Stats
	Logger   *slog.Logger
}

type Controller struct {
	cfg  Config
	base context.Context

	// lifecycle serializes Start and Stop, including Stop's wait.
	lifecycle sync.Mutex

	mu      sync.Mutex
	state   State
	current *run
	lastErr error
	runs    uint64
}

type run struct {
	id     uuid.UUID
	cancel context.CancelFunc
	relay  *relay.Relay
	done   chan struct{}
}

// New returns an Idle controller. Loops of every session are children of
// base; cancelling base ends a running session like a failure would.
func New(base context.Context, cfg Config) *Controller {
	if cfg.Stats == nil {
		cfg.Stats = &processing.Stats{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Emit == nil {
		cfg.Emit = func(types.GazeEvent) {}
	}
	return &Controller{cfg: cfg, base: base}
}

// Start begins streaming. It is a no-op when already Streaming.
func (c *Controller) Start() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.state == Streaming {
		id := c.current.id
		c.mu.Unlock()
		c.cfg.Logger.Info("start ignored, already streaming", "session", id)
		return nil
	}
	if err := c.base.Err(); err != nil {
		c.mu.Unlock()
		return err
	}

	c.cfg.Registry.Seal()

	ctx, cancel := context.WithCancel(c.base)
	r := &run{
		id:     uuid.New(),
		cancel: cancel,
		relay:  relay.New(),
		done:   make(chan struct{}),
	}
	c.state = Streaming
	c.current = r
	c.lastErr = nil
	c.runs++
	c.mu.Unlock()

	logger := c.cfg.Logger.With("session", r.id)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return processing.Acquire(gctx, c.cfg.Device, r.relay, processing.AcquireOptions{
			Recorder: c.cfg.Recorder,
			Stats:    c.cfg.Stats,
			Logger:   logger,
		})
	})
	g.Go(func() error {
		return processing.Process(gctx, r.relay, c.cfg.Oracle, c.cfg.Registry, c.cfg.Emit, processing.ProcessOptions{
			Stats:  c.cfg.Stats,
			Logger: logger,
		})
	})
	go c.supervise(r, g, logger)

	logger.Info("streaming started")
	return nil
}

func (c *Controller) supervise(r *run, g *errgroup.Group, logger *slog.Logger) {
	err := g.Wait()
	r.cancel()
	r.relay.Close()

	failed := !isCancellation(err)
	c.mu.Lock()
	if c.current == r {
		c.state = Idle
		c.current = nil
		if failed {
			c.lastErr = err
		}
	}
	c.mu.Unlock()

	if failed {
		logger.Error("streaming stopped unexpectedly", "error", err)
	} else {
		logger.Info("streaming stopped")
	}
	close(r.done)
}

// Stop ends streaming and returns once both loops have exited. It is a no-op
// when Idle.
func (c *Controller) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	r := c.current
	if c.state == Idle || r == nil {
		c.mu.Unlock()
		return nil
	}
	c.state = Idle
	c.current = nil
	c.mu.Unlock()

	r.cancel()
	<-r.done
	return nil
}

// Wait blocks until the current session, if any, has ended.
func (c *Controller) Wait() {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r != nil {
		<-r.done
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure that ended the last session, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.id.String()
}

func (c *Controller) Status() map[string]any {
	c.mu.Lock()
	status := map[string]any{
		"state":    c.state.String(),
		"sessions": c.runs,
	}
	if c.current != nil {
		status["session_id"] = c.current.id.String()
		status["relay"] = c.current.relay.Stats()
	}
	if c.lastErr != nil {
		status["last_error"] = c.lastErr.Error()
	}
	c.mu.Unlock()
	status["pipeline"] = c.cfg.Stats.Snapshot()
	return status
}

func isCancellation(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, relay.ErrClosed)
}
