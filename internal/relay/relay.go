// Package relay implements the single-slot hand-off between the acquisition
// and processing loops.
//
// A Relay holds at most one frame. Put never blocks and replaces an
// unconsumed frame (the replaced frame is counted as a drop). Take blocks
// until a frame is present and removes it, so each frame is delivered at
// most once. The slot mutex is never held while waiting.
package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"gazemap-go/internal/types"
)

var ErrClosed = errors.New("relay closed")

type Relay struct {
	mu     sync.Mutex
	frame  *types.Frame
	closed bool

	// ready carries at most one pending wake-up for Take.
	ready chan struct{}
	done  chan struct{}

	puts  atomic.Uint64
	takes atomic.Uint64
	drops atomic.Uint64
}

type Stats struct {
	Puts  uint64 `json:"puts"`
	Takes uint64 `json:"takes"`
	Drops uint64 `json:"drops"`
}

func New() *Relay {
	return &Relay{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Put stores frame, discarding any frame still waiting in the slot. Put on a
// closed relay is a no-op.
func (r *Relay) Put(frame *types.Frame) {
	if frame == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.frame != nil {
		r.drops.Add(1)
	}
	r.frame = frame
	r.mu.Unlock()
	r.puts.Add(1)

	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// Take removes and returns the frame in the slot, waiting for one if the slot
// is empty. It returns ctx.Err() when ctx is done and ErrClosed once the
// relay is closed.
func (r *Relay) Take(ctx context.Context) (*types.Frame, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		if frame := r.frame; frame != nil {
			r.frame = nil
			r.mu.Unlock()
			r.takes.Add(1)
			return frame, nil
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.done:
			return nil, ErrClosed
		case <-r.ready:
		}
	}
}

// Close discards any pending frame and wakes a blocked Take. Close is
// idempotent.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.frame = nil
	close(r.done)
}

func (r *Relay) Stats() Stats {
	return Stats{
		Puts:  r.puts.Load(),
		Takes: r.takes.Load(),
		Drops: r.drops.Load(),
	}
}
