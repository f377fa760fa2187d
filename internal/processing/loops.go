package processing

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"gazemap-go/internal/device"
	"gazemap-go/internal/mapping"
	"gazemap-go/internal/relay"
	"gazemap-go/internal/surface"
	"gazemap-go/internal/types"
)

const tracerName = "gazemap-go/internal/processing"

// Emitter hands a batch to the subscriber transport. It must not block.
type Emitter func(types.GazeEvent)

// Recorder receives every acquired frame.
type Recorder interface {
	Record(frame *types.Frame) error
}

type AcquireOptions struct {
	Recorder Recorder
	Stats    *Stats
	Logger   *slog.Logger
}

// Acquire pulls matched samples from dev into r until ctx is cancelled or
// the device fails. Cancellation is only checked between device calls; a
// sample that arrives after cancellation is discarded.
func Acquire(ctx context.Context, dev device.Device, r *relay.Relay, opts AcquireOptions) error {
	stats := opts.Stats
	if stats == nil {
		stats = &Stats{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := dev.Next(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			stats.deviceErrors.Add(1)
			return device.Wrap("next", err)
		}
		if frame.CapturedAt.IsZero() {
			frame.CapturedAt = time.Now()
		}
		stats.framesAcquired.Add(1)

		if opts.Recorder != nil {
			if err := opts.Recorder.Record(&frame); err != nil {
				stats.recordErrors.Add(1)
				logger.Warn("recording frame failed", "index", frame.Scene.Index, "error", err)
			}
		}
		r.Put(&frame)
	}
}

type ProcessOptions struct {
	Stats  *Stats
	Logger *slog.Logger
}

// Process takes frames from r, maps them with oracle and emits one event per
// frame that has at least one on-surface point. Events leave in the order
// frames were taken. Nothing is emitted once ctx is cancelled.
func Process(ctx context.Context, r *relay.Relay, oracle mapping.Oracle, reg *surface.Registry, emit Emitter, opts ProcessOptions) error {
	stats := opts.Stats
	if stats == nil {
		stats = &Stats{}
	}
	tracer := otel.Tracer(tracerName)
	surfaces := reg.Surfaces()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := r.Take(ctx)
		if err != nil {
			return err
		}

		start := time.Now()
		_, span := tracer.Start(ctx, "processing.frame")
		span.SetAttributes(attribute.Int("scene.index", frame.Scene.Index))

		mapped := oracle.Process(surfaces, frame)
		event, offSurface, unknown := BuildEvent(surfaces, mapped)

		span.SetAttributes(
			attribute.Int("gaze.entries", len(event)),
			attribute.Int("gaze.off_surface", offSurface),
		)
		span.End()

		stats.framesProcessed.Add(1)
		stats.processNanos.Add(uint64(time.Since(start).Nanoseconds()))
		stats.pointsOffSurface.Add(uint64(offSurface))
		if unknown > 0 {
			stats.pointsUnknown.Add(uint64(unknown))
			if opts.Logger != nil {
				opts.Logger.Warn("mapped points for unregistered surface", "count", unknown)
			}
		}

		if len(event) == 0 {
			stats.emptyFrames.Add(1)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(event)
		stats.eventsEmitted.Add(1)
		stats.entriesEmitted.Add(uint64(len(event)))
	}
}
