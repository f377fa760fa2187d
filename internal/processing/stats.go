package processing

import "sync/atomic"

// Stats counts pipeline activity. It is shared across sessions.
type Stats struct {
	framesAcquired   atomic.Uint64
	framesProcessed  atomic.Uint64
	eventsEmitted    atomic.Uint64
	entriesEmitted   atomic.Uint64
	pointsOffSurface atomic.Uint64
	pointsUnknown    atomic.Uint64
	emptyFrames      atomic.Uint64
	deviceErrors     atomic.Uint64
	recordErrors     atomic.Uint64
	processNanos     atomic.Uint64
}

func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"frames_acquired_total":    s.framesAcquired.Load(),
		"frames_processed_total":   s.framesProcessed.Load(),
		"events_emitted_total":     s.eventsEmitted.Load(),
		"entries_emitted_total":    s.entriesEmitted.Load(),
		"points_off_surface_total": s.pointsOffSurface.Load(),
		"points_unknown_total":     s.pointsUnknown.Load(),
		"empty_frames_total":       s.emptyFrames.Load(),
		"device_errors_total":      s.deviceErrors.Load(),
		"record_errors_total":      s.recordErrors.Load(),
		"process_nanos_total":      s.processNanos.Load(),
	}
}

func (s *Stats) FramesProcessed() uint64 { return s.framesProcessed.Load() }
func (s *Stats) EventsEmitted() uint64   { return s.eventsEmitted.Load() }
func (s *Stats) FramesAcquired() uint64  { return s.framesAcquired.Load() }
