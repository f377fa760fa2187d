// Package replay is a device that plays back a recording made with
// output.Recorder.
package replay

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"gazemap-go/internal/device"
	"gazemap-go/internal/output"
	"gazemap-go/internal/types"
)

type Options struct {
	// Realtime paces frames by their recorded spacing.
	Realtime bool
	// Loop restarts from the first frame at the end of the recording.
	Loop        bool
	Calibration types.Calibration
}

type Device struct {
	path string
	opts Options

	mu       sync.Mutex
	reader   *output.Reader
	lastTS   time.Time
	lastEmit time.Time
}

func Open(path string, opts Options) (*Device, error) {
	reader, err := output.OpenRecording(path)
	if err != nil {
		return nil, &device.Error{Op: "open", Err: err}
	}
	return &Device{path: path, opts: opts, reader: reader}, nil
}

func (d *Device) Calibration(context.Context) (types.Calibration, error) {
	return d.opts.Calibration, nil
}

// Next returns the next recorded frame. The end of a non-looping recording
// is reported as a device error wrapping io.EOF.
func (d *Device) Next(ctx context.Context) (types.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reader == nil {
		return types.Frame{}, &device.Error{Op: "next", Err: io.ErrClosedPipe}
	}

	frame, ts, err := d.reader.Next()
	if errors.Is(err, io.EOF) && d.opts.Loop {
		if err := d.rewind(); err != nil {
			return types.Frame{}, err
		}
		frame, ts, err = d.reader.Next()
	}
	if err != nil {
		return types.Frame{}, &device.Error{Op: "next", Err: err}
	}

	if d.opts.Realtime && !d.lastTS.IsZero() {
		gap := ts.Sub(d.lastTS)
		if wait := time.Until(d.lastEmit.Add(gap)); gap > 0 && wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return types.Frame{}, ctx.Err()
			case <-timer.C:
			}
		}
	}
	d.lastTS = ts
	d.lastEmit = time.Now()
	frame.CapturedAt = d.lastEmit
	return frame, nil
}

func (d *Device) rewind() error {
	_ = d.reader.Close()
	reader, err := output.OpenRecording(d.path)
	if err != nil {
		d.reader = nil
		return &device.Error{Op: "rewind", Err: err}
	}
	d.reader = reader
	d.lastTS = time.Time{}
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reader == nil {
		return nil
	}
	err := d.reader.Close()
	d.reader = nil
	return err
}
