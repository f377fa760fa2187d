// Package sim is a device that fabricates matched frames for debug runs: the
// registered surfaces are laid out side by side in a synthetic scene that
// sways slowly, and gaze sweeps across the scene on a Lissajous path.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"gazemap-go/internal/surface"
	"gazemap-go/internal/types"
)

const (
	sceneWidth  = 1280
	sceneHeight = 720
)

type Device struct {
	surfaces []surface.Surface
	interval time.Duration

	mu     sync.Mutex
	ticker *time.Ticker
	start  time.Time
	index  int
	closed bool
}

// New returns a simulated device producing rate frames per second.
func New(surfaces []surface.Surface, rate float64) *Device {
	if rate <= 0 {
		rate = 30
	}
	return &Device{
		surfaces: surfaces,
		interval: time.Duration(float64(time.Second) / rate),
	}
}

func (d *Device) Calibration(context.Context) (types.Calibration, error) {
	return types.Calibration{}, nil
}

func (d *Device) Next(ctx context.Context) (types.Frame, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return types.Frame{}, context.Canceled
	}
	if d.ticker == nil {
		d.ticker = time.NewTicker(d.interval)
		d.start = time.Now()
	}
	ticker := d.ticker
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		return types.Frame{}, ctx.Err()
	case now := <-ticker.C:
		d.mu.Lock()
		index := d.index
		d.index++
		elapsed := now.Sub(d.start).Seconds()
		d.mu.Unlock()
		return d.frameAt(index, elapsed, now), nil
	}
}

func (d *Device) frameAt(index int, t float64, now time.Time) types.Frame {
	scene := types.Scene{
		Index:     index,
		Timestamp: t,
		Width:     sceneWidth,
		Height:    sceneHeight,
		Format:    "none",
	}

	slot := float64(sceneWidth) / float64(max(len(d.surfaces), 1))
	for i, s := range d.surfaces {
		scale := math.Min(0.8*slot/s.Size.Width, 0.6*sceneHeight/s.Size.Height)
		origin := types.Point{
			X: float64(i)*slot + (slot-scale*s.Size.Width)/2 + 15*math.Sin(0.4*t+float64(i)),
			Y: (sceneHeight-scale*s.Size.Height)/2 + 10*math.Cos(0.3*t+float64(i)),
		}
		for _, id := range s.MarkerIDs() {
			ref := s.Markers[id]
			marker := types.DetectedMarker{ID: id}
			for c := range ref {
				marker.Corners[c] = types.Point{
					X: origin.X + scale*ref[c].X,
					Y: origin.Y + scale*ref[c].Y,
				}
			}
			scene.Markers = append(scene.Markers, marker)
		}
	}

	return types.Frame{
		Scene: scene,
		Gaze: types.Gaze{
			X:          sceneWidth/2 + 600*math.Sin(2*math.Pi*0.13*t+0.6),
			Y:          sceneHeight/2 + 340*math.Sin(2*math.Pi*0.21*t),
			Timestamp:  t,
			Confidence: 1,
		},
		CapturedAt: now,
	}
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.ticker != nil {
		d.ticker.Stop()
	}
	return nil
}
