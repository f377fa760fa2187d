// Package pupil acquires matched world frames and gaze from Pupil Capture
// through Pupil Remote.
//
// Pupil Remote answers "SUB_PORT" on its REQ/REP socket; world frames
// (published by the Frame_Publisher plugin) and gaze datums are then read
// from the IPC backbone's PUB socket. Payloads are msgpack maps; world frames
// carry the encoded image as an extra message part.
package pupil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/vmihailenco/msgpack/v5"

	"gazemap-go/internal/device"
	"gazemap-go/internal/types"
)

const (
	DefaultEndpoint = "tcp://127.0.0.1:50020"

	topicWorld = "frame.world"
	topicGaze  = "gaze."

	gazeHistory = 256
)

var ErrIdle = errors.New("no data received from pupil capture")

type Options struct {
	// Endpoint is the Pupil Remote REQ address.
	Endpoint string
	// StartFramePublisher asks Pupil Capture to start the Frame_Publisher
	// plugin so world frames are published.
	StartFramePublisher bool
	FrameFormat         string
	// MinConfidence drops gaze below this confidence.
	MinConfidence float64
	// MaxSkew is the largest timestamp difference accepted between a world
	// frame and its gaze sample.
	MaxSkew        time.Duration
	PollInterval   time.Duration
	RequestTimeout time.Duration
	// IdleTimeout fails Next when nothing was received for this long. Zero
	// disables it.
	IdleTimeout time.Duration
	Calibration types.Calibration
	LogEvery    int
	Logger      *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.FrameFormat == "" {
		o.FrameFormat = "jpeg"
	}
	if o.MaxSkew <= 0 {
		o.MaxSkew = 50 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 2 * time.Second
	}
	if o.LogEvery < 1 {
		o.LogEvery = 100
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Device is a device.Device backed by Pupil Capture. Next must only be
// called from one goroutine at a time.
type Device struct {
	opts   Options
	sub    *zmq4.Socket
	poller *zmq4.Poller

	history     []gazeSample
	lastMessage time.Time
	skipped     int
}

type gazeSample struct {
	norm       [2]float64
	timestamp  float64
	confidence float64
}

// Dial asks Pupil Remote for the backbone's SUB port and subscribes to world
// frames and gaze.
func Dial(opts Options) (*Device, error) {
	opts.setDefaults()

	host, err := hostFromEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	subPort, err := request(opts.Endpoint, opts.RequestTimeout, "SUB_PORT")
	if err != nil {
		return nil, &device.Error{Op: "dial", Err: fmt.Errorf("request SUB_PORT: %w", err)}
	}
	if opts.StartFramePublisher {
		if err := notify(opts.Endpoint, opts.RequestTimeout, map[string]any{
			"subject": "start_plugin",
			"name":    "Frame_Publisher",
			"args":    map[string]any{"format": opts.FrameFormat},
		}); err != nil {
			return nil, &device.Error{Op: "dial", Err: fmt.Errorf("start frame publisher: %w", err)}
		}
	}

	sub, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, err
	}
	subEndpoint := fmt.Sprintf("tcp://%s:%s", host, strings.TrimSpace(subPort))
	if err := sub.Connect(subEndpoint); err != nil {
		_ = sub.Close()
		return nil, &device.Error{Op: "dial", Err: err}
	}
	for _, topic := range []string{topicWorld, topicGaze} {
		if err := sub.SetSubscribe(topic); err != nil {
			_ = sub.Close()
			return nil, err
		}
	}

	poller := zmq4.NewPoller()
	poller.Add(sub, zmq4.POLLIN)

	opts.Logger.Info("connected to pupil capture", "remote", opts.Endpoint, "sub", subEndpoint)
	return &Device{
		opts:        opts,
		sub:         sub,
		poller:      poller,
		lastMessage: time.Now(),
	}, nil
}

func (d *Device) Calibration(context.Context) (types.Calibration, error) {
	return d.opts.Calibration, nil
}

// Next reads the backbone until a world frame can be matched with a gaze
// sample. ctx is checked between polls.
func (d *Device) Next(ctx context.Context) (types.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.Frame{}, err
		}

		polled, err := d.poller.Poll(d.opts.PollInterval)
		if err != nil {
			return types.Frame{}, &device.Error{Op: "poll", Err: err}
		}
		if len(polled) == 0 {
			if d.opts.IdleTimeout > 0 && time.Since(d.lastMessage) > d.opts.IdleTimeout {
				return types.Frame{}, &device.Error{Op: "next", Err: ErrIdle}
			}
			continue
		}

		parts, err := d.sub.RecvMessageBytes(0)
		if err != nil {
			return types.Frame{}, &device.Error{Op: "recv", Err: err}
		}
		d.lastMessage = time.Now()
		if len(parts) < 2 {
			d.logSkip("pupil message without payload", "parts", len(parts))
			continue
		}

		topic := string(parts[0])
		switch {
		case strings.HasPrefix(topic, topicGaze):
			sample, err := decodeGaze(parts[1])
			if err != nil {
				d.logSkip("pupil gaze decode failed", "topic", topic, "error", err)
				continue
			}
			if sample.confidence < d.opts.MinConfidence {
				continue
			}
			d.history = appendBounded(d.history, sample, gazeHistory)
		case topic == topicWorld:
			var raw []byte
			if len(parts) > 2 {
				raw = parts[2]
			}
			scene, err := decodeWorldFrame(parts[1], raw)
			if err != nil {
				d.logSkip("pupil world frame decode failed", "error", err)
				continue
			}
			sample, ok := matchGaze(d.history, scene.Timestamp, d.opts.MaxSkew.Seconds())
			if !ok {
				continue
			}
			return types.Frame{
				Scene:      scene,
				Gaze:       sample.toScene(scene.Width, scene.Height),
				CapturedAt: time.Now(),
			}, nil
		}
	}
}

func (d *Device) Close() error {
	if d.sub == nil {
		return nil
	}
	err := d.sub.Close()
	d.sub = nil
	return err
}

func (d *Device) logSkip(msg string, args ...any) {
	d.skipped++
	if d.skipped%d.opts.LogEvery == 1 || d.opts.LogEvery == 1 {
		d.opts.Logger.Warn(msg, append(args, "skipped_total", d.skipped)...)
	}
}

type gazeDatum struct {
	Topic      string    `msgpack:"topic"`
	NormPos    []float64 `msgpack:"norm_pos"`
	Confidence float64   `msgpack:"confidence"`
	Timestamp  float64   `msgpack:"timestamp"`
}

type worldDatum struct {
	Topic     string        `msgpack:"topic"`
	Width     int           `msgpack:"width"`
	Height    int           `msgpack:"height"`
	Index     int           `msgpack:"index"`
	Timestamp float64       `msgpack:"timestamp"`
	Format    string        `msgpack:"format"`
	Markers   []markerDatum `msgpack:"markers"`
}

type markerDatum struct {
	ID    int         `msgpack:"id"`
	Verts [][]float64 `msgpack:"verts"`
}

func decodeGaze(payload []byte) (gazeSample, error) {
	var datum gazeDatum
	if err := msgpack.Unmarshal(payload, &datum); err != nil {
		return gazeSample{}, err
	}
	if len(datum.NormPos) != 2 {
		return gazeSample{}, fmt.Errorf("norm_pos has %d values", len(datum.NormPos))
	}
	if math.IsNaN(datum.NormPos[0]) || math.IsNaN(datum.NormPos[1]) {
		return gazeSample{}, errors.New("norm_pos is NaN")
	}
	return gazeSample{
		norm:       [2]float64{datum.NormPos[0], datum.NormPos[1]},
		timestamp:  datum.Timestamp,
		confidence: datum.Confidence,
	}, nil
}

func decodeWorldFrame(payload []byte, raw []byte) (types.Scene, error) {
	var datum worldDatum
	if err := msgpack.Unmarshal(payload, &datum); err != nil {
		return types.Scene{}, err
	}
	if datum.Width <= 0 || datum.Height <= 0 {
		return types.Scene{}, fmt.Errorf("invalid frame size %dx%d", datum.Width, datum.Height)
	}
	scene := types.Scene{
		Index:     datum.Index,
		Timestamp: datum.Timestamp,
		Width:     datum.Width,
		Height:    datum.Height,
		Format:    datum.Format,
		Data:      raw,
	}
	for _, m := range datum.Markers {
		if len(m.Verts) != 4 {
			return types.Scene{}, fmt.Errorf("marker %d has %d verts", m.ID, len(m.Verts))
		}
		marker := types.DetectedMarker{ID: m.ID}
		for i, v := range m.Verts {
			if len(v) != 2 {
				return types.Scene{}, fmt.Errorf("marker %d vert %d has %d values", m.ID, i, len(v))
			}
			marker.Corners[i] = types.Point{X: v[0], Y: v[1]}
		}
		scene.Markers = append(scene.Markers, marker)
	}
	return scene, nil
}

// matchGaze picks the sample closest in time to ts, if any lies within
// maxSkew seconds.
func matchGaze(history []gazeSample, ts float64, maxSkew float64) (gazeSample, bool) {
	best := -1
	bestSkew := math.Inf(1)
	for i, s := range history {
		skew := math.Abs(s.timestamp - ts)
		if skew < bestSkew {
			best, bestSkew = i, skew
		}
	}
	if best < 0 || bestSkew > maxSkew {
		return gazeSample{}, false
	}
	return history[best], true
}

// toScene converts normalized gaze (origin bottom-left) to scene pixels
// (origin top-left).
func (s gazeSample) toScene(width, height int) types.Gaze {
	return types.Gaze{
		X:          s.norm[0] * float64(width),
		Y:          (1 - s.norm[1]) * float64(height),
		Timestamp:  s.timestamp,
		Confidence: s.confidence,
	}
}

func appendBounded(history []gazeSample, sample gazeSample, limit int) []gazeSample {
	if len(history) >= limit {
		copy(history, history[1:])
		history = history[:len(history)-1]
	}
	return append(history, sample)
}

func hostFromEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "tcp" || u.Hostname() == "" {
		return "", fmt.Errorf("endpoint %q must look like tcp://host:port", endpoint)
	}
	return u.Hostname(), nil
}
