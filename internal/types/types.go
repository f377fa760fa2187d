package types

import "time"

type Point struct {
	X float64 `json:"x" cbor:"x"`
	Y float64 `json:"y" cbor:"y"`
}

// DetectedMarker is a fiducial tag found in a scene image, corners in image
// pixels, clockwise from the tag's top-left.
type DetectedMarker struct {
	ID      int      `json:"id" cbor:"id"`
	Corners [4]Point `json:"corners" cbor:"corners"`
}

type Scene struct {
	Index     int              `json:"index" cbor:"index"`
	Timestamp float64          `json:"timestamp" cbor:"timestamp"`
	Width     int              `json:"width" cbor:"width"`
	Height    int              `json:"height" cbor:"height"`
	Format    string           `json:"format" cbor:"format"`
	Data      []byte           `json:"-" cbor:"data,omitempty"`
	Markers   []DetectedMarker `json:"markers,omitempty" cbor:"markers,omitempty"`
}

// Gaze is one gaze sample in scene image pixels.
type Gaze struct {
	X          float64 `json:"x" cbor:"x"`
	Y          float64 `json:"y" cbor:"y"`
	Timestamp  float64 `json:"timestamp" cbor:"timestamp"`
	Confidence float64 `json:"confidence" cbor:"confidence"`
}

// Frame is one matched scene/gaze capture.
type Frame struct {
	Scene      Scene     `json:"scene" cbor:"scene"`
	Gaze       Gaze      `json:"gaze" cbor:"gaze"`
	CapturedAt time.Time `json:"captured_at" cbor:"captured_at"`
}

// Calibration holds the scene camera intrinsics. A zero value means no
// undistortion is applied.
type Calibration struct {
	CameraMatrix [3][3]float64 `json:"camera_matrix" yaml:"camera_matrix"`
	Distortion   []float64     `json:"distortion" yaml:"distortion"`
}

func (c Calibration) IsZero() bool {
	return c.CameraMatrix[0][0] == 0 || c.CameraMatrix[1][1] == 0
}

type MappedGazePoint struct {
	SurfaceUID uint64
	X          float64
	Y          float64
	OnSurface  bool
}

type GazeEntry struct {
	NormPos [2]float64 `json:"norm_pos"`
	Name    string     `json:"name"`
}

// GazeEvent is one outbound batch, one entry per on-surface point of a frame.
type GazeEvent []GazeEntry
