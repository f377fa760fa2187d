// Package mapping projects gaze samples onto registered surfaces.
package mapping

import (
	"gazemap-go/internal/surface"
	"gazemap-go/internal/types"
)

// Oracle maps one frame onto the given surfaces. Implementations must be
// deterministic per frame and free of side effects visible to the caller.
type Oracle interface {
	Process(surfaces []surface.Surface, frame *types.Frame) map[uint64][]types.MappedGazePoint
}

// Detector finds fiducial markers in a scene image.
type Detector interface {
	Detect(scene types.Scene) []types.DetectedMarker
}

// SceneMarkers returns the markers already attached to the scene by the
// device or an upstream detector.
type SceneMarkers struct{}

func (SceneMarkers) Detect(scene types.Scene) []types.DetectedMarker {
	return scene.Markers
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(surfaces []surface.Surface, frame *types.Frame) map[uint64][]types.MappedGazePoint

func (f OracleFunc) Process(surfaces []surface.Surface, frame *types.Frame) map[uint64][]types.MappedGazePoint {
	return f(surfaces, frame)
}
