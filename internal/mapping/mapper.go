package mapping

import (
	"gazemap-go/internal/surface"
	"gazemap-go/internal/types"
)

// Mapper is the homography-based Oracle. For every surface with at least one
// visible marker it fits an image-to-surface homography through all visible
// marker corners and projects the frame's gaze with it.
type Mapper struct {
	calibration types.Calibration
	detector    Detector
}

func NewMapper(calibration types.Calibration, detector Detector) *Mapper {
	if detector == nil {
		detector = SceneMarkers{}
	}
	return &Mapper{calibration: calibration, detector: detector}
}

func (m *Mapper) Process(surfaces []surface.Surface, frame *types.Frame) map[uint64][]types.MappedGazePoint {
	if frame == nil || len(surfaces) == 0 {
		return nil
	}
	detected := m.detector.Detect(frame.Scene)
	if len(detected) == 0 {
		return nil
	}
	byID := make(map[int]types.DetectedMarker, len(detected))
	for _, marker := range detected {
		byID[marker.ID] = marker
	}

	gaze := Undistort(m.calibration, types.Point{X: frame.Gaze.X, Y: frame.Gaze.Y})

	out := make(map[uint64][]types.MappedGazePoint)
	for _, s := range surfaces {
		var src, dst []types.Point
		for _, id := range s.MarkerIDs() {
			seen, ok := byID[id]
			if !ok {
				continue
			}
			ref := s.Markers[id]
			for i := 0; i < 4; i++ {
				src = append(src, Undistort(m.calibration, seen.Corners[i]))
				dst = append(dst, ref[i])
			}
		}
		if len(src) < 4 {
			continue
		}
		h, err := EstimateHomography(src, dst)
		if err != nil {
			continue
		}
		onSurface, ok := h.Apply(gaze)
		if !ok {
			continue
		}
		x := onSurface.X / s.Size.Width
		y := onSurface.Y / s.Size.Height
		out[s.UID] = append(out[s.UID], types.MappedGazePoint{
			SurfaceUID: s.UID,
			X:          x,
			Y:          y,
			OnSurface:  x >= 0 && x <= 1 && y >= 0 && y <= 1,
		})
	}
	return out
}
