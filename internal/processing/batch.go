package processing

import (
	"gazemap-go/internal/surface"
	"gazemap-go/internal/types"
)

// BuildEvent turns one frame's mapping result into an outbound batch. Only
// on-surface points of registered surfaces are kept; surfaces appear in
// registration order and points in the order the oracle produced them.
// unknown counts points discarded because their surface uid is not
// registered. An empty batch is returned as nil.
func BuildEvent(surfaces []surface.Surface, mapped map[uint64][]types.MappedGazePoint) (event types.GazeEvent, offSurface int, unknown int) {
	if len(mapped) == 0 {
		return nil, 0, 0
	}

	resolved := 0
	for _, s := range surfaces {
		points, ok := mapped[s.UID]
		if !ok {
			continue
		}
		resolved++
		for _, p := range points {
			if !p.OnSurface {
				offSurface++
				continue
			}
			event = append(event, types.GazeEntry{
				NormPos: [2]float64{p.X, p.Y},
				Name:    s.Name,
			})
		}
	}

	if resolved < len(mapped) {
		names := make(map[uint64]struct{}, len(surfaces))
		for _, s := range surfaces {
			names[s.UID] = struct{}{}
		}
		for uid, points := range mapped {
			if _, ok := names[uid]; !ok {
				unknown += len(points)
			}
		}
	}
	return event, offSurface, unknown
}
