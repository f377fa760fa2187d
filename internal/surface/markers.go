package surface

import (
	"fmt"

	"gazemap-go/internal/types"
)

// CornerMarkers places four square tags of tagSize pixels inside the corners
// of a surface, margin pixels away from its edges. ids are assigned top-left,
// top-right, bottom-right, bottom-left. Each tag's corners run clockwise from
// its own top-left.
func CornerMarkers(ids [4]int, size Size, tagSize, margin float64) (map[int][]types.Point, error) {
	if tagSize <= 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("tag size must be positive, got %v", tagSize)}
	}
	if margin < 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("margin must not be negative, got %v", margin)}
	}
	if 2*(tagSize+margin) > size.Width || 2*(tagSize+margin) > size.Height {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("tags of %v px with %v px margin do not fit %vx%v", tagSize, margin, size.Width, size.Height),
		}
	}

	origins := [4]types.Point{
		{X: margin, Y: margin},
		{X: size.Width - margin - tagSize, Y: margin},
		{X: size.Width - margin - tagSize, Y: size.Height - margin - tagSize},
		{X: margin, Y: size.Height - margin - tagSize},
	}

	out := make(map[int][]types.Point, 4)
	for i, id := range ids {
		if _, dup := out[id]; dup {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("marker id %d used twice", id)}
		}
		out[id] = squareCorners(origins[i], tagSize)
	}
	return out, nil
}

func squareCorners(origin types.Point, side float64) []types.Point {
	return []types.Point{
		origin,
		{X: origin.X + side, Y: origin.Y},
		{X: origin.X + side, Y: origin.Y + side},
		{X: origin.X, Y: origin.Y + side},
	}
}
