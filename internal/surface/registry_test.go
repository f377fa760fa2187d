package surface

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gazemap-go/internal/types"
)

func square(x, y, side float64) []types.Point {
	return squareCorners(types.Point{X: x, Y: y}, side)
}

func TestRegisterAssignsUniqueUIDs(t *testing.T) {
	reg := NewRegistry()

	main, err := reg.Register("main", map[int][]types.Point{0: square(0, 0, 50)}, Size{Width: 800, Height: 600})
	require.NoError(t, err)
	second, err := reg.Register("second", map[int][]types.Point{1: square(0, 0, 50)}, Size{Width: 1024, Height: 768})
	require.NoError(t, err)

	assert.NotEqual(t, main.UID(), second.UID())
	name, ok := reg.Name(main.UID())
	require.True(t, ok)
	assert.Equal(t, "main", name)
	name, ok = reg.Name(second.UID())
	require.True(t, ok)
	assert.Equal(t, "second", name)

	_, ok = reg.Name(second.UID() + 1000)
	assert.False(t, ok)

	surfaces := reg.Surfaces()
	require.Len(t, surfaces, 2)
	assert.Equal(t, "main", surfaces[0].Name)
	assert.Equal(t, "second", surfaces[1].Name)
}

func TestRegisterRejectsInvalidSurfaces(t *testing.T) {
	tests := []struct {
		name    string
		surface string
		markers map[int][]types.Point
		size    Size
	}{
		{"duplicate marker across surfaces", "other", map[int][]types.Point{0: square(10, 10, 20)}, Size{Width: 100, Height: 100}},
		{"three corners", "other", map[int][]types.Point{5: square(0, 0, 10)[:3]}, Size{Width: 100, Height: 100}},
		{"five corners", "other", map[int][]types.Point{5: append(square(0, 0, 10), types.Point{})}, Size{Width: 100, Height: 100}},
		{"zero width", "other", map[int][]types.Point{5: square(0, 0, 10)}, Size{Width: 0, Height: 100}},
		{"negative height", "other", map[int][]types.Point{5: square(0, 0, 10)}, Size{Width: 100, Height: -1}},
		{"no markers", "other", map[int][]types.Point{}, Size{Width: 100, Height: 100}},
		{"empty name", "", map[int][]types.Point{5: square(0, 0, 10)}, Size{Width: 100, Height: 100}},
		{"duplicate name", "main", map[int][]types.Point{5: square(0, 0, 10)}, Size{Width: 100, Height: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			_, err := reg.Register("main", map[int][]types.Point{0: square(0, 0, 50)}, Size{Width: 800, Height: 600})
			require.NoError(t, err)

			_, err = reg.Register(tt.surface, tt.markers, tt.size)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "want ConfigurationError, got %v", err)
			assert.Equal(t, 1, reg.Len())
		})
	}
}

func TestRegisterFailureLeavesNoMarkersBehind(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register("broken", map[int][]types.Point{
		3: square(0, 0, 10),
		4: square(0, 0, 10)[:2],
	}, Size{Width: 100, Height: 100})
	require.Error(t, err)

	_, err = reg.Register("ok", map[int][]types.Point{3: square(0, 0, 10)}, Size{Width: 100, Height: 100})
	require.NoError(t, err)
}

func TestSealedRegistryRejectsRegistration(t *testing.T) {
	reg := NewRegistry()
	reg.Seal()
	require.True(t, reg.Sealed())

	_, err := reg.Register("late", map[int][]types.Point{0: square(0, 0, 10)}, Size{Width: 100, Height: 100})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
