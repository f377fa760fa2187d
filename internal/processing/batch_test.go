package processing

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gazemap-go/internal/surface"
	"gazemap-go/internal/types"
)

func marker(x, y float64) []types.Point {
	return []types.Point{{X: x, Y: y}, {X: x + 10, Y: y}, {X: x + 10, Y: y + 10}, {X: x, Y: y + 10}}
}

func twoScreens(t *testing.T) (*surface.Registry, surface.Handle, surface.Handle) {
	t.Helper()
	reg := surface.NewRegistry()
	main, err := reg.Register("main", map[int][]types.Point{0: marker(0, 0)}, surface.Size{Width: 800, Height: 600})
	require.NoError(t, err)
	second, err := reg.Register("second", map[int][]types.Point{1: marker(0, 0)}, surface.Size{Width: 1024, Height: 768})
	require.NoError(t, err)
	return reg, main, second
}

func TestBuildEventDropsOffSurfacePoints(t *testing.T) {
	reg, main, second := twoScreens(t)
	mapped := map[uint64][]types.MappedGazePoint{
		main.UID():   {{SurfaceUID: main.UID(), X: 0.5, Y: 0.5, OnSurface: true}},
		second.UID(): {{SurfaceUID: second.UID(), X: 1.2, Y: 0.1, OnSurface: false}},
	}

	event, off, unknown := BuildEvent(reg.Surfaces(), mapped)
	assert.Equal(t, 1, off)
	assert.Zero(t, unknown)

	payload, err := json.Marshal(event)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"norm_pos":[0.5,0.5],"name":"main"}]`, string(payload))
}

func TestBuildEventKeepsRegistrationAndPointOrder(t *testing.T) {
	reg, main, second := twoScreens(t)
	mapped := map[uint64][]types.MappedGazePoint{
		second.UID(): {
			{SurfaceUID: second.UID(), X: 0.1, Y: 0.2, OnSurface: true},
			{SurfaceUID: second.UID(), X: 0.9, Y: 0.9, OnSurface: false},
			{SurfaceUID: second.UID(), X: 0.3, Y: 0.4, OnSurface: true},
		},
		main.UID(): {
			{SurfaceUID: main.UID(), X: 0.7, Y: 0.6, OnSurface: true},
		},
	}

	event, off, _ := BuildEvent(reg.Surfaces(), mapped)
	want := types.GazeEvent{
		{NormPos: [2]float64{0.7, 0.6}, Name: "main"},
		{NormPos: [2]float64{0.1, 0.2}, Name: "second"},
		{NormPos: [2]float64{0.3, 0.4}, Name: "second"},
	}
	if diff := cmp.Diff(want, event); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, off)
}

func TestBuildEventEmptyWhenNothingOnSurface(t *testing.T) {
	reg, main, second := twoScreens(t)

	event, _, _ := BuildEvent(reg.Surfaces(), nil)
	assert.Nil(t, event)

	event, off, _ := BuildEvent(reg.Surfaces(), map[uint64][]types.MappedGazePoint{
		main.UID():   {{SurfaceUID: main.UID(), X: -0.1, Y: 0.5}},
		second.UID(): {},
	})
	assert.Nil(t, event)
	assert.Equal(t, 1, off)
}

func TestBuildEventDiscardsUnknownSurfaces(t *testing.T) {
	reg, main, _ := twoScreens(t)
	stray := main.UID() + 10000

	event, _, unknown := BuildEvent(reg.Surfaces(), map[uint64][]types.MappedGazePoint{
		stray:      {{SurfaceUID: stray, X: 0.5, Y: 0.5, OnSurface: true}, {SurfaceUID: stray, X: 0.2, Y: 0.2, OnSurface: true}},
		main.UID(): {{SurfaceUID: main.UID(), X: 0.2, Y: 0.3, OnSurface: true}},
	})
	assert.Equal(t, 2, unknown)
	require.Len(t, event, 1)
	assert.Equal(t, "main", event[0].Name)
}
