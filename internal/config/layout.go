package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gazemap-go/internal/surface"
	"gazemap-go/internal/types"
)

// Layout describes the screens gaze is mapped onto and the scene camera.
//
//	surfaces:
//	  - name: mainscreen
//	    width: 1920
//	    height: 1080
//	    layout: {marker_ids: [0, 1, 2, 3], tag_size: 120, margin: 24}
//	  - name: secondscreen
//	    width: 1280
//	    height: 1024
//	    markers:
//	      4: [[20, 20], [140, 20], [140, 140], [20, 140]]
type Layout struct {
	Surfaces    []SurfaceConfig    `yaml:"surfaces"`
	Calibration *types.Calibration `yaml:"calibration,omitempty"`
}

type SurfaceConfig struct {
	Name   string  `yaml:"name"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`

	// Markers lists corners explicitly, clockwise from top-left.
	Markers map[int][][2]float64 `yaml:"markers,omitempty"`

	// Grid places four tags in the screen corners instead.
	Grid *MarkerGrid `yaml:"layout,omitempty"`
}

type MarkerGrid struct {
	MarkerIDs [4]int  `yaml:"marker_ids"`
	TagSize   float64 `yaml:"tag_size"`
	Margin    float64 `yaml:"margin"`
}

// DefaultLayout is used when no layout file is configured.
func DefaultLayout() Layout {
	return Layout{
		Surfaces: []SurfaceConfig{
			{
				Name:   "mainscreen",
				Width:  1920,
				Height: 1080,
				Grid:   &MarkerGrid{MarkerIDs: [4]int{0, 1, 2, 3}, TagSize: 120, Margin: 24},
			},
			{
				Name:   "secondscreen",
				Width:  1920,
				Height: 1080,
				Grid:   &MarkerGrid{MarkerIDs: [4]int{4, 5, 6, 7}, TagSize: 120, Margin: 24},
			},
		},
	}
}

func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, err
	}
	return ParseLayout(data)
}

func ParseLayout(data []byte) (Layout, error) {
	var layout Layout
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&layout); err != nil {
		return Layout{}, fmt.Errorf("parse layout: %w", err)
	}
	if len(layout.Surfaces) == 0 {
		return Layout{}, &surface.ConfigurationError{Reason: "layout has no surfaces"}
	}
	return layout, nil
}

// BuildRegistry registers every surface of the layout, in file order.
func BuildRegistry(layout Layout) (*surface.Registry, error) {
	reg := surface.NewRegistry()
	for _, sc := range layout.Surfaces {
		markers, err := sc.markerMap()
		if err != nil {
			return nil, err
		}
		if _, err := reg.Register(sc.Name, markers, surface.Size{Width: sc.Width, Height: sc.Height}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (sc SurfaceConfig) markerMap() (map[int][]types.Point, error) {
	if sc.Grid != nil && len(sc.Markers) > 0 {
		return nil, &surface.ConfigurationError{Surface: sc.Name, Reason: "markers and layout are mutually exclusive"}
	}
	if sc.Grid != nil {
		markers, err := surface.CornerMarkers(sc.Grid.MarkerIDs, surface.Size{Width: sc.Width, Height: sc.Height}, sc.Grid.TagSize, sc.Grid.Margin)
		if err != nil {
			if cfgErr, ok := err.(*surface.ConfigurationError); ok {
				cfgErr.Surface = sc.Name
			}
			return nil, err
		}
		return markers, nil
	}

	out := make(map[int][]types.Point, len(sc.Markers))
	for id, corners := range sc.Markers {
		points := make([]types.Point, len(corners))
		for i, c := range corners {
			points[i] = types.Point{X: c[0], Y: c[1]}
		}
		out[id] = points
	}
	return out, nil
}
