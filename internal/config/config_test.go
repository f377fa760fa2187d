package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gazemap-go/internal/surface"
)

func TestFromEnvDefaultsAndOverrides(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 8888, cfg.Port)
	assert.Equal(t, "tcp://127.0.0.1:50020", cfg.RemoteEndpoint)
	assert.Equal(t, 50*time.Millisecond, cfg.MaxSkew)
	assert.True(t, cfg.StartFramePublisher)
	require.NoError(t, cfg.Validate())

	t.Setenv("GAZEMAP_PORT", "9000")
	t.Setenv("GAZEMAP_MAX_SKEW", "20ms")
	t.Setenv("GAZEMAP_DEBUG", "true")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 20*time.Millisecond, cfg.MaxSkew)
	assert.True(t, cfg.Debug)
}

func TestValidateRejectsConflicts(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	bad := cfg
	bad.Debug = true
	bad.ReplayFile = "session.gzr"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MinConfidence = 1.5
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Port = 0
	assert.Error(t, bad.Validate())
}

func TestLoadLayoutBuildsRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
surfaces:
  - name: main
    width: 800
    height: 600
    layout: {marker_ids: [0, 1, 2, 3], tag_size: 50, margin: 10}
  - name: second
    width: 1024
    height: 768
    markers:
      7: [[20, 20], [140, 20], [140, 140], [20, 140]]
calibration:
  camera_matrix: [[800, 0, 640], [0, 800, 360], [0, 0, 1]]
  distortion: [-0.1, 0.02, 0, 0, 0]
`), 0o644))

	layout, err := LoadLayout(path)
	require.NoError(t, err)
	require.NotNil(t, layout.Calibration)
	assert.Equal(t, 800.0, layout.Calibration.CameraMatrix[0][0])
	assert.Len(t, layout.Calibration.Distortion, 5)

	reg, err := BuildRegistry(layout)
	require.NoError(t, err)
	surfaces := reg.Surfaces()
	require.Len(t, surfaces, 2)
	assert.Equal(t, "main", surfaces[0].Name)
	assert.Equal(t, []int{0, 1, 2, 3}, surfaces[0].MarkerIDs())
	assert.Equal(t, []int{7}, surfaces[1].MarkerIDs())
	assert.Equal(t, 140.0, surfaces[1].Markers[7][2].X)
}

func TestLayoutErrorsAreConfigurationErrors(t *testing.T) {
	tests := map[string]string{
		"shared marker": `
surfaces:
  - {name: a, width: 800, height: 600, layout: {marker_ids: [0, 1, 2, 3], tag_size: 50, margin: 10}}
  - {name: b, width: 800, height: 600, layout: {marker_ids: [3, 4, 5, 6], tag_size: 50, margin: 10}}
`,
		"three corners": `
surfaces:
  - name: a
    width: 800
    height: 600
    markers:
      1: [[0, 0], [10, 0], [10, 10]]
`,
		"tags too large": `
surfaces:
  - {name: a, width: 100, height: 100, layout: {marker_ids: [0, 1, 2, 3], tag_size: 60, margin: 0}}
`,
		"no surfaces": `surfaces: []`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			layout, err := ParseLayout([]byte(doc))
			if err == nil {
				_, err = BuildRegistry(layout)
			}
			var cfgErr *surface.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestParseLayoutRejectsUnknownFields(t *testing.T) {
	_, err := ParseLayout([]byte("surfaces:\n  - name: a\n    widht: 10\n"))
	assert.Error(t, err)
}

func TestDefaultLayoutIsValid(t *testing.T) {
	reg, err := BuildRegistry(DefaultLayout())
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
}
