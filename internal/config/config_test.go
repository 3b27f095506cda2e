package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/strandlight/internal/framecache"
	"github.com/coreman2200/strandlight/internal/led"
)

const sample = `
controller_id: 2
width: 256
height: 32
fps: 20
layout_path: wall.dxf
clips_dir: /srv/clips
composition: mirror
gamma:
  r: {min: 0, max: 200, gamma: 2.2}
  g: {min: 0, max: 255, gamma: 2.4}
  b: {min: 10, max: 255, gamma: 2.8}
playlist:
  loop: true
  clips:
    - {name: intro, duration_s: 12.5}
    - {name: waves, duration_s: 60}
`

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, 2, c.ControllerID)
	assert.Equal(t, "192.168.60.51:5000", c.ControllerAddress())
	assert.Equal(t, 128, c.ClipWidth())
	assert.Equal(t, framecache.CompositionMirror, c.Composition)
	assert.Equal(t, led.Range{Min: 10, Max: 255, Gamma: 2.8}, c.Gamma.B)
	assert.Equal(t, 50*time.Millisecond, c.Rate().Period())
	// untouched keys keep their defaults
	assert.Equal(t, ":8080", c.MonitorAddr)

	prog, err := c.Program(0)
	require.NoError(t, err)
	assert.True(t, prog.Loop)
	assert.Len(t, prog.Clips, 2)
	assert.Equal(t, 12.5, prog.Clips[0].DurationS)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	c := Default()
	c.Address = "10.0.0.5:5000"
	c.Clip = "intro"
	require.NoError(t, Save(path, c))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, back)

	prog, err := back.Program(30)
	require.NoError(t, err)
	assert.Equal(t, "intro", prog.Clips[0].Name)
	assert.Equal(t, "10.0.0.5:5000", back.ControllerAddress())
}

func TestValidateCollectsProblems(t *testing.T) {
	c := Default()
	c.FPS = 0
	c.Width = 0
	c.Gamma.G.Gamma = 0
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fps")
	assert.Contains(t, err.Error(), "invalid size")
	assert.Contains(t, err.Error(), "green")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMergeKeepsUnsetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fps: 25\n"), 0o644))

	c := Default()
	c.Clip = "from-flag"
	require.NoError(t, c.Merge(path))
	assert.Equal(t, 25, c.FPS)
	assert.Equal(t, "from-flag", c.Clip)
}

func TestDefaultCompositionSplitsSides(t *testing.T) {
	c := Default()
	assert.Equal(t, framecache.CompositionSplitSides, c.Composition)
	assert.Equal(t, c.Width, c.ClipWidth())
	_, err := framecache.NewFileLoader(c.ClipsDir, c.ClipWidth(), c.Height, c.Width, c.Composition)
	assert.NoError(t, err)
}
