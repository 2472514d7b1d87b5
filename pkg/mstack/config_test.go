package mstack

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configYAML = `
object: 2024 AB1
referencetime: "2024-03-01T02:30:00"
method: median
sigmalow: 4
sigmahigh: 3
scale: InvMedian
memorylimit: 1073741824
chunksize: 8
ephemeristimeout: 10s
`

func TestParseConfig(t *testing.T) {
	c, err := ParseConfig([]byte(configYAML))
	require.NoError(t, err)

	assert.Equal(t, "2024 AB1", c.Object)
	assert.Equal(t, Median, c.method)
	assert.True(t, c.SigmaClip, "default kept")
	assert.Equal(t, 4.0, c.SigmaLow)
	assert.Equal(t, "invmedian", c.Scale)
	assert.Equal(t, int64(GB), c.MemoryLimit)
	assert.Equal(t, 8, c.ChunkSize)
	assert.Equal(t, 10*time.Second, c.EphemerisTimeout)
	assert.Equal(t, time.Date(2024, 3, 1, 2, 30, 0, 0, time.UTC), c.refTime)
	assert.True(t, c.Tracking())

	c.MotionTracking = false
	assert.False(t, c.Tracking())
}

func TestConfigFinalizeRejects(t *testing.T) {
	for name, mod := range map[string]func(*Config){
		"method":    func(c *Config) { c.Method = "mode" },
		"scale":     func(c *Config) { c.Scale = "flat" },
		"reftime":   func(c *Config) { c.ReferenceTime = "yesterday" },
		"sigma":     func(c *Config) { c.SigmaLow = 0 },
		"iters":     func(c *Config) { c.SigmaIterations = 0 },
		"memory":    func(c *Config) { c.MemoryLimit = -1 },
		"chunksize": func(c *Config) { c.ChunkSize = -1 },
		"safety":    func(c *Config) { c.SafetyFactor = 0.5 },
		"pixscale":  func(c *Config) { c.MaxPixelScale = 0 },
	} {
		c := NewConfig()
		mod(&c)
		assert.Error(t, c.Finalize(), name)
	}

	// Sigma settings don't matter when not clipping
	c := NewConfig()
	c.SigmaClip = false
	c.SigmaLow = 0
	assert.NoError(t, c.Finalize())
	assert.Equal(t, Average, c.method)
}

func TestLoadConfig(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "mstack.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(configYAML), 0644))

	c, err := LoadConfig(filename)
	require.NoError(t, err)
	assert.Equal(t, 8, c.ChunkSize)

	c2, err := ParseConfig([]byte(c.AsYaml()))
	require.NoError(t, err)
	assert.Equal(t, c.refTime, c2.refTime)

	_, err = LoadConfig(filename + ".nope")
	assert.Error(t, err)
}

func TestTrackingNeedsObject(t *testing.T) {
	c := NewConfig()
	assert.False(t, c.Tracking())
	c.Object = "  "
	assert.False(t, c.Tracking())
}
