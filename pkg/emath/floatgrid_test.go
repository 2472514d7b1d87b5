package emath

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(w, h int) FloatGrid {
	g := NewFloatGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(x, y, float64(10*y+x))
		}
	}
	return g
}

func TestNewFloatGridFrom(t *testing.T) {
	_, err := NewFloatGridFrom(2, 2, []float64{1, 2, 3})
	assert.Error(t, err)

	_, err = NewFloatGridFrom(0, 2, nil)
	assert.Error(t, err)

	g, err := NewFloatGridFrom(3, 2, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Dx())
	assert.Equal(t, 2, g.Dy())
	assert.Equal(t, 6.0, g.Get(2, 1))
	assert.Equal(t, int64(48), g.Bytes())
}

func TestBilinear(t *testing.T) {
	g := ramp(4, 3)

	v, ok := g.Bilinear(1, 1)
	require.True(t, ok)
	assert.Equal(t, 11.0, v)

	v, ok = g.Bilinear(1.5, 1)
	require.True(t, ok)
	assert.InDelta(t, 11.5, v, 1e-12)

	v, ok = g.Bilinear(1.25, 0.5)
	require.True(t, ok)
	assert.InDelta(t, 6.25, v, 1e-12)

	// Exactly on the far edge is fine, past it is not
	v, ok = g.Bilinear(3, 2)
	require.True(t, ok)
	assert.Equal(t, 23.0, v)

	_, ok = g.Bilinear(3.01, 2)
	assert.False(t, ok)
	_, ok = g.Bilinear(-0.5, 0)
	assert.False(t, ok)
}

func TestMinMaxIgnoresNaN(t *testing.T) {
	g := ramp(3, 3)
	g.Set(0, 0, math.NaN())

	min, max := g.MinMax()
	assert.Equal(t, 1.0, min)
	assert.Equal(t, 22.0, max)
	assert.Equal(t, 1, g.CountNaN())

	empty := NewFloatGrid(2, 2)
	empty.Fill(math.NaN())
	min, _ = empty.MinMax()
	assert.True(t, math.IsNaN(min))
}

func TestDownSample(t *testing.T) {
	g := NewFloatGrid(4, 2)
	g.Fill(2)
	g.Set(0, 0, math.NaN())
	g.Set(2, 0, math.NaN())
	g.Set(3, 0, math.NaN())
	g.Set(2, 1, math.NaN())
	g.Set(3, 1, math.NaN())

	d := g.DownSample()
	require.Equal(t, 2, d.Dx())
	require.Equal(t, 1, d.Dy())
	assert.Equal(t, 2.0, d.Get(0, 0))
	assert.True(t, math.IsNaN(d.Get(1, 0)))
}

func TestFindMinMaxAtPercentile(t *testing.T) {
	g := ramp(10, 10)
	lo, hi := g.FindMinMaxAtPercentile(0.0, 1.0)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 99.0, hi)
}

func TestTranslate(t *testing.T) {
	m := Identity().Translate(2.5, -1)
	x, y := m.Apply(1, 1)
	assert.Equal(t, 3.5, x)
	assert.Equal(t, 0.0, y)
}

func TestToImg(t *testing.T) {
	g := ramp(32, 32)
	g.Set(3, 3, math.NaN())
	filename := filepath.Join(t.TempDir(), "grid.png")
	require.NoError(t, g.ToImg("ramp", filename))
	assert.FileExists(t, filename)
}
