package mstack

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/motion-stack/pkg/emath"
)

func ramp(w, h int) emath.FloatGrid {
	g := emath.NewFloatGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(x, y, float64(10*y+x))
		}
	}
	return g
}

func TestResampleWholePixels(t *testing.T) {
	src := ramp(5, 4)
	dst := src.NewFromThis()

	border, err := Resample(&src, &dst, Shift{DX: 1, DY: -1})
	require.NoError(t, err)

	// One column and one row come in from outside: 4+5-1 of 20 pixels
	assert.InDelta(t, 8.0/20, border, 1e-12)
	assert.Equal(t, 8, dst.CountNaN())

	assert.True(t, math.IsNaN(dst.Get(0, 0)))
	assert.True(t, math.IsNaN(dst.Get(2, 3)))
	assert.Equal(t, src.Get(0, 1), dst.Get(1, 0))
	assert.Equal(t, src.Get(3, 3), dst.Get(4, 2))
}

func TestResampleFractional(t *testing.T) {
	src := ramp(5, 4)
	dst := src.NewFromThis()

	_, err := Resample(&src, &dst, Shift{DX: 0.5})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(dst.Get(0, 2)))
	assert.InDelta(t, (src.Get(0, 2)+src.Get(1, 2))/2, dst.Get(1, 2), 1e-12)
}

func TestResampleZeroShift(t *testing.T) {
	src := ramp(5, 4)
	src.Set(2, 2, math.NaN())
	dst := src.NewFromThis()

	border, err := Resample(&src, &dst, Shift{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, border)
	for i, v := range src.Values() {
		if i == 12 {
			assert.True(t, math.IsNaN(dst.Values()[i]))
			continue
		}
		assert.Equal(t, v, dst.Values()[i])
	}
}

func TestResampleErrors(t *testing.T) {
	src := ramp(5, 4)
	small := emath.NewFloatGrid(4, 4)
	_, err := Resample(&src, &small, Shift{DX: 1})
	assert.Error(t, err)

	dst := src.NewFromThis()
	_, err = Resample(&src, &dst, Shift{DX: math.NaN()})
	assert.Error(t, err)
}
