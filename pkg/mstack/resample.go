package mstack

import (
	"fmt"
	"math"

	"github.com/abworrall/motion-stack/pkg/emath"
)

// Resample writes src, moved by the shift, into dst (which must be the
// same size): dst(x,y) = src(x-dx, y-dy), bilinearly interpolated.
// Pixels whose source position falls outside src are set to NaN; the
// fraction of such pixels is returned. A zero shift is an exact copy.
func Resample(src, dst *emath.FloatGrid, s Shift) (float64, error) {
	if !src.SameSize(dst) {
		return 0, fmt.Errorf("resample: src is %dx%d, dst is %dx%d", src.Dx(), src.Dy(), dst.Dx(), dst.Dy())
	}
	if src.IsEmpty() {
		return 0, nil
	}
	if s.IsZero() {
		src.CopyInto(dst)
		return 0, nil
	}
	if math.IsNaN(s.DX) || math.IsNaN(s.DY) || math.IsInf(s.DX, 0) || math.IsInf(s.DY, 0) {
		return 0, fmt.Errorf("resample: bad shift %s", s)
	}

	// Maps output coords back into the source
	xform := emath.Identity().Translate(-s.DX, -s.DY)

	outside := 0
	for y := 0; y < dst.Dy(); y++ {
		for x := 0; x < dst.Dx(); x++ {
			sx, sy := xform.Apply(float64(x), float64(y))
			v, ok := src.Bilinear(sx, sy)
			if !ok {
				outside++
			}
			dst.Set(x, y, v)
		}
	}

	return float64(outside) / float64(len(dst.Values())), nil
}
