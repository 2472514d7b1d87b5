package mstack

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/motion-stack/pkg/emath"
)

// Method is how the samples for one pixel are combined.
type Method string

const (
	Average Method = "average"
	Median  Method = "median"
	Sum     Method = "sum"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case Average, Median, Sum:
		return m, nil
	}
	return "", fmt.Errorf("no combination method named '%s'", s)
}

// Deferrable is true if per-chunk results can be merged into exactly
// what a single pass would have given.
func (m Method) Deferrable(clipped bool) bool {
	switch m {
	case Sum:
		return true
	case Average:
		return !clipped
	}
	return false
}

// A CombinerFunc reduces the samples for one pixel to a value. It may
// reorder the slice. It is never called with an empty slice.
type CombinerFunc func(vals []float64) float64

// madToSigma scales a median absolute deviation to a gaussian sigma.
const madToSigma = 1.4826

// {{{ CombineAverage

func CombineAverage(vals []float64) float64 {
	return CombineSum(vals) / float64(len(vals))
}

// }}}
// {{{ CombineMedian

func CombineMedian(vals []float64) float64 {
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// }}}
// {{{ CombineSum

func CombineSum(vals []float64) float64 {
	tot := 0.0
	for _, v := range vals {
		tot += v
	}
	return tot
}

// }}}

// {{{ SigmaClip

// SigmaClip rejects outliers from vals, in place. Each pass measures
// the centre (median) and spread (MAD, scaled to sigma), and drops
// samples below centre-low*spread or above centre+high*spread. It
// stops when a pass rejects nothing, or after iters passes. Survivors
// are moved to the front of vals, in their original order, and their
// count returned. If every sample would go, the one closest to the
// centre is kept. scratch must have room for len(vals).
func SigmaClip(vals []float64, low, high float64, iters int, scratch []float64) int {
	n := len(vals)

	for iter := 0; iter < iters && n > 1; iter++ {
		tmp := scratch[:n]
		copy(tmp, vals[:n])
		centre := CombineMedian(tmp)
		for i := 0; i < n; i++ {
			tmp[i] = math.Abs(vals[i] - centre)
		}
		spread := CombineMedian(tmp) * madToSigma

		lo, hi := centre-low*spread, centre+high*spread
		kept := 0
		closest, closestDist := 0, math.Inf(1)
		for i := 0; i < n; i++ {
			v := vals[i]
			if d := math.Abs(v - centre); d < closestDist {
				closest, closestDist = i, d
			}
			if v >= lo && v <= hi {
				vals[kept] = v
				kept++
			}
		}

		if kept == 0 {
			vals[0] = vals[closest]
			return 1
		}
		if kept == n {
			break
		}
		n = kept
	}

	return n
}

// }}}

// {{{ PartialResult

// A PartialResult is what one chunk contributes. Value holds the
// chunk's statistic for each pixel (NaN if it had no samples), and
// Count how many samples survived into it.
type PartialResult struct {
	Chunk      int
	Method     Method
	Items      int
	Value      emath.FloatGrid
	Count      emath.FloatGrid
	Deferrable bool
	Clipped    int64 // samples rejected by sigma clipping
}

// CombineChunk combines a chunk's resampled planes, pixel by pixel. NaN
// samples (shifted in from outside a frame) are ignored. Each plane is
// multiplied by its scale factor first; scales may be nil.
func CombineChunk(chunk int, planes []*emath.FloatGrid, scales []float64, cfg Config) (*PartialResult, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("chunk %d: nothing to combine", chunk)
	}
	if !cfg.finalized() {
		if err := cfg.Finalize(); err != nil {
			return nil, err
		}
	}
	for i, p := range planes[1:] {
		if !p.SameSize(planes[0]) {
			return nil, fmt.Errorf("chunk %d: plane %d is %dx%d, expected %dx%d", chunk, i+1, p.Dx(), p.Dy(), planes[0].Dx(), planes[0].Dy())
		}
	}

	pr := &PartialResult{
		Chunk:      chunk,
		Method:     cfg.method,
		Items:      len(planes),
		Value:      planes[0].NewFromThis(),
		Count:      planes[0].NewFromThis(),
		Deferrable: cfg.method.Deferrable(cfg.SigmaClip),
	}

	samples := make([]float64, 0, len(planes))
	scratch := make([]float64, len(planes))
	covered := false
	vals := pr.Value.Values()
	counts := pr.Count.Values()

	for i := range vals {
		samples = samples[:0]
		for j, p := range planes {
			v := p.Values()[i]
			if math.IsNaN(v) {
				continue
			}
			if scales != nil {
				v *= scales[j]
			}
			samples = append(samples, v)
		}

		if len(samples) == 0 {
			vals[i] = math.NaN()
			counts[i] = 0
			continue
		}

		covered = true
		n := len(samples)
		if cfg.SigmaClip {
			n = SigmaClip(samples, cfg.SigmaLow, cfg.SigmaHigh, cfg.SigmaIterations, scratch)
			pr.Clipped += int64(len(samples) - n)
		}

		vals[i] = cfg.combiner(samples[:n])
		counts[i] = float64(n)
	}

	if !covered {
		return nil, fmt.Errorf("chunk %d: no pixel has any data", chunk)
	}
	return pr, nil
}

// }}}

// {{{ InvMedianScale

// InvMedianScale is the factor that brings a plane's median to 1. It
// is false if the median is no good for that (zero, negative or no data).
func InvMedianScale(plane *emath.FloatGrid) (float64, bool) {
	vals := make([]float64, 0, len(plane.Values()))
	for _, v := range plane.Values() {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 1, false
	}
	sort.Float64s(vals)
	med := stat.Quantile(0.5, stat.Empirical, vals, nil)
	if med <= 0 || math.IsNaN(med) || math.IsInf(med, 0) {
		return 1, false
	}
	return 1 / med, true
}

// }}}

// {{{ -------------------------={ E N D }=----------------------------------

// Local variables:
// folded-file: t
// end:

// }}}
