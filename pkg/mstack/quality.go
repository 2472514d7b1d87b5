package mstack

import (
	"fmt"
	"math"

	"github.com/codahale/hdrhistogram"
	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/motion-stack/pkg/emath"
)

// Quality summarises how well covered the output is.
type Quality struct {
	BorderMean   float64 // fraction of each image shifted in from outside, averaged
	BorderMedian float64
	BorderMax    float64

	ContributorsMin    int64 // samples behind a pixel
	ContributorsMedian int64
	ContributorsMax    int64
	NoDataPixels       int

	Clipped int64 // samples rejected by sigma clipping
}

func (q Quality) String() string {
	return fmt.Sprintf("border{mean=%.4f p50=%.4f max=%.4f} contributors{min=%d p50=%d max=%d} nodata=%d clipped=%d",
		q.BorderMean, q.BorderMedian, q.BorderMax, q.ContributorsMin, q.ContributorsMedian, q.ContributorsMax, q.NoDataPixels, q.Clipped)
}

// borderScale turns a border fraction into histogram units.
const borderScale = 10000

// qualityReport looks at the combined items and the per-pixel sample
// counts. Histograms hold value+1, as they can't track zero.
func qualityReport(items []Item, count *emath.FloatGrid, clipped int64) Quality {
	q := Quality{Clipped: clipped}

	borders := []float64{}
	bh := hdrhistogram.New(1, borderScale+1, 3)
	for _, it := range items {
		if !it.Combined {
			continue
		}
		borders = append(borders, it.Border)
		bh.RecordValue(int64(math.Round(it.Border*borderScale)) + 1)
	}
	if len(borders) > 0 {
		q.BorderMean = stat.Mean(borders, nil)
		q.BorderMedian = float64(bh.ValueAtQuantile(50)-1) / borderScale
		q.BorderMax = float64(bh.Max()-1) / borderScale
	}

	if count == nil || count.IsEmpty() {
		return q
	}
	_, maxCount := count.MinMax()
	if math.IsNaN(maxCount) {
		return q
	}
	ch := hdrhistogram.New(1, int64(maxCount)+2, 3)
	for _, c := range count.Values() {
		if c == 0 {
			q.NoDataPixels++
		}
		ch.RecordValue(int64(c) + 1)
	}
	q.ContributorsMin = ch.Min() - 1
	q.ContributorsMedian = ch.ValueAtQuantile(50) - 1
	q.ContributorsMax = ch.Max() - 1

	return q
}
