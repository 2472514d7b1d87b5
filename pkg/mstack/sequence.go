package mstack

import (
	"fmt"
	"math"
	"sort"

	"github.com/abworrall/motion-stack/pkg/emath"
)

// sequenceCombiner merges chunk results into the final plane.
//
// Sums add up exactly. Unclipped averages merge exactly as a
// count-weighted mean. Clipped averages use the same weighted mean of
// the clipped chunk means, which is only close to what one pass would
// give. Medians keep every chunk's median plane and take a
// count-weighted median of them at the end, which is also approximate.
type sequenceCombiner struct {
	method Method
	clip   bool

	acc    emath.FloatGrid  // sum, or count-weighted sum of means
	count  emath.FloatGrid  // surviving samples per pixel, across chunks
	parts  []*PartialResult // medians only
	first  *PartialResult   // until a second chunk arrives
	chunks int
}

func newSequenceCombiner(method Method, clip bool) *sequenceCombiner {
	return &sequenceCombiner{method: method, clip: clip}
}

func (sc *sequenceCombiner) add(pr *PartialResult) error {
	if sc.chunks == 0 {
		sc.acc = pr.Value.NewFromThis()
		sc.count = pr.Count.NewFromThis()
	} else if !sc.acc.SameSize(&pr.Value) {
		return fmt.Errorf("chunk %d is %dx%d, expected %dx%d", pr.Chunk, pr.Value.Dx(), pr.Value.Dy(), sc.acc.Dx(), sc.acc.Dy())
	}
	sc.chunks++
	if sc.chunks == 1 {
		sc.first = pr
	} else {
		sc.first = nil
	}

	acc, count := sc.acc.Values(), sc.count.Values()
	vals, counts := pr.Value.Values(), pr.Count.Values()

	for i := range vals {
		if counts[i] == 0 {
			continue
		}
		switch sc.method {
		case Sum:
			acc[i] += vals[i]
		case Average:
			acc[i] += vals[i] * counts[i]
		}
		count[i] += counts[i]
	}

	if sc.method == Median {
		sc.parts = append(sc.parts, pr)
	}
	return nil
}

// Approximate is true if the result may differ from a single pass.
func (sc *sequenceCombiner) Approximate() bool {
	return sc.chunks > 1 && !sc.method.Deferrable(sc.clip)
}

// result builds the final plane. Pixels nobody contributed to are NaN.
func (sc *sequenceCombiner) result() emath.FloatGrid {
	if sc.first != nil {
		// One chunk is its own answer
		return *sc.first.Value.Copy()
	}

	out := sc.acc.NewFromThis()
	vals, acc, count := out.Values(), sc.acc.Values(), sc.count.Values()

	pairs := make([]weighted, 0, len(sc.parts))
	for i := range vals {
		if count[i] == 0 {
			vals[i] = math.NaN()
			continue
		}
		switch sc.method {
		case Sum:
			vals[i] = acc[i]
		case Average:
			vals[i] = acc[i] / count[i]
		case Median:
			pairs = pairs[:0]
			for _, pr := range sc.parts {
				if c := pr.Count.Values()[i]; c > 0 {
					pairs = append(pairs, weighted{pr.Value.Values()[i], c})
				}
			}
			vals[i] = weightedMedian(pairs)
		}
	}
	return out
}

// Count is the number of samples behind each output pixel.
func (sc *sequenceCombiner) Count() *emath.FloatGrid { return &sc.count }

type weighted struct {
	v, w float64
}

// weightedMedian is the value at which the cumulative weight reaches
// half the total. If it lands exactly on half, it's the mean of the two
// values either side, like an ordinary median of an even count.
func weightedMedian(pairs []weighted) float64 {
	if len(pairs) == 1 {
		return pairs[0].v
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].v < pairs[j].v })

	total := 0.0
	for _, p := range pairs {
		total += p.w
	}
	half := total / 2

	cum := 0.0
	for i, p := range pairs {
		cum += p.w
		if cum > half {
			return p.v
		}
		if cum == half && i+1 < len(pairs) {
			return (p.v + pairs[i+1].v) / 2
		}
	}
	return pairs[len(pairs)-1].v
}
