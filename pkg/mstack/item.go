package mstack

import (
	"fmt"

	"github.com/abworrall/motion-stack/pkg/frames"
	"github.com/abworrall/motion-stack/pkg/wcs"
)

// A Shift is how far an image's content is moved, in pixels.
type Shift struct {
	DX, DY float64
}

func (s Shift) IsZero() bool   { return s.DX == 0 && s.DY == 0 }
func (s Shift) String() string { return fmt.Sprintf("(%+.3f,%+.3f)", s.DX, s.DY) }

// An Item is one exposure in the sequence. Validation creates it, shift
// computation fills in the prediction, and after that it is read only.
type Item struct {
	Ref    string
	Index  int // position in the input list
	Header frames.Header

	Predicted     *wcs.SkyCoord // nil if the ephemeris had no answer
	Shift         Shift
	ShiftFallback bool // Shift is zero because there was no prediction

	// Filled in when the chunk holding the item is combined
	Border   float64 // fraction of output pixels shifted in from outside the frame
	Scale    float64 // multiplier applied before combining
	Combined bool
}

func (it Item) String() string {
	pred := "none"
	if it.Predicted != nil {
		pred = it.Predicted.String()
	}
	return fmt.Sprintf("item[%d %s, pred=%s, shift=%s, border=%.3f]", it.Index, it.Ref, pred, it.Shift, it.Border)
}

// A Chunk is a run of consecutive items that are combined together.
type Chunk struct {
	Index int
	Items []Item
}
