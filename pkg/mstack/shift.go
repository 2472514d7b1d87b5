package mstack

import (
	"context"
	"fmt"
	"time"

	"github.com/abworrall/motion-stack/pkg/ephem"
	"github.com/abworrall/motion-stack/pkg/wcs"
)

// ComputeShift works out how far to move an image so that the object,
// predicted to be at `predicted`, lands on the pixel where `reference`
// falls in the same image. Both positions go through the image's own
// solution, so rotation and scale are accounted for, and the gnomonic
// projection takes care of cos(dec).
//
// A positive shift moves content right/down: it is the negative of the
// object's apparent motion.
func ComputeShift(sol wcs.Solution, reference, predicted wcs.SkyCoord) (Shift, error) {
	if reference == predicted {
		return Shift{}, nil
	}
	if sol == nil {
		return Shift{}, wcs.ErrNoSolution
	}

	rx, ry, err := sol.SkyToPixel(reference)
	if err != nil {
		return Shift{}, fmt.Errorf("reference %s: %w", reference, err)
	}
	px, py, err := sol.SkyToPixel(predicted)
	if err != nil {
		return Shift{}, fmt.Errorf("prediction %s: %w", predicted, err)
	}

	return Shift{DX: rx - px, DY: ry - py}, nil
}

// Reference is the sky position everything is stacked onto.
type Reference struct {
	Pos  wcs.SkyCoord
	Time time.Time
}

// ComputeShifts asks the predictor where the object was for each item,
// picks the reference position, and fills in every item's shift. Items
// with no prediction keep a zero shift, flagged, and get a warning.
// The returned reference is nil if nothing could be predicted.
func ComputeShifts(ctx context.Context, p ephem.Predictor, items []Item, cfg Config) (*Reference, []Warning, error) {
	warnings := []Warning{}
	if p == nil {
		return nil, warnings, fmt.Errorf("tracking %q needs an ephemeris predictor", cfg.Object)
	}
	p = ephem.WithTimeout(p, cfg.EphemerisTimeout)

	var firstOK *Reference
	for i := range items {
		if err := ctx.Err(); err != nil {
			return nil, warnings, err
		}
		it := &items[i]
		pos, err := p.Predict(ctx, cfg.Object, it.Header.ObsTime)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, warnings, ctxErr
			}
			warnings = append(warnings, Warning{Ref: it.Ref, Kind: WarnEphemeris, Message: fmt.Sprintf("no position for %q, using zero shift: %v", cfg.Object, err)})
			continue
		}
		it.Predicted = &pos
		if firstOK == nil {
			firstOK = &Reference{Pos: pos, Time: it.Header.ObsTime}
		}
	}

	ref := firstOK
	switch {
	case !cfg.refTime.IsZero():
		pos, err := p.Predict(ctx, cfg.Object, cfg.refTime)
		if err == nil {
			ref = &Reference{Pos: pos, Time: cfg.refTime}
		} else if firstOK != nil {
			warnings = append(warnings, Warning{Kind: WarnReference, Message: fmt.Sprintf("no position at reference time %s, using %s instead: %v",
				cfg.refTime.Format(time.RFC3339), firstOK.Time.Format(time.RFC3339), err)})
		}
	case len(items) > 0 && items[0].Predicted == nil && firstOK != nil:
		warnings = append(warnings, Warning{Ref: items[0].Ref, Kind: WarnReference, Message: fmt.Sprintf("first exposure has no position, reference is %s", firstOK.Time.Format(time.RFC3339))})
	}

	for i := range items {
		it := &items[i]
		if it.Predicted == nil || ref == nil {
			it.Shift = Shift{}
			it.ShiftFallback = true
			continue
		}
		s, err := ComputeShift(it.Header.WCS, ref.Pos, *it.Predicted)
		if err != nil {
			warnings = append(warnings, Warning{Ref: it.Ref, Kind: WarnEphemeris, Message: fmt.Sprintf("can't place prediction in image, using zero shift: %v", err)})
			it.Shift = Shift{}
			it.ShiftFallback = true
			continue
		}
		it.Shift = s
	}

	if ref == nil {
		warnings = append(warnings, Warning{Kind: WarnReference, Message: fmt.Sprintf("no positions at all for %q, stacking without motion compensation", cfg.Object)})
	}

	return ref, warnings, nil
}
