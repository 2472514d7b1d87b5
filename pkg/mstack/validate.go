package mstack

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Validation is the outcome of checking a sequence before integrating it.
type Validation struct {
	Eligible   []Item
	Exclusions []Exclusion
	Warnings   []Warning
}

type dims struct{ w, h int }

// majorityDims picks the most common image size; ties go to the size
// seen first.
func majorityDims(items []Item) dims {
	counts := map[dims]int{}
	order := []dims{}
	for _, it := range items {
		d := dims{it.Header.Width, it.Header.Height}
		if counts[d] == 0 {
			order = append(order, d)
		}
		counts[d]++
	}

	best := dims{}
	for _, d := range order {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

// ValidateSequence reads every header and decides which items can be
// stacked. Items are excluded for being unreadable, the wrong size, not
// plate solved (only when tracking), or having no timestamp. Mismatched
// filters and exposure times only produce warnings. Fewer than two
// eligible items is a *ValidationError.
func ValidateSequence(ctx context.Context, loader Loader, refs []string, cfg Config) (Validation, error) {
	v := Validation{}
	if loader == nil {
		return v, ErrNoLoader
	}

	readable := []Item{}
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return v, err
		}
		hdr, err := loader.LoadHeader(ctx, ref)
		if err != nil {
			v.Exclusions = append(v.Exclusions, Exclusion{Ref: ref, Index: i, Reason: ExcludeUnreadable, Detail: err.Error()})
			continue
		}
		readable = append(readable, Item{Ref: ref, Index: i, Header: hdr, Scale: 1})
	}

	want := majorityDims(readable)
	seenTimes := map[time.Time]string{}

	for _, it := range readable {
		hdr := it.Header

		if hdr.Width != want.w || hdr.Height != want.h {
			v.exclude(it, ExcludeDimensions, fmt.Sprintf("%dx%d, sequence is %dx%d", hdr.Width, hdr.Height, want.w, want.h))
			continue
		}

		if cfg.Tracking() {
			if hdr.WCS == nil {
				v.exclude(it, ExcludeWCS, "no coordinate solution")
				continue
			}
			scale := hdr.WCS.PixelScale()
			if math.IsNaN(scale) || math.IsInf(scale, 0) || scale < cfg.MinPixelScale || scale > cfg.MaxPixelScale {
				v.exclude(it, ExcludeWCS, fmt.Sprintf("pixel scale %g\"/pix outside [%g, %g]", scale, cfg.MinPixelScale, cfg.MaxPixelScale))
				continue
			}
		}

		if hdr.ObsTime.IsZero() {
			v.exclude(it, ExcludeTime, "no observation time")
			continue
		}
		if prev, exists := seenTimes[hdr.ObsTime]; exists {
			v.warn(it.Ref, WarnTime, fmt.Sprintf("same observation time as %s", prev))
		} else {
			seenTimes[hdr.ObsTime] = it.Ref
		}

		v.Eligible = append(v.Eligible, it)
	}

	v.checkConsistency(cfg.ExposureTolerance)

	if len(v.Eligible) < 2 {
		return v, &ValidationError{
			Eligible:   len(v.Eligible),
			Exclusions: v.Exclusions,
			Reason:     "need at least 2 eligible images",
		}
	}

	return v, nil
}

// checkConsistency compares filter and exposure time against the first
// eligible item.
func (v *Validation) checkConsistency(tolerance float64) {
	if len(v.Eligible) == 0 {
		return
	}
	first := v.Eligible[0].Header

	for _, it := range v.Eligible[1:] {
		hdr := it.Header
		if first.Filter != "" && hdr.Filter != "" && !strings.EqualFold(first.Filter, hdr.Filter) {
			v.warn(it.Ref, WarnFilter, fmt.Sprintf("filter %q differs from %q", hdr.Filter, first.Filter))
		}
		if first.ExpTime > 0 && hdr.ExpTime > 0 && math.Abs(hdr.ExpTime-first.ExpTime)/first.ExpTime > tolerance {
			v.warn(it.Ref, WarnExpTime, fmt.Sprintf("exposure %gs differs from %gs", hdr.ExpTime, first.ExpTime))
		}
	}
}

func (v *Validation) exclude(it Item, reason ExclusionReason, detail string) {
	v.Exclusions = append(v.Exclusions, Exclusion{Ref: it.Ref, Index: it.Index, Reason: reason, Detail: detail})
}

func (v *Validation) warn(ref string, kind WarningKind, msg string) {
	v.Warnings = append(v.Warnings, Warning{Ref: ref, Kind: kind, Message: msg})
}
