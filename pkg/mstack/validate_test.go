package mstack

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/motion-stack/pkg/frames"
	"github.com/abworrall/motion-stack/pkg/wcs"
)

func solved(i int) frames.Header {
	return frames.Header{WCS: flatSky{}, ObsTime: t0.Add(time.Duration(i) * time.Minute), Filter: "L", ExpTime: 60}
}

func reasons(exs []Exclusion) map[string]ExclusionReason {
	m := map[string]ExclusionReason{}
	for _, ex := range exs {
		m[ex.Ref] = ex.Reason
	}
	return m
}

func TestValidateSequenceExcludes(t *testing.T) {
	l := newMemLoader()
	l.add("a", solved(0), constPlane(20, 10, 1))
	l.add("b", solved(1), constPlane(20, 10, 1))
	l.add("small", solved(2), constPlane(10, 10, 1))

	nowcs := solved(3)
	nowcs.WCS = nil
	l.add("nowcs", nowcs, constPlane(20, 10, 1))

	coarse := solved(4)
	coarse.WCS = wcs.NewSimpleTAN(wcs.SkyCoord{RA: 150, Dec: 20}, 10, 5, 5000)
	l.add("coarse", coarse, constPlane(20, 10, 1))

	notime := solved(5)
	notime.ObsTime = time.Time{}
	l.add("notime", notime, constPlane(20, 10, 1))

	l.add("broken", solved(6), constPlane(20, 10, 1)).headerErr = errDisk

	refs := []string{"a", "broken", "b", "small", "nowcs", "coarse", "notime", "missing"}
	cfg := testConfig()
	require.NoError(t, cfg.Finalize())

	v, err := ValidateSequence(context.Background(), l, refs, cfg)
	require.NoError(t, err)

	require.Len(t, v.Eligible, 2)
	assert.Equal(t, "a", v.Eligible[0].Ref)
	assert.Equal(t, 0, v.Eligible[0].Index)
	assert.Equal(t, "b", v.Eligible[1].Ref)
	assert.Equal(t, 2, v.Eligible[1].Index)

	assert.Equal(t, map[string]ExclusionReason{
		"broken":  ExcludeUnreadable,
		"missing": ExcludeUnreadable,
		"small":   ExcludeDimensions,
		"nowcs":   ExcludeWCS,
		"coarse":  ExcludeWCS,
		"notime":  ExcludeTime,
	}, reasons(v.Exclusions))
}

func TestValidateSequenceWithoutTracking(t *testing.T) {
	l := newMemLoader()
	for _, ref := range []string{"a", "b"} {
		hdr := solved(len(l.exposures))
		hdr.WCS = nil
		l.add(ref, hdr, constPlane(4, 4, 1))
	}

	cfg := testConfig()
	cfg.MotionTracking = false
	require.NoError(t, cfg.Finalize())

	v, err := ValidateSequence(context.Background(), l, []string{"a", "b"}, cfg)
	require.NoError(t, err)
	assert.Len(t, v.Eligible, 2)
	assert.Empty(t, v.Exclusions)
}

func TestValidateSequenceWarnings(t *testing.T) {
	l := newMemLoader()
	l.add("a", solved(0), constPlane(4, 4, 1))

	other := solved(1)
	other.Filter = "Ha"
	l.add("b", other, constPlane(4, 4, 1))

	longer := solved(2)
	longer.ExpTime = 120
	l.add("c", longer, constPlane(4, 4, 1))

	l.add("d", solved(2), constPlane(4, 4, 1))

	cfg := testConfig()
	require.NoError(t, cfg.Finalize())
	v, err := ValidateSequence(context.Background(), l, []string{"a", "b", "c", "d"}, cfg)
	require.NoError(t, err)
	assert.Len(t, v.Eligible, 4)

	kinds := map[string]WarningKind{}
	for _, w := range v.Warnings {
		kinds[w.Ref] = w.Kind
	}
	assert.Equal(t, map[string]WarningKind{"b": WarnFilter, "c": WarnExpTime, "d": WarnTime}, kinds)
}

func TestValidateSequenceTooFew(t *testing.T) {
	l := newMemLoader()
	l.add("a", solved(0), constPlane(4, 4, 1))
	l.add("b", solved(1), constPlane(3, 3, 1))
	l.add("c", solved(2), constPlane(3, 3, 1))
	l.add("d", solved(3), constPlane(4, 4, 1)).headerErr = errDisk

	cfg := testConfig()
	require.NoError(t, cfg.Finalize())

	// b and c win the size vote
	v, err := ValidateSequence(context.Background(), l, []string{"a", "b", "c"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, ExcludeDimensions, reasons(v.Exclusions)["a"])

	_, err = ValidateSequence(context.Background(), l, []string{"a", "d"}, cfg)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 1, verr.Eligible)
	assert.Len(t, verr.Exclusions, 1)

	_, err = ValidateSequence(context.Background(), nil, []string{"a"}, cfg)
	assert.ErrorIs(t, err, ErrNoLoader)
}

func TestValidateSequenceCancelled(t *testing.T) {
	l, refs := movingSequence(3, 20, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testConfig()
	require.NoError(t, cfg.Finalize())
	_, err := ValidateSequence(ctx, l, refs, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}
