package mstack

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abworrall/motion-stack/pkg/emath"
	"github.com/abworrall/motion-stack/pkg/ephem"
	"github.com/abworrall/motion-stack/pkg/frames"
	"github.com/abworrall/motion-stack/pkg/wcs"
)

var t0 = time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

// flatSky maps RA/Dec straight onto x/y, so shifts come out exact.
type flatSky struct{}

func (flatSky) SkyToPixel(c wcs.SkyCoord) (float64, float64, error) { return c.RA, c.Dec, nil }
func (flatSky) PixelScale() float64                                 { return 1 }

type memExposure struct {
	hdr       frames.Header
	plane     emath.FloatGrid
	headerErr error
	frameErr  error
}

// memLoader serves exposures from memory.
type memLoader struct {
	sync.Mutex
	exposures map[string]*memExposure
	loads     []string
}

func newMemLoader() *memLoader {
	return &memLoader{exposures: map[string]*memExposure{}}
}

func (l *memLoader) add(ref string, hdr frames.Header, plane emath.FloatGrid) *memExposure {
	hdr.Filename = ref
	hdr.Width, hdr.Height = plane.Dx(), plane.Dy()
	e := &memExposure{hdr: hdr, plane: plane}
	l.exposures[ref] = e
	return e
}

func (l *memLoader) LoadHeader(ctx context.Context, ref string) (frames.Header, error) {
	e, exists := l.exposures[ref]
	if !exists {
		return frames.Header{}, fmt.Errorf("%s: no such exposure", ref)
	}
	return e.hdr, e.headerErr
}

func (l *memLoader) LoadFrame(ctx context.Context, ref string) (frames.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frames.Frame{}, err
	}
	l.Lock()
	l.loads = append(l.loads, ref)
	l.Unlock()

	e, exists := l.exposures[ref]
	if !exists {
		return frames.Frame{}, fmt.Errorf("%s: no such exposure", ref)
	}
	if e.frameErr != nil {
		return frames.Frame{}, e.frameErr
	}
	return frames.Frame{Header: e.hdr, Plane: *e.plane.Copy()}, nil
}

// linearMover is an object that moves one pixel in +x per minute,
// starting at (10,5) at t0. Times in fail have no answer.
type linearMover struct {
	fail map[time.Time]bool
}

func (m linearMover) Predict(ctx context.Context, object string, t time.Time) (wcs.SkyCoord, error) {
	if m.fail[t] {
		return wcs.SkyCoord{}, fmt.Errorf("%w: no elements for %s", ephem.ErrUnavailable, t)
	}
	return wcs.SkyCoord{RA: 10 + t.Sub(t0).Minutes(), Dec: 5}, nil
}

// stopAfter asks for cancellation once it has heard n reports.
type stopAfter struct {
	n       int
	reports []float64
}

func (s *stopAfter) Report(f float64) { s.reports = append(s.reports, f) }
func (s *stopAfter) Cancelled() bool  { return s.n >= 0 && len(s.reports) >= s.n }

func constPlane(w, h int, v float64) emath.FloatGrid {
	g := emath.NewFloatGrid(w, h)
	g.Fill(v)
	return g
}

// movingSequence builds n solved exposures, one a minute, each with a
// background of 1 and a bright spot where linearMover puts the object.
func movingSequence(n, w, h int) (*memLoader, []string) {
	l := newMemLoader()
	refs := []string{}
	for i := 0; i < n; i++ {
		ref := fmt.Sprintf("frame-%02d.fits", i)
		plane := constPlane(w, h, 1)
		plane.Set(10+i, 5, 100)
		hdr := frames.Header{
			WCS:     flatSky{},
			ObsTime: t0.Add(time.Duration(i) * time.Minute),
			Filter:  "L",
			ExpTime: 60,
		}
		l.add(ref, hdr, plane)
		refs = append(refs, ref)
	}
	return l, refs
}

// valueSequence builds n unsolved exposures where pixel (x,y) of image i
// is f(i,x,y).
func valueSequence(n, w, h int, f func(i, x, y int) float64) (*memLoader, []string) {
	l := newMemLoader()
	refs := []string{}
	for i := 0; i < n; i++ {
		ref := fmt.Sprintf("img-%03d.tif", i)
		plane := emath.NewFloatGrid(w, h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				plane.Set(x, y, f(i, x, y))
			}
		}
		l.add(ref, frames.Header{ObsTime: t0.Add(time.Duration(i) * time.Minute)}, plane)
		refs = append(refs, ref)
	}
	return l, refs
}

func testConfig() Config {
	cfg := NewConfig()
	cfg.Object = "2024 AB1"
	cfg.SigmaClip = false
	cfg.EphemerisTimeout = time.Second
	return cfg
}

var errDisk = errors.New("disk on fire")
