package ephem

import (
	"context"
	"fmt"
	"time"

	"github.com/abworrall/motion-stack/pkg/wcs"
)

type timeoutPredictor struct {
	p Predictor
	d time.Duration
}

// WithTimeout bounds every call to p. The call runs in its own
// goroutine, so a predictor that never looks at its context still
// can't hang the caller; its answer is discarded if it arrives late.
// All failures come back wrapping ErrUnavailable. A zero duration means
// no limit.
func WithTimeout(p Predictor, d time.Duration) Predictor {
	return timeoutPredictor{p: p, d: d}
}

func (tp timeoutPredictor) Predict(ctx context.Context, object string, t time.Time) (wcs.SkyCoord, error) {
	if tp.d <= 0 {
		c, err := tp.p.Predict(ctx, object, t)
		return c, unavailable(err)
	}

	ctx, cancel := context.WithTimeout(ctx, tp.d)
	defer cancel()

	type answer struct {
		c   wcs.SkyCoord
		err error
	}
	ch := make(chan answer, 1) // buffered, so a late answer doesn't leak the goroutine

	go func() {
		c, err := tp.p.Predict(ctx, object, t)
		ch <- answer{c, err}
	}()

	select {
	case a := <-ch:
		return a.c, unavailable(a.err)
	case <-ctx.Done():
		return wcs.SkyCoord{}, fmt.Errorf("%w: %q at %s: %v", ErrUnavailable, object, t.Format(time.RFC3339), ctx.Err())
	}
}
