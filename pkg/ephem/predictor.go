// Package ephem predicts where a moving object sits on the sky at a given
// time. The integration engine only sees the Predictor interface; the
// rest of this package is the concrete ways of answering it.
package ephem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abworrall/motion-stack/pkg/wcs"
)

// ErrUnavailable is wrapped by every prediction failure, so callers can
// treat them all as a soft failure.
var ErrUnavailable = errors.New("ephemeris unavailable")

type Predictor interface {
	Predict(ctx context.Context, object string, t time.Time) (wcs.SkyCoord, error)
}

// PredictorFunc lets a plain function act as a Predictor.
type PredictorFunc func(ctx context.Context, object string, t time.Time) (wcs.SkyCoord, error)

func (f PredictorFunc) Predict(ctx context.Context, object string, t time.Time) (wcs.SkyCoord, error) {
	return f(ctx, object, t)
}

// Multi asks each predictor in turn, and returns the first answer.
type Multi []Predictor

func (m Multi) Predict(ctx context.Context, object string, t time.Time) (wcs.SkyCoord, error) {
	errs := []string{}
	for _, p := range m {
		c, err := p.Predict(ctx, object, t)
		if err == nil {
			return c, nil
		}
		errs = append(errs, err.Error())
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return wcs.SkyCoord{}, fmt.Errorf("%w: no ephemeris sources for %q", ErrUnavailable, object)
	}
	return wcs.SkyCoord{}, fmt.Errorf("%w: %s", ErrUnavailable, strings.Join(errs, "; "))
}

// unavailable wraps err so that it matches ErrUnavailable.
func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func normName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
