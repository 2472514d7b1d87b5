package mstack

import (
	"context"

	"github.com/abworrall/motion-stack/pkg/frames"
)

// Loader reads exposures. Refs are opaque to the engine.
type Loader interface {
	LoadHeader(ctx context.Context, ref string) (frames.Header, error)
	LoadFrame(ctx context.Context, ref string) (frames.Frame, error)
}

// ProgressSink hears about progress, and can ask for the run to stop.
// Cancellation only takes effect between chunks.
type ProgressSink interface {
	Report(fraction float64)
	Cancelled() bool
}

type nopSink struct{}

func (nopSink) Report(float64)  {}
func (nopSink) Cancelled() bool { return false }
