package mstack

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/abworrall/motion-stack/pkg/emath"
	"github.com/abworrall/motion-stack/pkg/ephem"
	"github.com/abworrall/motion-stack/pkg/frames"
	"github.com/abworrall/motion-stack/pkg/wcs"
)

// Engine runs integrations. It holds only the things it talks to; all
// settings arrive with each call, so one Engine can serve many runs.
type Engine struct {
	Loader    Loader
	Predictor ephem.Predictor // only needed when tracking
	Progress  ProgressSink    // may be nil
	Log       *log.Logger     // may be nil
}

func NewEngine(l Loader, p ephem.Predictor) *Engine {
	return &Engine{Loader: l, Predictor: p}
}

// Result is a finished (or cancelled part way) integration.
type Result struct {
	Plane emath.FloatGrid
	Count emath.FloatGrid // samples behind each pixel

	Metadata     Metadata
	Quality      Quality
	Header       frames.Header // of the first combined exposure
	Reference    *Reference    // nil unless motion tracked
	Items        []Item
	Warnings     []Warning
	Exclusions   []Exclusion
	FailedChunks []ChunkFailure
	Incomplete   bool
}

// {{{ workspace

// workspace holds the resampled planes for one chunk. It is allocated
// once per run, and wiped after every chunk.
type workspace struct {
	planes []emath.FloatGrid
	used   int
}

func newWorkspace(n, w, h int) *workspace {
	ws := &workspace{planes: make([]emath.FloatGrid, n)}
	for i := range ws.planes {
		ws.planes[i] = emath.NewFloatGrid(w, h)
	}
	return ws
}

func (ws *workspace) next() *emath.FloatGrid {
	p := &ws.planes[ws.used]
	ws.used++
	return p
}

// drop gives back the plane most recently handed out.
func (ws *workspace) drop() { ws.used-- }

func (ws *workspace) reset() {
	for i := range ws.planes[:ws.used] {
		ws.planes[i].Fill(0)
	}
	ws.used = 0
}

// }}}

func (e *Engine) sink() ProgressSink {
	if e.Progress == nil {
		return nopSink{}
	}
	return e.Progress
}

func (e *Engine) logger() *log.Logger {
	if e.Log == nil {
		return log.Default()
	}
	return e.Log
}

// ValidateSequence checks refs without integrating them.
func (e *Engine) ValidateSequence(ctx context.Context, refs []string, cfg Config) (Validation, error) {
	if err := cfg.Finalize(); err != nil {
		return Validation{}, fmt.Errorf("config: %w", err)
	}
	return ValidateSequence(ctx, e.Loader, refs, cfg)
}

// {{{ Integrate

// Integrate validates refs, works out each exposure's shift, and combines
// the shifted exposures chunk by chunk into one plane.
//
// A chunk that can't be combined is recorded in the result and the run
// carries on; the run only fails if no chunk at all could be combined.
// If the progress sink asks to stop (or ctx is done), the run stops at
// the next chunk boundary, and the chunks combined so far are returned
// with Incomplete set; stopping before the first chunk is an
// *IntegrationError wrapping ErrCancelled.
func (e *Engine) Integrate(ctx context.Context, refs []string, cfg Config) (*Result, error) {
	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	sink, lg := e.sink(), e.logger()
	tStart := time.Now()

	v, err := ValidateSequence(ctx, e.Loader, refs, cfg)
	for _, ex := range v.Exclusions {
		lg.Printf("%s\n", ex)
	}
	if err != nil {
		return nil, err
	}

	items := v.Eligible
	res := &Result{
		Items:      items,
		Warnings:   v.Warnings,
		Exclusions: v.Exclusions,
	}
	md := Metadata{
		Object:      cfg.Object,
		ShiftMethod: "none",
		Method:      cfg.method,
		SigmaClip:   cfg.SigmaClip,
		RunID:       runID(refs, cfg),
	}
	lg.Printf("Validated %d images (%d excluded), run %s\n", len(items), len(v.Exclusions), md.RunID)

	if cfg.Tracking() {
		ref, warns, err := ComputeShifts(ctx, e.Predictor, items, cfg)
		res.Warnings = append(res.Warnings, warns...)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			res.Reference = ref
			md.MotionTracked = true
			md.ShiftMethod = "ephemeris"
			md.ReferenceTime = ref.Time
		}
	}
	if md.ReferenceTime.IsZero() {
		md.ReferenceTime = items[0].Header.ObsTime
	}

	w, h := items[0].Header.Width, items[0].Header.Height
	plan, err := PlanChunks(items, items[0].Header.Bytes(), cfg)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(res.Warnings, plan.Warnings...)
	md.Chunked = plan.Chunked
	md.TotalChunks = len(plan.Chunks)
	md.ChunkSize = plan.ChunkSize
	lg.Printf("Plan: %d chunks of up to %d images (chunked=%v)\n", len(plan.Chunks), plan.ChunkSize, plan.Chunked)

	ws := newWorkspace(plan.ChunkSize, w, h)
	sc := newSequenceCombiner(cfg.method, cfg.SigmaClip)
	clipped := int64(0)

	// Cancellation only takes effect between chunks; a chunk that has
	// started always runs to the end.
	chunkCtx := context.WithoutCancel(ctx)

	sink.Report(0)
	for i, chunk := range plan.Chunks {
		if sink.Cancelled() || ctx.Err() != nil {
			res.Incomplete = true
			break
		}

		tChunk := time.Now()
		pr, used, err := e.combineChunk(chunkCtx, chunk, ws, cfg, res)
		ws.reset()
		if err == nil {
			err = sc.add(pr)
		}

		if err != nil {
			res.FailedChunks = append(res.FailedChunks, ChunkFailure{Chunk: chunk.Index, Err: err})
			lg.Printf("chunk %d/%d failed: %v\n", i+1, len(plan.Chunks), err)
		} else {
			for _, it := range used {
				it.Combined = true
			}
			clipped += pr.Clipped
			lg.Printf("chunk %d/%d: combined %d images, %s\n", i+1, len(plan.Chunks), pr.Items, time.Since(tChunk))
		}

		sink.Report(float64(i+1) / float64(len(plan.Chunks)))
	}

	if sc.chunks == 0 {
		if res.Incomplete {
			return nil, &IntegrationError{Failed: res.FailedChunks, Err: ErrCancelled}
		}
		return nil, &IntegrationError{Failed: res.FailedChunks, Err: ErrNoChunks}
	}

	res.Plane = sc.result()
	res.Count = *sc.Count().Copy()

	for _, it := range items {
		if it.Combined {
			if md.Combined == 0 {
				res.Header = it.Header
			}
			md.Combined++
		}
	}
	md.Approximate = sc.Approximate()
	md.Skipped = len(res.Exclusions)
	md.FailedChunks = len(res.FailedChunks)
	md.SoftFailures = len(res.Warnings)
	md.Incomplete = res.Incomplete
	md.Saturated = !frames.FitsInFloat32(&res.Plane)
	res.Metadata = md
	res.Quality = qualityReport(items, &res.Count, clipped)

	for _, warn := range res.Warnings {
		lg.Printf("warning %s\n", warn)
	}
	lg.Printf("Integrated %d images in %s, %s; %s\n", md.Combined, time.Since(tStart), res.Quality, res.Plane.Stats())

	return res, nil
}

// combineChunk loads, scales and shifts each image in the chunk into the
// workspace, and combines them. Images that fail to load are excluded
// from the run, with a warning. It also returns the items that went into
// the combination; the caller marks them once the chunk has been merged.
func (e *Engine) combineChunk(ctx context.Context, chunk Chunk, ws *workspace, cfg Config, res *Result) (*PartialResult, []*Item, error) {
	planes := []*emath.FloatGrid{}
	scales := []float64{}
	used := []*Item{}

	for j := range chunk.Items {
		it := &chunk.Items[j]

		f, err := e.Loader.LoadFrame(ctx, it.Ref)
		if err == nil && (f.Plane.Dx() != it.Header.Width || f.Plane.Dy() != it.Header.Height) {
			err = fmt.Errorf("pixels are %dx%d, header said %dx%d", f.Plane.Dx(), f.Plane.Dy(), it.Header.Width, it.Header.Height)
		}

		var dst *emath.FloatGrid
		if err == nil {
			dst = ws.next()
			it.Border, err = Resample(&f.Plane, dst, it.Shift)
			if err != nil {
				ws.drop()
			}
		}

		if err != nil {
			res.Exclusions = append(res.Exclusions, Exclusion{Ref: it.Ref, Index: it.Index, Reason: ExcludeLoad, Detail: err.Error()})
			res.Warnings = append(res.Warnings, Warning{Ref: it.Ref, Kind: WarnLoad, Message: err.Error()})
			continue
		}

		it.Scale = 1
		if cfg.Scale == "invmedian" {
			s, ok := InvMedianScale(&f.Plane)
			if !ok {
				res.Warnings = append(res.Warnings, Warning{Ref: it.Ref, Kind: WarnScale, Message: "median is not positive, left unscaled"})
			}
			it.Scale = s
		}
		used = append(used, it)

		planes = append(planes, dst)
		scales = append(scales, it.Scale)
	}

	if len(planes) == 0 {
		return nil, nil, fmt.Errorf("none of the %d images could be loaded", len(chunk.Items))
	}
	pr, err := CombineChunk(chunk.Index, planes, scales, cfg)
	if err != nil {
		return nil, nil, err
	}
	return pr, used, nil
}

// }}}

// {{{ Cards

// Cards is the header for the output file: the coordinate solution and
// time of the first combined exposure, then the run metadata.
func (r *Result) Cards() []frames.Card {
	cards := []frames.Card{}
	if r.Header.Object != "" {
		cards = append(cards, frames.Card{Name: "TARGET", Value: r.Header.Object, Comment: "object keyword of the first image"})
	}
	if !r.Header.ObsTime.IsZero() {
		cards = append(cards, frames.Card{Name: "DATE-OBS", Value: r.Header.ObsTime.UTC().Format("2006-01-02T15:04:05.000"), Comment: "first combined exposure"})
	}
	if r.Header.Filter != "" {
		cards = append(cards, frames.Card{Name: "FILTER", Value: r.Header.Filter})
	}
	// The solution only holds for the output when the star field stayed put
	if !r.Metadata.MotionTracked {
		cards = append(cards, wcsCards(r.Header.WCS)...)
	}
	return append(cards, r.Metadata.Cards()...)
}

func wcsCards(sol wcs.Solution) []frames.Card {
	tan, ok := sol.(*wcs.TAN)
	if !ok || tan.Singular() {
		return nil
	}
	return []frames.Card{
		{Name: "CTYPE1", Value: "RA---TAN"},
		{Name: "CTYPE2", Value: "DEC--TAN"},
		{Name: "CRPIX1", Value: tan.CRPix[0]},
		{Name: "CRPIX2", Value: tan.CRPix[1]},
		{Name: "CRVAL1", Value: tan.CRVal[0]},
		{Name: "CRVAL2", Value: tan.CRVal[1]},
		{Name: "CD1_1", Value: tan.CD[0]},
		{Name: "CD1_2", Value: tan.CD[1]},
		{Name: "CD2_1", Value: tan.CD[2]},
		{Name: "CD2_2", Value: tan.CD[3]},
	}
}

// }}}

// {{{ -------------------------={ E N D }=----------------------------------

// Local variables:
// folded-file: t
// end:

// }}}
