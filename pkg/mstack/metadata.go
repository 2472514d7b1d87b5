package mstack

import (
	"time"

	"github.com/google/uuid"

	"github.com/abworrall/motion-stack/pkg/frames"
)

// Metadata describes how a result was produced.
type Metadata struct {
	Object        string
	ReferenceTime time.Time
	ShiftMethod   string // "ephemeris" or "none"
	MotionTracked bool
	Method        Method
	SigmaClip     bool

	Chunked     bool
	TotalChunks int
	ChunkSize   int
	Approximate bool // chunked statistic differs from a single pass

	Combined     int // images that made it into the result
	Skipped      int // images excluded or that failed to load
	FailedChunks int
	SoftFailures int
	Incomplete   bool // cancelled before all chunks were done
	Saturated    bool // values too large for a 32-bit float
	RunID        string
}

// A MetaEntry is one metadata value under its stable key. Keyword is
// the (8 character) FITS name it is written under.
type MetaEntry struct {
	Key     string
	Keyword string
	Value   interface{}
	Comment string
}

// Entries lists the metadata in a fixed order.
func (m Metadata) Entries() []MetaEntry {
	refTime := ""
	if !m.ReferenceTime.IsZero() {
		refTime = m.ReferenceTime.UTC().Format("2006-01-02T15:04:05.000")
	}
	return []MetaEntry{
		{"OBJECT", "OBJECT", m.Object, "tracked object"},
		{"REFERENCE_TIME", "REFTIME", refTime, "time of the reference position"},
		{"SHIFT_METHOD", "SHIFTMTH", m.ShiftMethod, "how image shifts were found"},
		{"MOTION_TRACKED", "TRACKED", m.MotionTracked, "stacked on the moving object"},
		{"METHOD", "METHOD", string(m.Method), "combination method"},
		{"SIGMA_CLIP", "SIGCLIP", m.SigmaClip, "sigma clipping applied"},
		{"CHUNKED_PROCESSING", "CHUNKED", m.Chunked, "combined in chunks"},
		{"TOTAL_CHUNKS", "NCHUNKS", m.TotalChunks, "number of chunks"},
		{"CHUNK_SIZE", "CHUNKSZ", m.ChunkSize, "images per chunk"},
		{"APPROXIMATE_COMBINATION", "APPROXCB", m.Approximate, "chunked result approximates one pass"},
		{"NCOMBINE", "NCOMBINE", m.Combined, "number of images combined"},
		{"SKIPPED_ITEMS", "NSKIPPED", m.Skipped, "images excluded"},
		{"FAILED_CHUNKS", "NFAILCHK", m.FailedChunks, "chunks that contributed nothing"},
		{"SOFT_FAILURES", "NSOFTERR", m.SoftFailures, "warnings raised"},
		{"INCOMPLETE", "INCOMPLT", m.Incomplete, "run cancelled before the end"},
		{"SATURATED", "SATURATE", m.Saturated, "values exceed 32-bit float range"},
		{"RUN_ID", "RUNID", m.RunID, "fingerprint of inputs and settings"},
	}
}

// Map gives the metadata by stable key.
func (m Metadata) Map() map[string]interface{} {
	out := map[string]interface{}{}
	for _, e := range m.Entries() {
		out[e.Key] = e.Value
	}
	return out
}

func (m Metadata) Cards() []frames.Card {
	cards := []frames.Card{{Name: "COMBINED", Value: true, Comment: "stacked image"}}
	for _, e := range m.Entries() {
		cards = append(cards, frames.Card{Name: e.Keyword, Value: e.Value, Comment: e.Comment})
	}
	return cards
}

var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/abworrall/motion-stack"))

// runID fingerprints a run from its inputs and settings, so the same
// run always gets the same ID.
func runID(refs []string, cfg Config) string {
	data := []byte(cfg.Object + "\x00" + cfg.ReferenceTime + "\x00" + string(cfg.method) + "\x00" + cfg.AsYaml())
	for _, ref := range refs {
		data = append(data, 0)
		data = append(data, ref...)
	}
	return uuid.NewSHA1(runNamespace, data).String()
}
