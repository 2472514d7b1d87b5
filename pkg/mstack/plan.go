package mstack

import (
	"fmt"
	"math"
)

// A Plan is how the sequence gets split up.
type Plan struct {
	Chunks    []Chunk
	ChunkSize int
	Chunked   bool
	Warnings  []Warning
}

// PlanChunks splits items into consecutive chunks that fit the memory
// budget. Each resident image costs footprint*SafetyFactor bytes.
//
// Chunking happens when forced, when the sequence is longer than
// SinglePassMax, or when it doesn't fit the budget in one go. The chunk
// size is then ChunkSize (capped by the budget) or, if that's zero, as
// many images as the budget allows. Otherwise everything goes in a
// single chunk, through the same code path.
func PlanChunks(items []Item, footprint int64, cfg Config) (Plan, error) {
	n := len(items)
	plan := Plan{}
	if n == 0 {
		return plan, nil
	}

	perImage := float64(footprint) * cfg.SafetyFactor
	budgetSize := math.MaxInt32
	if cfg.MemoryLimit > 0 {
		if perImage > float64(cfg.MemoryLimit) {
			return plan, &ResourceError{Needed: int64(perImage), Limit: cfg.MemoryLimit}
		}
		if perImage > 0 {
			budgetSize = int(math.Min(float64(cfg.MemoryLimit)/perImage, math.MaxInt32))
		}
	}

	plan.Chunked = cfg.ForceChunked || (cfg.SinglePassMax > 0 && n > cfg.SinglePassMax) || n > budgetSize

	size := n
	if plan.Chunked {
		size = budgetSize
		if cfg.ChunkSize > 0 {
			size = cfg.ChunkSize
			if size > budgetSize {
				plan.Warnings = append(plan.Warnings, Warning{Kind: WarnChunkSize,
					Message: fmt.Sprintf("chunk size %d doesn't fit in %d bytes, using %d", cfg.ChunkSize, cfg.MemoryLimit, budgetSize)})
				size = budgetSize
			}
		}
		if size > n {
			size = n
		}
	}
	plan.ChunkSize = size

	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		plan.Chunks = append(plan.Chunks, Chunk{Index: len(plan.Chunks), Items: items[start:end]})
	}

	return plan, nil
}
