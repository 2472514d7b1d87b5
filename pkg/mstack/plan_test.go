package mstack

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbered(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i].Index = i
	}
	return items
}

func chunkLens(p Plan) []int {
	lens := []int{}
	for _, c := range p.Chunks {
		lens = append(lens, len(c.Items))
	}
	return lens
}

func TestPlanChunksForced(t *testing.T) {
	cfg := NewConfig()
	cfg.ChunkSize = 10
	cfg.ForceChunked = true

	p, err := PlanChunks(numbered(25), 1000, cfg)
	require.NoError(t, err)
	assert.True(t, p.Chunked)
	assert.Equal(t, 10, p.ChunkSize)
	assert.Equal(t, []int{10, 10, 5}, chunkLens(p))

	// Consecutive and in order
	next := 0
	for i, c := range p.Chunks {
		assert.Equal(t, i, c.Index)
		for _, it := range c.Items {
			assert.Equal(t, next, it.Index)
			next++
		}
	}
}

func TestPlanChunksSinglePass(t *testing.T) {
	cfg := NewConfig()
	p, err := PlanChunks(numbered(5), 1000, cfg)
	require.NoError(t, err)
	assert.False(t, p.Chunked)
	assert.Equal(t, []int{5}, chunkLens(p))

	// Past the single pass limit
	p, err = PlanChunks(numbered(11), 1000, cfg)
	require.NoError(t, err)
	assert.True(t, p.Chunked)
	assert.Equal(t, []int{10, 1}, chunkLens(p))

	p, err = PlanChunks(nil, 1000, cfg)
	require.NoError(t, err)
	assert.Empty(t, p.Chunks)
}

func TestPlanChunksBudget(t *testing.T) {
	cfg := NewConfig()
	cfg.MemoryLimit = 10000
	cfg.SafetyFactor = 2
	cfg.SinglePassMax = 0
	cfg.ChunkSize = 0

	// 2000 bytes an image, so 5 fit
	p, err := PlanChunks(numbered(12), 1000, cfg)
	require.NoError(t, err)
	assert.True(t, p.Chunked)
	assert.Equal(t, []int{5, 5, 2}, chunkLens(p))
	assert.Empty(t, p.Warnings)

	p, err = PlanChunks(numbered(4), 1000, cfg)
	require.NoError(t, err)
	assert.False(t, p.Chunked)
	assert.Equal(t, []int{4}, chunkLens(p))

	cfg.ChunkSize = 8
	p, err = PlanChunks(numbered(12), 1000, cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, p.ChunkSize)
	require.Len(t, p.Warnings, 1)
	assert.Equal(t, WarnChunkSize, p.Warnings[0].Kind)
}

func TestPlanChunksTooBig(t *testing.T) {
	cfg := NewConfig()
	cfg.MemoryLimit = 1 * GB

	_, err := PlanChunks(numbered(3), 1*GB, cfg)
	var rerr *ResourceError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, int64(2*GB), rerr.Needed)
	assert.Equal(t, int64(GB), rerr.Limit)

	// No limit at all
	cfg.MemoryLimit = 0
	p, err := PlanChunks(numbered(3), 1*GB, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, chunkLens(p))
}
