package mstack

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoChunks  = errors.New("no chunk could be combined")
	ErrCancelled = errors.New("integration cancelled")
	ErrNoLoader  = errors.New("engine has no loader")
)

// ValidationError means the sequence can't be integrated at all.
type ValidationError struct {
	Eligible   int
	Exclusions []Exclusion
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sequence validation failed: %s (%d eligible, %d excluded)", e.Reason, e.Eligible, len(e.Exclusions))
}

// ResourceError means a single image, with the combiner's overhead,
// doesn't fit in the memory budget.
type ResourceError struct {
	Needed int64
	Limit  int64
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("memory limit %d bytes can't hold even one image (needs %d)", e.Limit, e.Needed)
}

// ChunkFailure records a chunk that contributed nothing to the result.
type ChunkFailure struct {
	Chunk int
	Err   error
}

func (cf ChunkFailure) String() string { return fmt.Sprintf("chunk %d: %v", cf.Chunk, cf.Err) }

// IntegrationError is returned when the run produced nothing usable.
type IntegrationError struct {
	Failed []ChunkFailure
	Err    error
}

func (e *IntegrationError) Error() string {
	strs := []string{}
	for _, cf := range e.Failed {
		strs = append(strs, cf.String())
	}
	if len(strs) == 0 {
		return fmt.Sprintf("integration failed: %v", e.Err)
	}
	return fmt.Sprintf("integration failed: %v [%s]", e.Err, strings.Join(strs, "; "))
}

func (e *IntegrationError) Unwrap() error { return e.Err }

type WarningKind string

const (
	WarnEphemeris WarningKind = "ephemeris"
	WarnLoad      WarningKind = "load"
	WarnFilter    WarningKind = "filter"
	WarnExpTime   WarningKind = "exptime"
	WarnTime      WarningKind = "time"
	WarnChunkSize WarningKind = "chunksize"
	WarnReference WarningKind = "reference"
	WarnScale     WarningKind = "scale"
)

// A Warning is a soft failure: the run carried on, but the caller should know.
type Warning struct {
	Ref     string // empty if it isn't about one item
	Kind    WarningKind
	Message string
}

func (w Warning) String() string {
	if w.Ref == "" {
		return fmt.Sprintf("[%s] %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", w.Kind, w.Ref, w.Message)
}

type ExclusionReason string

const (
	ExcludeUnreadable ExclusionReason = "unreadable"
	ExcludeDimensions ExclusionReason = "dimensions"
	ExcludeWCS        ExclusionReason = "wcs"
	ExcludeTime       ExclusionReason = "time"
	ExcludeLoad       ExclusionReason = "load"
)

// An Exclusion is an item that was left out of the stack.
type Exclusion struct {
	Ref    string
	Index  int
	Reason ExclusionReason
	Detail string
}

func (ex Exclusion) String() string {
	return fmt.Sprintf("%s excluded (%s): %s", ex.Ref, ex.Reason, ex.Detail)
}
