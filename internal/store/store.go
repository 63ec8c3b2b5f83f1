// Package store defines the Job Store and Event Log contracts the pipeline
// relies on, the transition rules every implementation enforces, and an
// in-memory implementation used by tests and single-process runs.
package store

import (
	"context"
	"errors"

	"github.com/jonathan/video-refinery/internal/types"
)

var (
	// ErrNotFound is returned when a job id is unknown.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when a mutation targets a COMPLETED or FAILED job.
	ErrTerminal = errors.New("job is in a terminal state")
	// ErrInvalidTransition is returned for status regressions and field writes
	// that the target status does not permit.
	ErrInvalidTransition = errors.New("invalid job transition")
)

// NewJob is the input to Create. Derived fields are computed by the caller
// (ResolveSource) so every store assigns them identically.
type NewJob struct {
	Source   types.SourceRef
	TaskType types.TaskType
	Options  types.ActionOptions
}

// Patch lists the fields an Update may change alongside the status.
// Zero values leave the stored field untouched.
type Patch struct {
	AppendAgents []string
	Title        string
	Metadata     *types.VideoMetadata
	StorageURI   string
	Segments     []types.Segment
	Result       *types.AnalysisResult
	Error        string
}

// Filter narrows List results.
type Filter struct {
	Status types.Status
	Limit  int
	Offset int
}

// JobStore is durable CRUD over jobs with per-job strong consistency.
type JobStore interface {
	Create(ctx context.Context, in NewJob) (*types.Job, error)
	Get(ctx context.Context, id string) (*types.Job, error)
	Update(ctx context.Context, id string, status types.Status, patch Patch) (*types.Job, error)
	List(ctx context.Context, filter Filter) ([]*types.Job, error)
	Stats(ctx context.Context) (map[types.Status]int, error)
}

// EventLog is the append-only audit trail.
type EventLog interface {
	Append(ctx context.Context, event types.Event) (types.Event, error)
	Events(ctx context.Context, jobID string) ([]types.Event, error)
}

// DefaultListLimit and MaxListLimit bound List page sizes.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Normalize clamps the filter's paging values.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
