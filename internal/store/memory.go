package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/video-refinery/internal/types"
)

// Memory is an in-process JobStore and EventLog. A single mutex serializes
// writers, which satisfies the per-job transactional update contract.
type Memory struct {
	mu      sync.RWMutex
	jobs    map[string]*types.Job
	events  map[string][]types.Event
	vectors map[string][]types.Vector
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:    make(map[string]*types.Job),
		events:  make(map[string][]types.Event),
		vectors: make(map[string][]types.Vector),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new QUEUED job.
func (m *Memory) Create(_ context.Context, in NewJob) (*types.Job, error) {
	now := m.now()
	job := &types.Job{
		ID:             uuid.NewString(),
		SourceURL:      in.Source.URL,
		SourceKind:     in.Source.Kind,
		SourceID:       in.Source.ID,
		TaskType:       in.TaskType,
		Status:         types.StatusQueued,
		ExecutedAgents: []string{},
		Options:        in.Options,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.Clone(), nil
}

// Get returns a copy of the job.
func (m *Memory) Get(_ context.Context, id string) (*types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

// Update applies status and patch atomically.
func (m *Memory) Update(_ context.Context, id string, status types.Status, patch Patch) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}

	next := job.Clone()
	if err := Apply(next, status, patch, m.now()); err != nil {
		return nil, err
	}
	m.jobs[id] = next
	return next.Clone(), nil
}

// List returns jobs newest first.
func (m *Memory) List(_ context.Context, filter Filter) ([]*types.Job, error) {
	filter = filter.Normalize()

	m.mu.RLock()
	matched := make([]*types.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		matched = append(matched, job.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []*types.Job{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Stats counts jobs per status.
func (m *Memory) Stats(_ context.Context) (map[types.Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[types.Status]int, len(types.AllStatuses))
	for _, job := range m.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

// Append records an event, assigning its id and timestamp when missing.
func (m *Memory) Append(_ context.Context, event types.Event) (types.Event, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now()
	}

	m.mu.Lock()
	m.events[event.JobID] = append(m.events[event.JobID], event)
	m.mu.Unlock()

	return event, nil
}

// Events returns the job's events in append order.
func (m *Memory) Events(_ context.Context, jobID string) ([]types.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Event{}, m.events[jobID]...), nil
}

// SaveVectors replaces the job's stored vectors.
func (m *Memory) SaveVectors(_ context.Context, jobID string, vectors []types.Vector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[jobID] = append([]types.Vector{}, vectors...)
	return nil
}

// CountVectors reports how many vectors are stored for the job.
func (m *Memory) CountVectors(_ context.Context, jobID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors[jobID]), nil
}
