package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/jonathan/video-refinery/internal/action"
	"github.com/jonathan/video-refinery/internal/pipeline/steps"
	"github.com/jonathan/video-refinery/internal/store"
	"github.com/jonathan/video-refinery/internal/types"
)

type fakeMetadata struct {
	mu    sync.Mutex
	meta  *types.VideoMetadata
	err   error
	calls int
}

func (f *fakeMetadata) FetchMetadata(context.Context, types.SourceRef) (*types.VideoMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	m := *f.meta
	return &m, nil
}

type fakeTransfer struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (f *fakeTransfer) Transfer(_ context.Context, _ types.SourceRef, jobID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "file:///data/raw/" + jobID + ".mp4", nil
}

type fakeSegmenter struct {
	segments []types.Segment
	err      error
}

func (f *fakeSegmenter) Segment(context.Context, types.AnalysisInput) ([]types.Segment, error) {
	return f.segments, f.err
}

type fakeAgents struct {
	mu     sync.Mutex
	ran    []string
	inputs []types.AnalysisInput
	failOn string
	before func(agent string)
}

func (f *fakeAgents) RunAgent(_ context.Context, agent steps.AgentConfig, in types.AnalysisInput) (types.AgentOutput, error) {
	if f.before != nil {
		f.before(agent.Name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, agent.Name)
	f.inputs = append(f.inputs, in)
	if agent.Name == f.failOn {
		return types.AgentOutput{}, &types.AnalysisError{Reason: types.ReasonContentPolicy, Err: errors.New("blocked")}
	}
	return types.AgentOutput{Agent: agent.Name, Notes: agent.Name + " notes"}, nil
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  int
	inputs []types.AnalysisInput
	result *types.AnalysisResult
	err    error
	block  bool
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, in types.AnalysisInput) (*types.AnalysisResult, error) {
	f.mu.Lock()
	f.calls++
	f.inputs = append(f.inputs, in)
	block, err := f.block, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if f.result != nil {
		return f.result.Clone(), nil
	}
	return &types.AnalysisResult{
		Summary: types.Summary{Title: in.Metadata.Title, Description: "desc"},
		GeneratedWorkflow: types.Workflow{
			Name:  in.Metadata.Title,
			Steps: []types.WorkflowStep{{StepNumber: 1, Action: "do it"}},
		},
		CodeArtifacts: []types.CodeArtifact{},
	}, nil
}

type fakeActioner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeActioner) Execute(_ context.Context, req action.Request) (*types.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.ActionResult{VectorCount: len(req.Result.GeneratedWorkflow.Steps) + 1}, nil
}

// recordingStore counts updates per target status.
type recordingStore struct {
	*store.Memory
	mu      sync.Mutex
	updates map[types.Status]int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Memory: store.NewMemory(), updates: make(map[types.Status]int)}
}

func (r *recordingStore) Update(ctx context.Context, id string, status types.Status, patch store.Patch) (*types.Job, error) {
	r.mu.Lock()
	r.updates[status]++
	r.mu.Unlock()
	return r.Memory.Update(ctx, id, status, patch)
}

func (r *recordingStore) count(status types.Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[status]
}

type failingEvents struct{}

func (failingEvents) Append(context.Context, types.Event) (types.Event, error) {
	return types.Event{}, &types.StorageError{Op: "append event", Err: errors.New("down")}
}

func (failingEvents) Events(context.Context, string) ([]types.Event, error) {
	return nil, errors.New("down")
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, job *types.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, job.ID)
	return nil
}
