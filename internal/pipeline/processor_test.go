package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-refinery/internal/store"
	"github.com/jonathan/video-refinery/internal/types"
)

type harness struct {
	store     *recordingStore
	metadata  *fakeMetadata
	transfer  *fakeTransfer
	segmenter *fakeSegmenter
	agents    *fakeAgents
	analyzer  *fakeAnalyzer
	action    *fakeActioner
	opts      []Option
}

func newHarness() *harness {
	return &harness{
		store:     newRecordingStore(),
		metadata:  &fakeMetadata{meta: &types.VideoMetadata{Title: "Kubernetes tutorial", DurationSeconds: 600}},
		transfer:  &fakeTransfer{},
		segmenter: &fakeSegmenter{segments: []types.Segment{{Index: 0, EndSeconds: 300}, {Index: 1, StartSeconds: 300, EndSeconds: 600}}},
		agents:    &fakeAgents{},
		analyzer:  &fakeAnalyzer{},
		action:    &fakeActioner{},
	}
}

func (h *harness) processor(t *testing.T) *Processor {
	t.Helper()
	p, err := NewProcessor(h.store, h.store, Collaborators{
		Metadata:  h.metadata,
		Transfer:  h.transfer,
		Segmenter: h.segmenter,
		Agents:    h.agents,
		Analyzer:  h.analyzer,
		Action:    h.action,
	}, h.opts...)
	require.NoError(t, err)
	return p
}

func (h *harness) create(t *testing.T, taskType types.TaskType) *types.Job {
	t.Helper()
	ref, err := types.ResolveSource("https://youtube.com/watch?v=abc12345678")
	require.NoError(t, err)
	job, err := h.store.Create(context.Background(), store.NewJob{Source: ref, TaskType: taskType})
	require.NoError(t, err)
	return job
}

func (h *harness) eventTypes(t *testing.T, jobID string) []types.EventType {
	t.Helper()
	events, err := h.store.Events(context.Background(), jobID)
	require.NoError(t, err)
	out := make([]types.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func countEvents(events []types.EventType, want types.EventType) int {
	n := 0
	for _, e := range events {
		if e == want {
			n++
		}
	}
	return n
}

func TestProcess_FullAnalysisCompletes(t *testing.T) {
	h := newHarness()
	job := h.create(t, types.TaskFullAnalysis)

	got, err := h.processor(t).Process(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, []string{"VTTA", "CSDAA", "OFSA"}, got.ExecutedAgents)
	require.NotNil(t, got.Result)
	assert.NotEmpty(t, got.Result.Summary.Title)
	assert.Equal(t, "Kubernetes tutorial", got.Title)
	assert.Empty(t, got.Error)
	assert.Equal(t, "file:///data/raw/"+job.ID+".mp4", got.StorageURI)
	assert.Len(t, got.Segments, 2)
	require.NotNil(t, got.Result.Action)
	assert.Equal(t, 2, got.Result.Action.VectorCount)

	assert.Equal(t, []string{"VTTA", "CSDAA", "OFSA"}, h.agents.ran)
	assert.Empty(t, h.agents.inputs[0].AgentNotes)
	assert.Len(t, h.agents.inputs[2].AgentNotes, 2, "later agents see earlier notes")
	require.Len(t, h.analyzer.inputs, 1)
	assert.Len(t, h.analyzer.inputs[0].AgentNotes, 3)

	events := h.eventTypes(t, job.ID)
	assert.Equal(t, 3, countEvents(events, types.EventAgentExecute))
	assert.Equal(t, 5, countEvents(events, types.EventStatusChange))
	assert.Equal(t, 1, countEvents(events, types.EventJobCompleted))
	assert.Zero(t, countEvents(events, types.EventPipelineMismatch))
	assert.Equal(t, types.EventJobCompleted, events[len(events)-1])
}

func TestProcess_RoutesPerTaskType(t *testing.T) {
	tests := []struct {
		taskType types.TaskType
		want     []string
	}{
		{types.TaskTranscription, []string{"VTTA"}},
		{types.TaskCodeExtraction, []string{"VTTA", "CSDAA"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.taskType), func(t *testing.T) {
			h := newHarness()
			job := h.create(t, tt.taskType)
			got, err := h.processor(t).Process(context.Background(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, types.StatusCompleted, got.Status)
			assert.Equal(t, tt.want, got.ExecutedAgents)
		})
	}
}

func TestProcess_StatusChangesAreMonotonic(t *testing.T) {
	h := newHarness()
	job := h.create(t, types.TaskFullAnalysis)
	_, err := h.processor(t).Process(context.Background(), job.ID)
	require.NoError(t, err)

	events, err := h.store.Events(context.Background(), job.ID)
	require.NoError(t, err)

	var transitions []string
	for _, e := range events {
		if e.Type == types.EventStatusChange {
			transitions = append(transitions, e.Details)
		}
	}
	assert.Equal(t, []string{
		"QUEUED -> INGEST",
		"INGEST -> SEGMENT",
		"SEGMENT -> ENHANCE",
		"ENHANCE -> ACTION",
		"ACTION -> COMPLETED",
	}, transitions)

	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp))
	}
	assert.False(t, events[0].Timestamp.Before(job.UpdatedAt))
}

func TestProcess_TooShortFailsBeforeTransfer(t *testing.T) {
	h := newHarness()
	h.metadata.meta.DurationSeconds = 10
	job := h.create(t, types.TaskFullAnalysis)

	got, err := h.processor(t).Process(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "too short")
	assert.Empty(t, got.ExecutedAgents)
	assert.Nil(t, got.Result)
	assert.Zero(t, h.transfer.calls)

	events := h.eventTypes(t, job.ID)
	assert.Equal(t, types.EventJobFailed, events[len(events)-1])
}

func TestProcess_TooLongFails(t *testing.T) {
	h := newHarness()
	h.metadata.meta.DurationSeconds = 4 * 3600
	job := h.create(t, types.TaskTranscription)

	got, err := h.processor(t).Process(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, "Video too long (> 3 hours)", got.Error)
	assert.Zero(t, h.transfer.calls)
}

func TestProcess_MetadataNotFound(t *testing.T) {
	h := newHarness()
	h.metadata.err = &types.ValidationError{Field: "sourceId", Message: "Video not found: abc12345678", Err: types.ErrSourceNotFound}
	job := h.create(t, types.TaskFullAnalysis)

	got, err := h.processor(t).ProcessAttempt(context.Background(), job.ID, Attempt{Retry: 0, MaxRetry: 3})
	require.NoError(t, err, "validation failures are never retried")
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, "Video not found: abc12345678", got.Error)
}

func TestProcess_AnalysisFailureRecordedOnce(t *testing.T) {
	h := newHarness()
	h.analyzer.err = &types.AnalysisError{Reason: types.ReasonProvider, Err: errors.New("boom")}
	job := h.create(t, types.TaskFullAnalysis)

	got, err := h.processor(t).Process(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, got.Status)
	assert.NotEmpty(t, got.Error)
	assert.Nil(t, got.Result)
	assert.Equal(t, 1, h.store.count(types.StatusFailed))
	assert.Zero(t, h.store.count(types.StatusCompleted))
	assert.Zero(t, h.action.calls)

	events, _ := h.store.Events(context.Background(), job.ID)
	last := events[len(events)-1]
	assert.Equal(t, types.EventJobFailed, last.Type)
	assert.Equal(t, "OFSA", last.Agent)
	assert.Contains(t, last.Details, "[analysis]")
}

func TestProcess_AgentFailureTagsAgent(t *testing.T) {
	h := newHarness()
	h.agents.failOn = "CSDAA"
	job := h.create(t, types.TaskFullAnalysis)

	got, err := h.processor(t).ProcessAttempt(context.Background(), job.ID, Attempt{MaxRetry: 3})
	require.NoError(t, err, "content policy failures are not retried")

	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, "analysis blocked by provider content policy", got.Error)
	assert.Equal(t, []string{"VTTA", "CSDAA"}, got.ExecutedAgents)

	events, _ := h.store.Events(context.Background(), job.ID)
	assert.Equal(t, "CSDAA", events[len(events)-1].Agent)
}

func TestProcess_TerminalIsNoop(t *testing.T) {
	h := newHarness()
	job := h.create(t, types.TaskFullAnalysis)
	p := h.processor(t)

	first, err := p.Process(context.Background(), job.ID)
	require.NoError(t, err)
	eventsBefore := h.eventTypes(t, job.ID)
	updatesBefore := h.store.count(types.StatusEnhance)

	second, err := p.Process(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, eventsBefore, h.eventTypes(t, job.ID))
	assert.Equal(t, updatesBefore, h.store.count(types.StatusEnhance))
	assert.Equal(t, 1, h.analyzer.calls)
}

func TestProcess_FailedIsNoop(t *testing.T) {
	h := newHarness()
	h.metadata.meta.DurationSeconds = 5
	job := h.create(t, types.TaskFullAnalysis)
	p := h.processor(t)

	first, err := p.Process(context.Background(), job.ID)
	require.NoError(t, err)
	second, err := p.Process(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.metadata.calls)
}

func TestProcess_UnknownJob(t *testing.T) {
	h := newHarness()
	_, err := h.processor(t).Process(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcess_RetryableFailureLeavesJobForRedelivery(t *testing.T) {
	h := newHarness()
	h.transfer.errs = []error{&types.TransferError{Op: "download", Err: errors.New("connection reset")}}
	job := h.create(t, types.TaskFullAnalysis)
	p := h.processor(t)

	_, err := p.ProcessAttempt(context.Background(), job.ID, Attempt{Retry: 0, MaxRetry: 3})
	require.Error(t, err)
	assert.Equal(t, "transfer", types.Kind(err))

	mid, _ := h.store.Get(context.Background(), job.ID)
	assert.Equal(t, types.StatusIngest, mid.Status)
	assert.NotNil(t, mid.Metadata, "metadata survives for the next delivery")
	assert.Empty(t, mid.Error)
	assert.Contains(t, h.eventTypes(t, job.ID), types.EventStageRetry)

	got, err := p.ProcessAttempt(context.Background(), job.ID, Attempt{Retry: 1, MaxRetry: 3})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, 1, h.metadata.calls, "resumed from INGEST without refetching metadata")
	assert.Equal(t, 2, h.transfer.calls)
}

func TestProcess_RetryableFailureOnFinalAttemptFails(t *testing.T) {
	h := newHarness()
	h.transfer.errs = []error{&types.TransferError{Op: "download", Err: errors.New("connection reset")}}
	job := h.create(t, types.TaskFullAnalysis)

	got, err := h.processor(t).ProcessAttempt(context.Background(), job.ID, Attempt{Retry: 3, MaxRetry: 3})
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "connection reset")
}

func TestProcess_TimeoutFailsJob(t *testing.T) {
	h := newHarness()
	h.analyzer.block = true
	h.opts = []Option{WithTimeouts(Timeouts{Analysis: 20 * time.Millisecond})}
	job := h.create(t, types.TaskTranscription)

	got, err := h.processor(t).Process(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, "operation timed out", got.Error)
}

func TestProcess_ShutdownDoesNotFailJob(t *testing.T) {
	h := newHarness()
	h.analyzer.block = true
	job := h.create(t, types.TaskTranscription)

	ctx, cancel := context.WithCancel(context.Background())
	h.agents.before = func(string) { cancel() }

	_, err := h.processor(t).Process(ctx, job.ID)
	require.Error(t, err)

	got, _ := h.store.Get(context.Background(), job.ID)
	assert.False(t, got.Status.IsTerminal())
}

func TestProcess_CancelledMidFlight(t *testing.T) {
	h := newHarness()
	job := h.create(t, types.TaskFullAnalysis)
	svc := NewService(h.store, h.store, &fakePublisher{}, nil)
	h.agents.before = func(agent string) {
		if agent == "CSDAA" {
			_, err := svc.Cancel(context.Background(), job.ID)
			require.NoError(t, err)
		}
	}

	got, err := h.processor(t).Process(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, CancelledMessage, got.Error)
	assert.Nil(t, got.Result)
	assert.Equal(t, []string{"VTTA", "CSDAA"}, got.ExecutedAgents)
	assert.Zero(t, h.analyzer.calls)
	assert.Equal(t, []string{"VTTA", "CSDAA"}, h.agents.ran, "in-flight call finishes, no further agents start")
}

func TestProcess_SegmentationDegrades(t *testing.T) {
	h := newHarness()
	h.segmenter.err = &types.AnalysisError{Reason: types.ReasonProvider, Err: errors.New("unavailable")}
	job := h.create(t, types.TaskTranscription)

	got, err := h.processor(t).Process(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, types.WholeAssetSegment(got.Metadata), got.Segments)
}

func TestProcess_OptionalCollaborators(t *testing.T) {
	h := newHarness()
	p, err := NewProcessor(h.store, h.store, Collaborators{
		Metadata: h.metadata,
		Transfer: h.transfer,
		Analyzer: h.analyzer,
		Action:   h.action,
	})
	require.NoError(t, err)
	job := h.create(t, types.TaskCodeExtraction)

	got, err := p.Process(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, []string{"VTTA", "CSDAA"}, got.ExecutedAgents)
	assert.Len(t, got.Segments, 1)
}

func TestProcess_BackfillsResult(t *testing.T) {
	h := newHarness()
	h.analyzer.result = &types.AnalysisResult{Summary: types.Summary{Description: "x"}}
	job := h.create(t, types.TaskTranscription)

	got, err := h.processor(t).Process(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kubernetes tutorial", got.Result.Summary.Title)
	assert.Len(t, got.Result.GeneratedWorkflow.Steps, 1)
}

func TestProcess_ResumeAtAction(t *testing.T) {
	h := newHarness()
	job := h.create(t, types.TaskTranscription)
	ctx := context.Background()

	meta := &types.VideoMetadata{Title: "Resumed", DurationSeconds: 120}
	_, err := h.store.Update(ctx, job.ID, types.StatusIngest, store.Patch{Metadata: meta})
	require.NoError(t, err)
	_, err = h.store.Update(ctx, job.ID, types.StatusEnhance, store.Patch{StorageURI: "file:///x.mp4", AppendAgents: []string{"VTTA"}})
	require.NoError(t, err)
	_, err = h.store.Update(ctx, job.ID, types.StatusAction, store.Patch{})
	require.NoError(t, err)

	got, err := h.processor(t).Process(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, "Resumed", got.Result.Summary.Title)
	assert.Equal(t, 1, h.analyzer.calls)
	assert.Empty(t, h.agents.ran)
	assert.Zero(t, h.metadata.calls)
	assert.Zero(t, h.transfer.calls)
}

func TestProcess_ActionFailureFailsJob(t *testing.T) {
	h := newHarness()
	h.action.err = &types.StorageError{Op: "insert vectors", Err: errors.New("disk full")}
	job := h.create(t, types.TaskTranscription)

	got, err := h.processor(t).Process(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Nil(t, got.Result)
}

func TestProcess_EventLogFailureDoesNotFailJob(t *testing.T) {
	h := newHarness()
	p, err := NewProcessor(h.store, failingEvents{}, Collaborators{
		Metadata: h.metadata,
		Transfer: h.transfer,
		Analyzer: h.analyzer,
		Action:   h.action,
	})
	require.NoError(t, err)
	job := h.create(t, types.TaskTranscription)

	got, err := p.Process(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
}

func TestCheckChain_MismatchIsSoft(t *testing.T) {
	h := newHarness()
	p := h.processor(t)
	job := h.create(t, types.TaskFullAnalysis)
	job.ExecutedAgents = []string{"VTTA"}

	p.checkChain(context.Background(), job)

	events, err := h.store.Events(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventPipelineMismatch, events[0].Type)
	assert.Contains(t, events[0].Details, "Expected 3 agents, got 1")

	current, _ := h.store.Get(context.Background(), job.ID)
	assert.Equal(t, types.StatusQueued, current.Status)
}

func TestNewProcessor_RequiresCollaborators(t *testing.T) {
	m := store.NewMemory()
	_, err := NewProcessor(m, m, Collaborators{})
	assert.Error(t, err)
	_, err = NewProcessor(nil, m, Collaborators{})
	assert.Error(t, err)
}

func TestStats_SixOfTenFailedIsDegraded(t *testing.T) {
	h := newHarness()
	p := h.processor(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		job := h.create(t, types.TaskTranscription)
		if i < 6 {
			h.metadata.meta.DurationSeconds = 5
		} else {
			h.metadata.meta.DurationSeconds = 600
		}
		got, err := p.Process(ctx, job.ID)
		require.NoError(t, err, fmt.Sprintf("job %d", i))
		require.True(t, got.Status.IsTerminal())
	}

	counts, err := h.store.Stats(ctx)
	require.NoError(t, err)
	stats := store.Summarize(counts)
	assert.Equal(t, 6, stats.Counts[types.StatusFailed])
	assert.Equal(t, 4, stats.Counts[types.StatusCompleted])
	assert.Equal(t, store.HealthDegraded, stats.Health)
}
