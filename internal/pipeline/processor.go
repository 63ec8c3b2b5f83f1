// Package pipeline drives jobs through the INGEST, SEGMENT, ENHANCE and ACTION
// stages, persisting every transition to the Job Store and Event Log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/video-refinery/internal/action"
	"github.com/jonathan/video-refinery/internal/ingestion"
	"github.com/jonathan/video-refinery/internal/pipeline/steps"
	"github.com/jonathan/video-refinery/internal/store"
	"github.com/jonathan/video-refinery/internal/types"
)

// Segmenter partitions a stored asset.
type Segmenter interface {
	Segment(ctx context.Context, in types.AnalysisInput) ([]types.Segment, error)
}

// AgentRunner executes one ENHANCE agent.
type AgentRunner interface {
	RunAgent(ctx context.Context, agent steps.AgentConfig, in types.AnalysisInput) (types.AgentOutput, error)
}

// Analyzer produces the structured analysis result.
type Analyzer interface {
	Analyze(ctx context.Context, in types.AnalysisInput) (*types.AnalysisResult, error)
}

// Actioner runs the ACTION stage.
type Actioner interface {
	Execute(ctx context.Context, req action.Request) (*types.ActionResult, error)
}

// Collaborators are the external services the stages call. Segmenter and
// Agents are optional: without them segmentation degrades to the whole asset
// and agents are recorded without notes.
type Collaborators struct {
	Metadata  ingestion.MetadataFetcher
	Transfer  ingestion.Transferer
	Segmenter Segmenter
	Agents    AgentRunner
	Analyzer  Analyzer
	Action    Actioner
}

// Timeouts bound each collaborator call.
type Timeouts struct {
	Metadata time.Duration
	Transfer time.Duration
	Segment  time.Duration
	Analysis time.Duration
	Action   time.Duration
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Metadata: 15 * time.Second,
		Transfer: 15 * time.Minute,
		Segment:  2 * time.Minute,
		Analysis: 5 * time.Minute,
		Action:   2 * time.Minute,
	}
}

// Attempt describes the queue delivery a Process call serves. A retryable
// stage failure on a non-final attempt leaves the job at its current stage
// and is returned so the queue redelivers.
type Attempt struct {
	Retry    int
	MaxRetry int
}

// Final reports whether no further delivery will follow.
func (a Attempt) Final() bool {
	return a.Retry >= a.MaxRetry
}

// Processor is the stage state machine.
type Processor struct {
	jobs     store.JobStore
	events   store.EventLog
	c        Collaborators
	limits   ingestion.Limits
	timeouts Timeouts
	logger   *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLimits sets the admissibility bounds.
func WithLimits(limits ingestion.Limits) Option {
	return func(p *Processor) { p.limits = limits }
}

// WithTimeouts sets the per-call timeouts. Zero fields keep their defaults.
func WithTimeouts(t Timeouts) Option {
	return func(p *Processor) {
		d := DefaultTimeouts()
		p.timeouts = Timeouts{
			Metadata: orDefault(t.Metadata, d.Metadata),
			Transfer: orDefault(t.Transfer, d.Transfer),
			Segment:  orDefault(t.Segment, d.Segment),
			Analysis: orDefault(t.Analysis, d.Analysis),
			Action:   orDefault(t.Action, d.Action),
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

func orDefault(v, d time.Duration) time.Duration {
	if v <= 0 {
		return d
	}
	return v
}

// NewProcessor validates the collaborators and creates a Processor.
func NewProcessor(jobs store.JobStore, events store.EventLog, c Collaborators, opts ...Option) (*Processor, error) {
	switch {
	case jobs == nil || events == nil:
		return nil, errors.New("pipeline requires a job store and an event log")
	case c.Metadata == nil || c.Transfer == nil:
		return nil, errors.New("pipeline requires metadata and transfer collaborators")
	case c.Analyzer == nil:
		return nil, errors.New("pipeline requires an analyzer")
	case c.Action == nil:
		return nil, errors.New("pipeline requires an action collaborator")
	}

	p := &Processor{
		jobs:     jobs,
		events:   events,
		c:        c,
		limits:   ingestion.DefaultLimits(),
		timeouts: DefaultTimeouts(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run carries the in-memory products of one Process call.
type run struct {
	notes  []types.AgentOutput
	result *types.AnalysisResult
}

// Process drives the job to a terminal state, treating this call as the
// final delivery.
func (p *Processor) Process(ctx context.Context, jobID string) (*types.Job, error) {
	return p.ProcessAttempt(ctx, jobID, Attempt{})
}

// ProcessAttempt drives the job from its current stage. Terminal jobs are
// returned unchanged. Stage failures are recorded on the job and not
// returned, except for retryable failures on a non-final attempt and faults
// that prevented recording the failure.
func (p *Processor) ProcessAttempt(ctx context.Context, jobID string, attempt Attempt) (*types.Job, error) {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		p.logger.Debug("job already terminal", slog.String("job_id", jobID), slog.String("status", string(job.Status)))
		return job, nil
	}

	r := &run{}
	for !job.Status.IsTerminal() {
		stage := job.Status
		start := time.Now()

		next, err := p.step(ctx, job, r)
		if err != nil {
			return p.handleStageError(ctx, job, stage, attempt, err)
		}
		p.logger.Info("stage complete",
			slog.String("job_id", jobID),
			slog.String("stage", string(stage)),
			slog.String("status", string(next.Status)),
			slog.Duration("elapsed", time.Since(start)))

		// Re-read so a concurrent cancellation stops the walk.
		job, err = p.jobs.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
	}
	return job, nil
}

func (p *Processor) step(ctx context.Context, job *types.Job, r *run) (*types.Job, error) {
	switch job.Status {
	case types.StatusQueued:
		return p.advance(ctx, job, types.StatusIngest, store.Patch{})
	case types.StatusIngest:
		return p.ingest(ctx, job)
	case types.StatusSegment:
		return p.segment(ctx, job)
	case types.StatusEnhance:
		return p.enhance(ctx, job, r)
	case types.StatusAction:
		return p.act(ctx, job, r)
	default:
		return nil, fmt.Errorf("unexpected status %s", job.Status)
	}
}

func (p *Processor) ingest(ctx context.Context, job *types.Job) (*types.Job, error) {
	ref := job.Ref()
	if ref.Kind == types.SourceYouTube && ref.ID == "" {
		return nil, &types.ValidationError{Field: "sourceUrl", Message: "could not extract a YouTube video id"}
	}

	if job.Metadata == nil {
		callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Metadata)
		meta, err := p.c.Metadata.FetchMetadata(callCtx, ref)
		cancel()
		if err != nil {
			return nil, err
		}
		if meta == nil {
			return nil, &types.ValidationError{Field: "sourceUrl", Message: "no metadata available for source", Err: types.ErrSourceNotFound}
		}
		job, err = p.jobs.Update(ctx, job.ID, types.StatusIngest, store.Patch{Metadata: meta, Title: meta.Title})
		if err != nil {
			return nil, err
		}
		p.emit(ctx, job.ID, types.EventIngestMetadata, "",
			fmt.Sprintf("title=%q duration=%ds captions=%t", meta.Title, meta.DurationSeconds, meta.HasCaptions))
	}

	if err := ingestion.CheckAdmissible(job.Metadata, p.limits, p.logger.With(slog.String("job_id", job.ID))); err != nil {
		return nil, err
	}

	uri := job.StorageURI
	if uri == "" {
		callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Transfer)
		var err error
		uri, err = p.c.Transfer.Transfer(callCtx, ref, job.ID)
		cancel()
		if err != nil {
			return nil, err
		}
		p.emit(ctx, job.ID, types.EventIngestStored, "", uri)
	}
	return p.advance(ctx, job, types.StatusSegment, store.Patch{StorageURI: uri})
}

func (p *Processor) segment(ctx context.Context, job *types.Job) (*types.Job, error) {
	segments := types.WholeAssetSegment(job.Metadata)
	if p.c.Segmenter != nil {
		callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Segment)
		found, err := p.c.Segmenter.Segment(callCtx, p.input(job, nil))
		cancel()
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			p.logger.Warn("segmentation failed, using whole asset",
				slog.String("job_id", job.ID),
				slog.String("error", types.Humanize(err)))
		case len(found) > 0:
			segments = found
		}
	}

	p.emit(ctx, job.ID, types.EventSegmentComplete, "", fmt.Sprintf("segments=%d", len(segments)))
	return p.advance(ctx, job, types.StatusEnhance, store.Patch{Segments: segments})
}

func (p *Processor) enhance(ctx context.Context, job *types.Job, r *run) (*types.Job, error) {
	for _, agentID := range steps.NextAgents(job.TaskType, job.ExecutedAgents) {
		agent, ok := steps.GetAgentConfig(agentID)
		if !ok {
			return nil, fmt.Errorf("agent %s is not registered", agentID)
		}

		var err error
		job, err = p.jobs.Update(ctx, job.ID, types.StatusEnhance, store.Patch{AppendAgents: []string{agentID}})
		if err != nil {
			return nil, err
		}
		p.emit(ctx, job.ID, types.EventAgentExecute, agentID, agent.FullName)

		if p.c.Agents == nil {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Analysis)
		out, err := p.c.Agents.RunAgent(callCtx, agent, p.input(job, r.notes))
		cancel()
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", agentID, err)
		}
		r.notes = append(r.notes, out)
	}

	p.checkChain(ctx, job)

	result, err := p.analyze(ctx, job, r)
	if err != nil {
		return nil, err
	}
	r.result = result

	p.emit(ctx, job.ID, types.EventEnhanceComplete, "",
		fmt.Sprintf("steps=%d artifacts=%d fallback=%t", len(result.GeneratedWorkflow.Steps), len(result.CodeArtifacts), result.Fallback))
	return p.advance(ctx, job, types.StatusAction, store.Patch{})
}

// checkChain reports a chain mismatch without failing the job.
func (p *Processor) checkChain(ctx context.Context, job *types.Job) {
	v := steps.ValidateExecution(job.TaskType, job.ExecutedAgents)
	if v.Valid {
		return
	}
	p.logger.Warn("agent chain mismatch",
		slog.String("job_id", job.ID),
		slog.String("task_type", string(job.TaskType)),
		slog.Any("expected", v.Chain),
		slog.Any("actual", v.Executed),
		slog.Int("index", v.Index),
		slog.String("error", v.Error))
	p.emit(ctx, job.ID, types.EventPipelineMismatch, v.Actual,
		fmt.Sprintf("%s (expected %v, got %v)", v.Error, v.Chain, v.Executed))
}

func (p *Processor) analyze(ctx context.Context, job *types.Job, r *run) (*types.AnalysisResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Analysis)
	defer cancel()
	result, err := p.c.Analyzer.Analyze(callCtx, p.input(job, r.notes))
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &types.AnalysisError{Reason: types.ReasonMalformed, Err: errors.New("analyzer returned no result")}
	}
	result.Backfill(job.Metadata)
	return result, nil
}

func (p *Processor) act(ctx context.Context, job *types.Job, r *run) (*types.Job, error) {
	result := r.result
	if result == nil {
		// Resumed at ACTION: the ENHANCE result was never persisted.
		p.logger.Info("re-running analysis for resumed job", slog.String("job_id", job.ID))
		var err error
		if result, err = p.analyze(ctx, job, r); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Action)
	out, err := p.c.Action.Execute(callCtx, action.Request{
		JobID:     job.ID,
		SourceURL: job.SourceURL,
		TaskType:  job.TaskType,
		Result:    result,
		Options:   job.Options,
	})
	cancel()
	if err != nil {
		return nil, err
	}
	result.Action = out
	p.emit(ctx, job.ID, types.EventActionComplete, "",
		fmt.Sprintf("vectors=%d externalRefs=%d", out.VectorCount, len(out.ExternalRefs)))

	job, err = p.advance(ctx, job, types.StatusCompleted, store.Patch{Result: result, Title: result.Summary.Title})
	if err != nil {
		return nil, err
	}
	p.emit(ctx, job.ID, types.EventJobCompleted, job.LastAgent(), job.Title)
	return job, nil
}

// advance persists a stage change and records it.
func (p *Processor) advance(ctx context.Context, job *types.Job, to types.Status, patch store.Patch) (*types.Job, error) {
	from := job.Status
	updated, err := p.jobs.Update(ctx, job.ID, to, patch)
	if err != nil {
		return nil, err
	}
	if from != to {
		p.emit(ctx, job.ID, types.EventStatusChange, "", fmt.Sprintf("%s -> %s", from, to))
	}
	return updated, nil
}

// handleStageError records a stage failure on the job, or leaves the job for
// redelivery when the failure is retryable and the queue has attempts left.
func (p *Processor) handleStageError(ctx context.Context, job *types.Job, stage types.Status, attempt Attempt, stageErr error) (*types.Job, error) {
	logger := p.logger.With(slog.String("job_id", job.ID), slog.String("stage", string(stage)))

	if errors.Is(stageErr, store.ErrTerminal) || errors.Is(stageErr, store.ErrInvalidTransition) {
		// Cancelled or advanced by someone else while the stage ran.
		logger.Warn("job changed during stage", slog.String("error", stageErr.Error()))
		return p.jobs.Get(ctx, job.ID)
	}
	if ctx.Err() != nil {
		logger.Warn("processing interrupted", slog.String("error", stageErr.Error()))
		return nil, fmt.Errorf("processing of job %s interrupted: %w", job.ID, ctx.Err())
	}
	if types.Retryable(stageErr) && !attempt.Final() {
		logger.Warn("stage failed, leaving job for redelivery",
			slog.String("kind", types.Kind(stageErr)),
			slog.Int("retry", attempt.Retry),
			slog.Int("max_retry", attempt.MaxRetry),
			slog.String("error", stageErr.Error()))
		p.emit(ctx, job.ID, types.EventStageRetry, "",
			fmt.Sprintf("%s attempt %d/%d: %s", stage, attempt.Retry+1, attempt.MaxRetry+1, types.Humanize(stageErr)))
		return nil, fmt.Errorf("stage %s of job %s: %w", stage, job.ID, stageErr)
	}

	// Re-read for the agent that was executing when the stage failed.
	if current, err := p.jobs.Get(ctx, job.ID); err == nil {
		job = current
	}
	msg := types.Humanize(stageErr)
	logger.Error("stage failed",
		slog.String("kind", types.Kind(stageErr)),
		slog.String("last_agent", job.LastAgent()),
		slog.String("error", stageErr.Error()))

	failed, err := p.jobs.Update(ctx, job.ID, types.StatusFailed, store.Patch{Error: msg})
	if err != nil {
		if errors.Is(err, store.ErrTerminal) {
			return p.jobs.Get(ctx, job.ID)
		}
		return nil, fmt.Errorf("failed to record failure of job %s (%v): %w", job.ID, stageErr, err)
	}
	p.emit(ctx, job.ID, types.EventStatusChange, "", fmt.Sprintf("%s -> %s", stage, types.StatusFailed))
	p.emit(ctx, job.ID, types.EventJobFailed, failed.LastAgent(), fmt.Sprintf("[%s] %s", types.Kind(stageErr), msg))
	return failed, nil
}

// input builds the collaborator view of job.
func (p *Processor) input(job *types.Job, notes []types.AgentOutput) types.AnalysisInput {
	return types.AnalysisInput{
		JobID:      job.ID,
		TaskType:   job.TaskType,
		Metadata:   job.Metadata,
		StorageURI: job.StorageURI,
		Segments:   job.Segments,
		AgentNotes: append([]types.AgentOutput{}, notes...),
	}
}

// emit appends an audit event. Event Log faults are logged and never change
// the outcome of a stage.
func (p *Processor) emit(ctx context.Context, jobID string, eventType types.EventType, agent, details string) {
	if _, err := p.events.Append(ctx, types.Event{
		JobID:   jobID,
		Type:    eventType,
		Agent:   agent,
		Details: details,
	}); err != nil {
		p.logger.Error("failed to append event",
			slog.String("job_id", jobID),
			slog.String("event_type", string(eventType)),
			slog.Any("error", err))
	}
}
