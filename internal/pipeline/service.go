package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonathan/video-refinery/internal/store"
	"github.com/jonathan/video-refinery/internal/types"
)

// CancelledMessage is the error recorded on jobs cancelled by request.
const CancelledMessage = "cancelled by user"

// ErrEnqueue is returned by Submit when the job was created but could not be
// handed to the queue. The job is left FAILED.
var ErrEnqueue = errors.New("failed to enqueue job")

// Publisher hands a created job to the async dispatch bridge.
type Publisher interface {
	Publish(ctx context.Context, job *types.Job) error
}

// Service is the submission side of the pipeline: it creates jobs,
// publishes them for processing and cancels them on request.
type Service struct {
	jobs      store.JobStore
	events    store.EventLog
	publisher Publisher
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(jobs store.JobStore, events store.EventLog, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, events: events, publisher: publisher, logger: logger}
}

// Submit validates req, durably creates a QUEUED job and publishes it. When
// publishing fails the job is failed so it does not linger in QUEUED.
func (s *Service) Submit(ctx context.Context, req types.SubmitJobRequest) (*types.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ref, err := types.ResolveSource(req.SourceURL)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.Create(ctx, store.NewJob{Source: ref, TaskType: req.Normalized(), Options: req.Options()})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, job.ID, types.EventJobCreated, "", fmt.Sprintf("%s %s (%s)", job.TaskType, job.SourceURL, job.SourceKind))

	if err := s.publisher.Publish(ctx, job); err != nil {
		s.logger.Error("failed to publish job", slog.String("job_id", job.ID), slog.Any("error", err))
		if _, uerr := s.jobs.Update(ctx, job.ID, types.StatusFailed, store.Patch{Error: ErrEnqueue.Error()}); uerr == nil {
			s.emit(ctx, job.ID, types.EventJobFailed, "", ErrEnqueue.Error())
		}
		return nil, fmt.Errorf("%w %s: %v", ErrEnqueue, job.ID, err)
	}

	s.logger.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("task_type", string(job.TaskType)),
		slog.String("source_kind", string(job.SourceKind)))
	return job, nil
}

// Cancel forces a non-terminal job to FAILED. An in-flight collaborator call
// is not interrupted; the processor stops at its next store update.
// Cancelling a terminal job returns store.ErrTerminal.
func (s *Service) Cancel(ctx context.Context, jobID string) (*types.Job, error) {
	job, err := s.jobs.Update(ctx, jobID, types.StatusFailed, store.Patch{Error: CancelledMessage})
	if err != nil {
		if errors.Is(err, store.ErrTerminal) {
			current, gerr := s.jobs.Get(ctx, jobID)
			if gerr != nil {
				return nil, gerr
			}
			return current, err
		}
		return nil, err
	}
	s.emit(ctx, jobID, types.EventJobCancelled, "", CancelledMessage)
	s.emit(ctx, jobID, types.EventJobFailed, job.LastAgent(), CancelledMessage)
	s.logger.Info("job cancelled", slog.String("job_id", jobID))
	return job, nil
}

func (s *Service) emit(ctx context.Context, jobID string, eventType types.EventType, agent, details string) {
	if _, err := s.events.Append(ctx, types.Event{JobID: jobID, Type: eventType, Agent: agent, Details: details}); err != nil {
		s.logger.Error("failed to append event",
			slog.String("job_id", jobID),
			slog.String("event_type", string(eventType)),
			slog.Any("error", err))
	}
}
