// Package dispatch decouples job submission from job processing. Publishers
// put a job reference on a queue; a Worker consumes deliveries, guards each
// job with a lease and hands it to the pipeline processor. Delivery is
// at-least-once.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/video-refinery/internal/pipeline"
	"github.com/jonathan/video-refinery/internal/store"
	"github.com/jonathan/video-refinery/internal/types"
)

// TaskTypeProcess is the queue task name for job processing.
const TaskTypeProcess = "refinery:process"

// DefaultMaxRetry bounds redeliveries before a message is dead-lettered.
const DefaultMaxRetry = 3

var (
	// ErrLeaseHeld is returned when another worker is processing the job.
	ErrLeaseHeld = errors.New("job is being processed by another worker")
	// ErrPoison marks deliveries that can never succeed.
	ErrPoison = errors.New("undeliverable message")
)

// Payload is the message body published for each job.
type Payload struct {
	JobID      string         `json:"jobId"`
	VideoURL   string         `json:"videoUrl"`
	TaskType   types.TaskType `json:"taskType"`
	Timestamp  time.Time      `json:"timestamp"`
	RetryCount int            `json:"retryCount"`
}

// NewPayload builds the message for job.
func NewPayload(job *types.Job, now time.Time) Payload {
	return Payload{
		JobID:     job.ID,
		VideoURL:  job.SourceURL,
		TaskType:  job.TaskType,
		Timestamp: now.UTC(),
	}
}

// Encode marshals the payload.
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload parses a message body. Malformed bodies wrap ErrPoison.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrPoison, err)
	}
	if p.JobID == "" {
		return Payload{}, fmt.Errorf("%w: missing jobId", ErrPoison)
	}
	return p, nil
}

// JobProcessor is the pipeline entrypoint a Worker drives.
type JobProcessor interface {
	ProcessAttempt(ctx context.Context, jobID string, attempt pipeline.Attempt) (*types.Job, error)
}

// Worker handles deliveries from any bridge.
type Worker struct {
	proc     JobProcessor
	locker   Locker
	leaseTTL time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. A nil locker falls back to an in-process one.
func NewWorker(proc JobProcessor, locker Locker, leaseTTL time.Duration, logger *slog.Logger) *Worker {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if leaseTTL <= 0 {
		leaseTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{proc: proc, locker: locker, leaseTTL: leaseTTL, logger: logger}
}

// Handle processes one delivery. A nil return acknowledges it; errors
// wrapping ErrPoison must not be retried; any other error requests
// redelivery.
func (w *Worker) Handle(ctx context.Context, p Payload, attempt pipeline.Attempt) error {
	logger := w.logger.With(slog.String("job_id", p.JobID), slog.Int("retry", attempt.Retry))

	lease, ok, err := w.locker.Acquire(ctx, leaseKey(p.JobID), w.leaseTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire lease for job %s: %w", p.JobID, err)
	}
	if !ok {
		if attempt.Final() {
			logger.Warn("duplicate delivery dropped, job still leased")
			return nil
		}
		return ErrLeaseHeld
	}
	defer func() {
		// Release on a fresh context so shutdown does not strand the lease.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			logger.Warn("failed to release lease", slog.Any("error", err))
		}
	}()

	start := time.Now()
	job, err := w.proc.ProcessAttempt(ctx, p.JobID, attempt)
	if errors.Is(err, store.ErrNotFound) {
		logger.Error("delivery for unknown job")
		return fmt.Errorf("%w: job %s not found", ErrPoison, p.JobID)
	}
	if err != nil {
		logger.Warn("processing incomplete, requesting redelivery", slog.Any("error", err))
		return err
	}
	logger.Info("delivery processed",
		slog.String("status", string(job.Status)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func leaseKey(jobID string) string {
	return "refinery:lease:" + jobID
}
