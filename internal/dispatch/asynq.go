package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jonathan/video-refinery/internal/pipeline"
	"github.com/jonathan/video-refinery/internal/types"
)

// AsynqConfig configures the Redis-backed bridge.
type AsynqConfig struct {
	RedisURL    string
	Queue       string
	MaxRetry    int
	Concurrency int
	// Timeout bounds one delivery; asynq cancels the handler context after it.
	Timeout time.Duration
}

// AsynqBridge publishes jobs as asynq tasks and consumes them with a Worker.
// Tasks that exhaust MaxRetry are archived, which is the dead-letter path.
type AsynqBridge struct {
	cfg    AsynqConfig
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	worker *Worker
	logger *slog.Logger
	now    func() time.Time
}

// NewAsynqBridge connects to Redis. worker may be nil for publish-only use.
func NewAsynqBridge(cfg AsynqConfig, worker *Worker, logger *slog.Logger) (*AsynqBridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.Queue == "" {
		cfg.Queue = "refinery"
	}
	if cfg.MaxRetry < 0 {
		cfg.MaxRetry = DefaultMaxRetry
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Hour
	}

	b := &AsynqBridge{
		cfg:    cfg,
		client: asynq.NewClient(opt),
		worker: worker,
		logger: logger,
		now:    time.Now,
	}
	if worker != nil {
		b.server = asynq.NewServer(opt, asynq.Config{
			Concurrency:    cfg.Concurrency,
			Queues:         map[string]int{cfg.Queue: 1},
			RetryDelayFunc: retryDelay,
			ErrorHandler:   asynq.ErrorHandlerFunc(b.reportError),
			Logger:         slogAdapter{logger: logger.With(slog.String("component", "asynq"))},
		})
		b.mux = asynq.NewServeMux()
		b.mux.HandleFunc(TaskTypeProcess, b.handleTask)
	}
	return b, nil
}

// Publish enqueues job. The task id is the job id so a job is queued at
// most once at a time.
func (b *AsynqBridge) Publish(ctx context.Context, job *types.Job) error {
	body, err := NewPayload(job, b.now()).Encode()
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeProcess, body)
	info, err := b.client.EnqueueContext(ctx, task,
		asynq.Queue(b.cfg.Queue),
		asynq.MaxRetry(b.cfg.MaxRetry),
		asynq.Timeout(b.cfg.Timeout),
		asynq.TaskID(job.ID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		b.logger.Info("job already queued", slog.String("job_id", job.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	b.logger.Debug("job enqueued", slog.String("job_id", job.ID), slog.String("task_id", info.ID), slog.String("queue", info.Queue))
	return nil
}

// Run consumes tasks until ctx is cancelled.
func (b *AsynqBridge) Run(ctx context.Context) error {
	if b.server == nil {
		return errors.New("bridge was created without a worker")
	}
	if err := b.server.Start(b.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	<-ctx.Done()
	b.server.Shutdown()
	return nil
}

// Close releases the Redis client.
func (b *AsynqBridge) Close() error {
	return b.client.Close()
}

func (b *AsynqBridge) handleTask(ctx context.Context, task *asynq.Task) error {
	payload, err := DecodePayload(task.Payload())
	if err != nil {
		b.logger.Error("dropping undecodable task", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	retry, _ := asynq.GetRetryCount(ctx)
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		maxRetry = b.cfg.MaxRetry
	}
	payload.RetryCount = retry

	err = b.worker.Handle(ctx, payload, pipeline.Attempt{Retry: retry, MaxRetry: maxRetry})
	if errors.Is(err, ErrPoison) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (b *AsynqBridge) reportError(ctx context.Context, task *asynq.Task, err error) {
	retry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	attrs := []any{
		slog.String("task_type", task.Type()),
		slog.Int("retry", retry),
		slog.Int("max_retry", maxRetry),
		slog.Any("error", err),
	}
	if payload, perr := DecodePayload(task.Payload()); perr == nil {
		attrs = append(attrs, slog.String("job_id", payload.JobID))
	}
	if retry >= maxRetry || errors.Is(err, asynq.SkipRetry) {
		b.logger.Error("task dead-lettered", attrs...)
		return
	}
	b.logger.Warn("task will be retried", attrs...)
}

// retryDelay backs off from 10s to at most 10m.
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	d := 10 * time.Second << n
	if d <= 0 || d > 10*time.Minute {
		return 10 * time.Minute
	}
	return d
}

// slogAdapter routes asynq's internal logging through slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debug(args ...interface{}) { a.logger.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...interface{})  { a.logger.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...interface{})  { a.logger.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...interface{}) { a.logger.Error(fmt.Sprint(args...)) }
func (a slogAdapter) Fatal(args ...interface{}) { a.logger.Error(fmt.Sprint(args...)) }
