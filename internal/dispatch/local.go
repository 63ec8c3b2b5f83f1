package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonathan/video-refinery/internal/pipeline"
	"github.com/jonathan/video-refinery/internal/types"
)

// ErrQueueFull is returned by LocalBridge.Publish when the buffer is full.
var ErrQueueFull = errors.New("local queue is full")

// LocalConfig configures the in-process bridge.
type LocalConfig struct {
	Concurrency int
	Buffer      int
	MaxRetry    int
	// Backoff is the base redelivery delay, doubled per retry.
	Backoff time.Duration
}

type delivery struct {
	payload Payload
	retry   int
}

// LocalBridge is an in-process queue used for development and tests. It
// keeps the same at-least-once contract as the Redis bridge but loses
// queued work on restart.
type LocalBridge struct {
	cfg    LocalConfig
	worker *Worker
	logger *slog.Logger
	queue  chan delivery
	now    func() time.Time

	mu         sync.Mutex
	deadLetter []Payload
	wg         sync.WaitGroup
}

// NewLocalBridge creates a LocalBridge. Call Run to start consuming.
func NewLocalBridge(cfg LocalConfig, worker *Worker, logger *slog.Logger) *LocalBridge {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 100
	}
	if cfg.MaxRetry < 0 {
		cfg.MaxRetry = DefaultMaxRetry
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBridge{
		cfg:    cfg,
		worker: worker,
		logger: logger,
		queue:  make(chan delivery, cfg.Buffer),
		now:    time.Now,
	}
}

// Publish queues job without blocking.
func (b *LocalBridge) Publish(_ context.Context, job *types.Job) error {
	select {
	case b.queue <- delivery{payload: NewPayload(job, b.now())}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run consumes deliveries until ctx is cancelled, then waits for in-flight
// handlers and pending redeliveries to settle.
func (b *LocalBridge) Run(ctx context.Context) error {
	var workers sync.WaitGroup
	for i := 0; i < b.cfg.Concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d := <-b.queue:
					b.handle(ctx, d)
				}
			}
		}()
	}
	workers.Wait()
	b.wg.Wait()
	return nil
}

// DeadLetters returns the payloads that exhausted their retries.
func (b *LocalBridge) DeadLetters() []Payload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Payload(nil), b.deadLetter...)
}

func (b *LocalBridge) handle(ctx context.Context, d delivery) {
	d.payload.RetryCount = d.retry
	attempt := pipeline.Attempt{Retry: d.retry, MaxRetry: b.cfg.MaxRetry}
	err := b.worker.Handle(ctx, d.payload, attempt)
	if err == nil {
		return
	}

	logger := b.logger.With(slog.String("job_id", d.payload.JobID), slog.Int("retry", d.retry), slog.Any("error", err))
	if errors.Is(err, ErrPoison) || attempt.Final() {
		logger.Error("delivery dead-lettered")
		b.mu.Lock()
		b.deadLetter = append(b.deadLetter, d.payload)
		b.mu.Unlock()
		return
	}
	if ctx.Err() != nil {
		logger.Warn("shutting down, delivery dropped")
		return
	}

	delay := b.cfg.Backoff << d.retry
	logger.Warn("delivery will be retried", slog.Duration("delay", delay))
	next := delivery{payload: d.payload, retry: d.retry + 1}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			select {
			case b.queue <- next:
			case <-ctx.Done():
			}
		}
	}()
}
