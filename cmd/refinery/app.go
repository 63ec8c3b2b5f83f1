package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/jonathan/video-refinery/internal/action"
	"github.com/jonathan/video-refinery/internal/analysis"
	"github.com/jonathan/video-refinery/internal/bus"
	"github.com/jonathan/video-refinery/internal/config"
	"github.com/jonathan/video-refinery/internal/db"
	"github.com/jonathan/video-refinery/internal/dispatch"
	"github.com/jonathan/video-refinery/internal/fetch"
	"github.com/jonathan/video-refinery/internal/ingestion"
	"github.com/jonathan/video-refinery/internal/llm"
	"github.com/jonathan/video-refinery/internal/pipeline"
	"github.com/jonathan/video-refinery/internal/store"
	"github.com/jonathan/video-refinery/internal/types"
)

// backend is what both the Postgres and the in-memory store provide.
type backend interface {
	store.JobStore
	store.EventLog
	action.VectorStore
}

// bridge publishes jobs and consumes them until its context ends.
type bridge interface {
	pipeline.Publisher
	Run(ctx context.Context) error
}

// app holds the process-wide wiring shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    backend
	events   store.EventLog
	follower bus.Follower
	redis    *redis.Client
	closers  []func()
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cfg.NewLogger(os.Stderr), nil
}

// newApp connects the store and the event bus.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, database.Close)
		a.store = database
	} else {
		logger.Warn("DATABASE_URL not set, using the in-memory store; jobs are lost on exit")
		a.store = store.NewMemory()
	}

	if cfg.NATSURL != "" {
		client, err := bus.Connect(cfg.NATSURL, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		a.events = bus.NewPublishingLog(a.store, client, logger)
		a.follower = client
	} else {
		hub := bus.NewHub()
		a.events = bus.NewPublishingLog(a.store, hub, logger)
		a.follower = hub
	}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opt)
		a.closers = append(a.closers, func() { _ = a.redis.Close() })
	}
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// newProcessor builds the stage collaborators and the processor.
func (a *app) newProcessor(ctx context.Context) (*pipeline.Processor, error) {
	cfg, logger := a.cfg, a.logger
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required to process jobs")
	}

	client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })

	var sink ingestion.Sink
	if cfg.GCSBucket != "" {
		gcs, err := ingestion.NewGCSSink(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = gcs.Close() })
		sink = gcs
	} else {
		local, err := ingestion.NewLocalSink(cfg.LocalStorageDir)
		if err != nil {
			return nil, err
		}
		sink = local
	}

	metadata := ingestion.NewMetadataRouter(ingestion.NewPageMetadata(fetch.DefaultOptions(), cfg.UseBrowser, logger))
	if cfg.YouTubeAPIKey != "" {
		yt, err := ingestion.NewYouTubeMetadata(ctx, cfg.YouTubeAPIKey, logger)
		if err != nil {
			return nil, err
		}
		metadata.Handle(types.SourceYouTube, yt)
	} else {
		logger.Warn("YOUTUBE_API_KEY not set, YouTube metadata comes from the watch page")
	}

	ytdlp := ingestion.NewYtDlpTransfer(cfg.YtDlpPath, sink, logger)
	transfer := ingestion.NewTransferRouter(ingestion.NewDirectTransfer(nil, sink, logger)).
		Handle(types.SourceYouTube, ytdlp).
		Handle(types.SourceLoom, ytdlp).
		Handle(types.SourceVimeo, ytdlp)

	gemini := analysis.NewGemini(client, sink, logger)

	opts := []action.ExecutorOption{
		action.WithWebhook(action.NewWebhook(nil), cfg.WebhookURL),
		action.WithLogger(logger),
	}
	if cfg.GitHubToken != "" && cfg.GitHubRepo != "" {
		opts = append(opts, action.WithIssues(action.NewGitHubIssues(cfg.GitHubToken, cfg.GitHubRepo, nil)))
	}
	executor := action.NewExecutor(action.NewVectorizer(client, a.store), opts...)

	return pipeline.NewProcessor(a.store, a.events, pipeline.Collaborators{
		Metadata:  metadata,
		Transfer:  transfer,
		Segmenter: gemini,
		Agents:    gemini,
		Analyzer:  gemini,
		Action:    executor,
	},
		pipeline.WithLimits(ingestion.Limits{MinSeconds: cfg.MinDurationSeconds, MaxSeconds: cfg.MaxDurationSeconds}),
		pipeline.WithTimeouts(pipeline.Timeouts{
			Metadata: cfg.Timeouts.Metadata.Std(),
			Transfer: cfg.Timeouts.Transfer.Std(),
			Segment:  cfg.Timeouts.Segment.Std(),
			Analysis: cfg.Timeouts.Analysis.Std(),
			Action:   cfg.Timeouts.Action.Std(),
		}),
		pipeline.WithLogger(logger),
	)
}

// newWorker guards deliveries with Redis leases when Redis is configured.
func (a *app) newWorker(proc dispatch.JobProcessor) *dispatch.Worker {
	var locker dispatch.Locker
	if a.redis != nil {
		locker = dispatch.NewRedisLocker(a.redis)
	}
	return dispatch.NewWorker(proc, locker, a.cfg.LeaseTTL.Std(), a.logger)
}

// newBridge returns the asynq bridge when Redis is configured and the
// in-process queue otherwise. A nil worker yields a publish-only bridge.
func (a *app) newBridge(worker *dispatch.Worker) (bridge, error) {
	if a.cfg.RedisURL == "" {
		if worker == nil {
			return nil, fmt.Errorf("REDIS_URL is required to publish without an embedded worker")
		}
		a.logger.Warn("REDIS_URL not set, using the in-process queue")
		return dispatch.NewLocalBridge(dispatch.LocalConfig{
			Concurrency: a.cfg.WorkerConcurrency,
			MaxRetry:    a.cfg.MaxRetries,
		}, worker, a.logger), nil
	}

	b, err := dispatch.NewAsynqBridge(dispatch.AsynqConfig{
		RedisURL:    a.cfg.RedisURL,
		Queue:       a.cfg.QueueName,
		MaxRetry:    a.cfg.MaxRetries,
		Concurrency: a.cfg.WorkerConcurrency,
	}, worker, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = b.Close() })
	return b, nil
}
