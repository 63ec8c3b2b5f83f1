package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/video-refinery/internal/config"
	"github.com/jonathan/video-refinery/internal/dispatch"
	"github.com/jonathan/video-refinery/internal/pipeline"
	"github.com/jonathan/video-refinery/internal/server"
	"github.com/jonathan/video-refinery/internal/server/ratelimit"
)

var (
	servePort     int
	serveConsume  bool
	servePushMode bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that accepts jobs and exposes their status and events.

By default the server also consumes the queue in-process. Use --consume=false
when dedicated workers run separately, or --push to accept deliveries from a
push subscription on POST /worker. The push subscription needs a dead-letter
policy so deliveries carry deliveryAttempt; without it a job that keeps
failing with a retryable error is never marked FAILED.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveConsume, "consume", true, "Consume queued jobs in this process")
	serveCmd.Flags().BoolVar(&servePushMode, "push", false, "Accept push deliveries on POST /worker")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Port = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	deps := server.Deps{
		Jobs:        a.store,
		Events:      a.events,
		Follower:    a.follower,
		RateLimiter: ratelimit.NewLimiter(ratelimit.LoadConfig()),
		MaxRetry:    cfg.MaxRetries,
		Logger:      logger,
	}

	consume := serveConsume || cfg.RedisURL == ""
	var consumer *dispatch.Worker
	if consume || servePushMode {
		proc, err := a.newProcessor(ctx)
		if err != nil {
			return err
		}
		w := a.newWorker(proc)
		if consume {
			consumer = w
		}
		if servePushMode {
			deps.Worker = w
			if cfg.PushAuthRequired {
				pushCfg, err := config.NewPushAuthConfig()
				if err != nil {
					return err
				}
				deps.PushAuth = server.NewPushTokenService(pushCfg)
			}
		}
	}

	b, err := a.newBridge(consumer)
	if err != nil {
		return err
	}
	deps.Service = pipeline.NewService(a.store, a.events, b, logger)

	srv, err := server.New(server.Config{Port: cfg.Port}, deps)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if consume {
		g.Go(func() error { return b.Run(gctx) })
	}
	return g.Wait()
}
