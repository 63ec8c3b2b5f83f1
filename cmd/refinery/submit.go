package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-refinery/internal/dispatch"
	"github.com/jonathan/video-refinery/internal/observability"
	"github.com/jonathan/video-refinery/internal/pipeline"
	"github.com/jonathan/video-refinery/internal/types"
)

var (
	submitServer      string
	submitTaskType    string
	submitCreateIssue bool
	submitWebhookURL  string
	submitWait        bool
	submitLocal       bool
	submitTimeout     time.Duration
	submitPoll        time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit <video-url>",
	Short: "Submit a video for analysis",
	Long: `Submit a video URL to a running server, or process it in this process with --local.

Examples:
  refinery submit https://www.youtube.com/watch?v=dQw4w9WgXcQ --wait
  refinery submit https://example.com/demo.mp4 --task code_extraction --local`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitServer, "server", "http://localhost:8080", "Refinery server URL")
	submitCmd.Flags().StringVar(&submitTaskType, "task", string(types.TaskFullAnalysis), "Task type: transcription, code_extraction or full_analysis")
	submitCmd.Flags().BoolVar(&submitCreateIssue, "create-issue", false, "Open a GitHub issue with the result")
	submitCmd.Flags().StringVar(&submitWebhookURL, "webhook", "", "Webhook to notify on completion")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "Wait for the job to finish")
	submitCmd.Flags().BoolVar(&submitLocal, "local", false, "Process the job in this process instead of submitting it")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 30*time.Minute, "Maximum time to wait")
	submitCmd.Flags().DurationVar(&submitPoll, "poll", 2*time.Second, "Status polling interval")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	req := types.SubmitJobRequest{
		SourceURL:   args[0],
		TaskType:    types.TaskType(submitTaskType),
		CreateIssue: submitCreateIssue,
		WebhookURL:  submitWebhookURL,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if submitWait || submitLocal {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, submitTimeout)
		defer cancel()
	}

	if submitLocal {
		return submitLocally(ctx, cmd, req)
	}

	client := newAPIClient(submitServer)
	job, err := client.Submit(ctx, req)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Submitted job %s (%s)\n", job.ID, job.Status)
	if !submitWait {
		return nil
	}

	job, err = waitTerminal(ctx, clientGetter{client}, job.ID, submitPoll)
	if err != nil {
		return err
	}
	observability.NewPrinter(out).PrintJob(job, agentChain(job))
	if job.Status == types.StatusFailed {
		return fmt.Errorf("job %s failed: %s", job.ID, job.Error)
	}
	return nil
}

// submitLocally runs the whole pipeline in-process against the in-memory
// queue, then prints the job and its audit trail.
func submitLocally(ctx context.Context, cmd *cobra.Command, req types.SubmitJobRequest) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.RedisURL = ""

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	proc, err := a.newProcessor(ctx)
	if err != nil {
		return err
	}
	b := dispatch.NewLocalBridge(dispatch.LocalConfig{
		Concurrency: 1,
		MaxRetry:    cfg.MaxRetries,
	}, a.newWorker(proc), logger)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- b.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	job, err := pipeline.NewService(a.store, a.events, b, logger).Submit(ctx, req)
	if err != nil {
		return err
	}
	job, err = waitTerminal(ctx, a.store, job.ID, submitPoll)
	if err != nil {
		return err
	}

	events, err := a.store.Events(ctx, job.ID)
	if err != nil {
		return err
	}
	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintJob(job, agentChain(job))
	printer.PrintEvents(events)
	if job.Status == types.StatusFailed {
		return fmt.Errorf("job %s failed: %s", job.ID, job.Error)
	}
	return nil
}
