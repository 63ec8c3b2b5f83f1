package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-refinery/internal/observability"
	"github.com/jonathan/video-refinery/internal/store"
)

var (
	statusServer string
	statusEvents bool
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show a job, or pipeline health when no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a running job",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "http://localhost:8080", "Refinery server URL")
	statusCmd.Flags().BoolVar(&statusEvents, "events", false, "Include the job's audit trail")
	cancelCmd.Flags().StringVar(&statusServer, "server", "http://localhost:8080", "Refinery server URL")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := newAPIClient(statusServer)
	printer := observability.NewPrinter(cmd.OutOrStdout())

	if len(args) == 0 {
		resp, err := client.Pipeline(ctx)
		if err != nil {
			return err
		}
		printer.PrintPipelineStats(store.Summarize(resp.Stats))
		return nil
	}

	job, err := client.Job(ctx, args[0])
	if err != nil {
		return err
	}
	printer.PrintJob(job, agentChain(job))
	if statusEvents {
		events, err := client.Events(ctx, job.ID)
		if err != nil {
			return err
		}
		printer.PrintEvents(events)
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	job, err := newAPIClient(statusServer).Cancel(ctx, args[0])
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintJob(job, agentChain(job))
	return nil
}
