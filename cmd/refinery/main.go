// Package main provides the refinery command: the HTTP API, the queue worker
// and client commands for submitting and inspecting video analysis jobs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "refinery",
	Short: "Video Refinery job pipeline",
	Long: `Video Refinery turns a video reference into structured, actionable artifacts:
summaries, extracted code and reproducible workflows.

Jobs move through INGEST -> SEGMENT -> ENHANCE -> ACTION and are processed
asynchronously by workers consuming a Redis-backed queue.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file (environment variables override it)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
