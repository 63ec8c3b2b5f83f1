package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-refinery/internal/observability"
	"github.com/jonathan/video-refinery/internal/pipeline/steps"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Show the agent chain for each task type",
	RunE:  runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)
}

func runRoutes(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	observability.NewPrinter(out).PrintRoutes(steps.Routes())

	fmt.Fprintln(out, "\nAgents:")
	for _, agent := range steps.Agents() {
		fmt.Fprintf(out, "  %-6s %s (%s)\n", agent.Name, agent.FullName, agent.Role)
	}
	return nil
}
