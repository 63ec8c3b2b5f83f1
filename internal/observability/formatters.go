// Package observability provides formatted output for the refinery CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/video-refinery/internal/store"
	"github.com/jonathan/video-refinery/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer writes human-readable job, event and pipeline summaries.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		if r := []rune(line); len(r) > boxWidth-4 {
			line = string(r[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// listItems renders up to maxItemsToShow bullets plus an overflow line.
func listItems(sb *strings.Builder, items []string) {
	for _, item := range items[:min(len(items), maxItemsToShow)] {
		fmt.Fprintf(sb, "  • %s\n", item)
	}
	if len(items) > maxItemsToShow {
		fmt.Fprintf(sb, "  ... and %d more\n", len(items)-maxItemsToShow)
	}
}

// PrintJob outputs a job's status, progress through its agent chain and,
// once available, its result or error.
func (p *Printer) PrintJob(job *types.Job, chain []string) {
	if job == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "ID:      %s\n", job.ID)
	fmt.Fprintf(&sb, "Source:  %s (%s)\n", job.SourceURL, job.SourceKind)
	fmt.Fprintf(&sb, "Task:    %s\n", job.TaskType)
	fmt.Fprintf(&sb, "Status:  %s\n", job.Status)
	if job.Title != "" {
		fmt.Fprintf(&sb, "Title:   %s\n", job.Title)
	}
	if len(chain) > 0 {
		fmt.Fprintf(&sb, "Agents:  %s\n", agentProgress(job.ExecutedAgents, chain))
	}
	fmt.Fprintf(&sb, "Updated: %s\n", job.UpdatedAt.Format(time.RFC3339))

	if job.Error != "" {
		fmt.Fprintf(&sb, "\nError: %s\n", job.Error)
	}

	if r := job.Result; r != nil {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "Summary: %s\n", r.Summary.Title)
		if r.Summary.PrimaryTopic != "" {
			fmt.Fprintf(&sb, "Topic:   %s\n", r.Summary.PrimaryTopic)
		}
		if len(r.Summary.KeyInsights) > 0 {
			sb.WriteString("Key insights:\n")
			listItems(&sb, r.Summary.KeyInsights)
		}
		if steps := r.GeneratedWorkflow.Steps; len(steps) > 0 {
			fmt.Fprintf(&sb, "Workflow (%d steps):\n", len(steps))
			items := make([]string, 0, len(steps))
			for _, s := range steps {
				items = append(items, fmt.Sprintf("%d. %s", s.StepNumber, s.Action))
			}
			listItems(&sb, items)
		}
		if len(r.CodeArtifacts) > 0 {
			fmt.Fprintf(&sb, "Code artifacts: %d\n", len(r.CodeArtifacts))
		}
		if r.Action != nil {
			fmt.Fprintf(&sb, "Vectors: %d\n", r.Action.VectorCount)
			for _, ref := range r.Action.ExternalRefs {
				if ref.Error != "" {
					fmt.Fprintf(&sb, "  ✗ %s: %s\n", ref.Kind, ref.Error)
				} else {
					fmt.Fprintf(&sb, "  ✓ %s %s\n", ref.Kind, ref.URL)
				}
			}
		}
	}

	p.printBox("JOB "+string(job.Status), sb.String())
}

// agentProgress renders the chain with executed agents checked off.
func agentProgress(executed, chain []string) string {
	parts := make([]string, 0, len(chain))
	for i, agent := range chain {
		mark := "·"
		if i < len(executed) && executed[i] == agent {
			mark = "✓"
		}
		parts = append(parts, mark+" "+agent)
	}
	return strings.Join(parts, "  ")
}

// PrintEvents outputs the audit trail, oldest first.
func (p *Printer) PrintEvents(events []types.Event) {
	if len(events) == 0 {
		return
	}

	var sb strings.Builder
	for _, e := range events {
		fmt.Fprintf(&sb, "%s  %s", e.Timestamp.Format("15:04:05"), e.Type)
		if e.Agent != "" {
			fmt.Fprintf(&sb, " [%s]", e.Agent)
		}
		if e.Details != "" {
			fmt.Fprintf(&sb, " %s", e.Details)
		}
		sb.WriteString("\n")
	}
	p.printBox(fmt.Sprintf("EVENTS (%d)", len(events)), sb.String())
}

// PrintPipelineStats outputs the per-status counts and health label.
func (p *Printer) PrintPipelineStats(stats store.PipelineStats) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Health:  %s\n", stats.Health)
	fmt.Fprintf(&sb, "Total:   %d\n", stats.Total)
	fmt.Fprintf(&sb, "Failed:  %.1f%%\n", stats.FailureRatio*100)
	sb.WriteString("\n")
	for _, status := range types.AllStatuses {
		fmt.Fprintf(&sb, "  %-10s %d\n", status, stats.Counts[status])
	}
	p.printBox("PIPELINE", sb.String())
}

// PrintRoutes outputs each task type with its agent chain.
func (p *Printer) PrintRoutes(routes map[types.TaskType][]string) {
	taskTypes := make([]string, 0, len(routes))
	for tt := range routes {
		taskTypes = append(taskTypes, string(tt))
	}
	sort.Strings(taskTypes)

	var sb strings.Builder
	for _, tt := range taskTypes {
		fmt.Fprintf(&sb, "%-16s %s\n", tt, strings.Join(routes[types.TaskType(tt)], " → "))
	}
	p.printBox("PIPELINE ROUTES", sb.String())
}
