package store

import "github.com/jonathan/video-refinery/internal/types"

// Health classifications derived from the failure ratio.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthDegraded = "degraded"
)

// Failure-ratio thresholds for Classify.
const (
	DegradedFailureRatio = 0.5
	WarningFailureRatio  = 0.1
)

// PipelineStats is the operational view of the Job Store.
type PipelineStats struct {
	Counts       map[types.Status]int `json:"counts"`
	Total        int                  `json:"total"`
	FailureRatio float64              `json:"failureRatio"`
	Health       string               `json:"health"`
}

// Summarize totals counts and classifies pipeline health.
func Summarize(counts map[types.Status]int) PipelineStats {
	stats := PipelineStats{Counts: make(map[types.Status]int, len(types.AllStatuses))}
	for _, status := range types.AllStatuses {
		stats.Counts[status] = counts[status]
		stats.Total += counts[status]
	}
	if stats.Total > 0 {
		stats.FailureRatio = float64(stats.Counts[types.StatusFailed]) / float64(stats.Total)
	}
	stats.Health = Classify(stats.FailureRatio)
	return stats
}

// Classify maps a failure ratio to a health label. Ratios are compared
// strictly: exactly half failed is still "warning".
func Classify(failureRatio float64) string {
	switch {
	case failureRatio > DegradedFailureRatio:
		return HealthDegraded
	case failureRatio > WarningFailureRatio:
		return HealthWarning
	default:
		return HealthHealthy
	}
}
