// Package ingestion implements the INGEST stage collaborators: source
// metadata lookup, the admissibility rules, and streaming the raw asset into
// durable storage.
package ingestion

import (
	"fmt"
	"log/slog"

	"github.com/jonathan/video-refinery/internal/types"
)

// Limits bounds the admissible video duration in seconds.
type Limits struct {
	MinSeconds int
	MaxSeconds int
}

// DefaultLimits rejects clips under 30 seconds and streams over 3 hours.
func DefaultLimits() Limits {
	return Limits{MinSeconds: 30, MaxSeconds: 10800}
}

// CheckAdmissible applies the duration bounds to meta. A zero duration means
// the collaborator could not report one and skips the bounds check. Videos
// failing the actionable-content heuristic are only logged.
func CheckAdmissible(meta *types.VideoMetadata, limits Limits, logger *slog.Logger) error {
	if meta == nil {
		return &types.ValidationError{Field: "metadata", Message: "no metadata available for source"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch {
	case meta.DurationSeconds == 0:
		logger.Warn("source duration unknown, skipping duration bounds", "title", meta.Title)
	case meta.DurationSeconds < limits.MinSeconds:
		return &types.ValidationError{
			Field:   "durationSeconds",
			Message: fmt.Sprintf("Video too short (< %s)", describeSeconds(limits.MinSeconds)),
		}
	case meta.DurationSeconds > limits.MaxSeconds:
		return &types.ValidationError{
			Field:   "durationSeconds",
			Message: fmt.Sprintf("Video too long (> %s)", describeSeconds(limits.MaxSeconds)),
		}
	}

	if !meta.IsActionable() {
		logger.Warn("video may not contain actionable content", "title", meta.Title)
	}
	return nil
}

// describeSeconds renders a threshold in the largest whole unit.
func describeSeconds(s int) string {
	unit := func(n int, name string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", name)
		}
		return fmt.Sprintf("%d %ss", n, name)
	}
	switch {
	case s > 0 && s%3600 == 0:
		return unit(s/3600, "hour")
	case s > 0 && s%60 == 0 && s >= 120:
		return unit(s/60, "minute")
	default:
		return unit(s, "second")
	}
}
