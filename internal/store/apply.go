package store

import (
	"fmt"
	"time"

	"github.com/jonathan/video-refinery/internal/pipeline/steps"
	"github.com/jonathan/video-refinery/internal/types"
)

// Apply mutates job in place according to status and patch, enforcing the
// job invariants. It is shared by every JobStore so the rules cannot drift:
//   - terminal jobs are immutable
//   - status never regresses
//   - executedAgents stays a prefix of the task type's chain
//   - result only on COMPLETED, error only on FAILED, each at most once
func Apply(job *types.Job, status types.Status, patch Patch, now time.Time) error {
	if job.Status.IsTerminal() {
		return ErrTerminal
	}
	if !job.Status.CanAdvanceTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}
	if patch.Result != nil && status != types.StatusCompleted {
		return fmt.Errorf("%w: result may only be set on %s", ErrInvalidTransition, types.StatusCompleted)
	}
	if status == types.StatusCompleted && patch.Result == nil {
		return fmt.Errorf("%w: %s requires a result", ErrInvalidTransition, types.StatusCompleted)
	}
	if patch.Error != "" && status != types.StatusFailed {
		return fmt.Errorf("%w: error may only be set on %s", ErrInvalidTransition, types.StatusFailed)
	}
	if status == types.StatusFailed && patch.Error == "" {
		return fmt.Errorf("%w: %s requires an error", ErrInvalidTransition, types.StatusFailed)
	}

	if len(patch.AppendAgents) > 0 {
		agents := append(append([]string{}, job.ExecutedAgents...), patch.AppendAgents...)
		if !steps.IsPrefix(job.TaskType, agents) {
			return fmt.Errorf("%w: agents %v are not a prefix of the %s chain", ErrInvalidTransition, agents, job.TaskType)
		}
		job.ExecutedAgents = agents
	}
	if patch.Title != "" {
		job.Title = patch.Title
	}
	if patch.Metadata != nil {
		m := *patch.Metadata
		job.Metadata = &m
	}
	if patch.StorageURI != "" {
		job.StorageURI = patch.StorageURI
	}
	if patch.Segments != nil {
		job.Segments = append([]types.Segment{}, patch.Segments...)
	}
	if patch.Result != nil {
		job.Result = patch.Result.Clone()
	}
	if patch.Error != "" {
		job.Error = patch.Error
	}

	job.Status = status
	if now.Before(job.UpdatedAt) {
		now = job.UpdatedAt
	}
	job.UpdatedAt = now
	return nil
}
