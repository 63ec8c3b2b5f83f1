package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrSourceNotFound indicates the metadata collaborator has no record of the source id.
var ErrSourceNotFound = errors.New("source not found")

// ValidationError indicates malformed or inadmissible input. Never retried.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// TransferError indicates an I/O fault while moving the asset into storage.
type TransferError struct {
	Op  string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed during %s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// AnalysisReason narrows an AnalysisError to a provider-level cause.
type AnalysisReason string

const (
	ReasonRateLimit     AnalysisReason = "rate_limit"
	ReasonContentPolicy AnalysisReason = "content_policy"
	ReasonTimeout       AnalysisReason = "timeout"
	ReasonMalformed     AnalysisReason = "malformed"
	ReasonProvider      AnalysisReason = "provider"
)

// AnalysisError indicates a model-provider fault.
type AnalysisError struct {
	Reason AnalysisReason
	Err    error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed (%s): %v", e.Reason, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// StorageError indicates a Job Store or Event Log fault.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PipelineValidationError reports an agent-chain conformance mismatch.
// It is surfaced as a warning and does not fail the job.
type PipelineValidationError struct {
	TaskType TaskType
	Index    int
	Expected []string
	Actual   []string
	Message  string
}

func (e *PipelineValidationError) Error() string {
	return e.Message
}

// Kind names the taxonomy bucket of err, or "internal" when it has none.
func Kind(err error) string {
	var (
		validationErr *ValidationError
		transferErr   *TransferError
		analysisErr   *AnalysisError
		storageErr    *StorageError
		pipelineErr   *PipelineValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &transferErr):
		return "transfer"
	case errors.As(err, &analysisErr):
		return "analysis"
	case errors.As(err, &storageErr):
		return "storage"
	case errors.As(err, &pipelineErr):
		return "pipeline_validation"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

// Retryable reports whether a fresh queue delivery may succeed where err failed.
func Retryable(err error) bool {
	switch Kind(err) {
	case "transfer", "analysis", "storage", "timeout":
		var analysisErr *AnalysisError
		if errors.As(err, &analysisErr) && analysisErr.Reason == ReasonContentPolicy {
			return false
		}
		return true
	default:
		return false
	}
}

// Humanize renders err as a single-line diagnostic suitable for a job's error field.
func Humanize(err error) string {
	if err == nil {
		return ""
	}

	var (
		validationErr *ValidationError
		analysisErr   *AnalysisError
	)
	var msg string
	switch {
	case errors.As(err, &validationErr):
		msg = validationErr.Message
	case errors.As(err, &analysisErr):
		switch analysisErr.Reason {
		case ReasonRateLimit:
			msg = "analysis provider rate limit exceeded"
		case ReasonContentPolicy:
			msg = "analysis blocked by provider content policy"
		case ReasonTimeout:
			msg = "analysis timed out"
		default:
			msg = err.Error()
		}
	case errors.Is(err, context.DeadlineExceeded):
		msg = "operation timed out"
	default:
		msg = err.Error()
	}

	if i := strings.IndexAny(msg, "\r\n"); i >= 0 {
		msg = msg[:i]
	}
	const maxLen = 500
	if len(msg) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return strings.TrimSpace(msg)
}
