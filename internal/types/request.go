package types

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// SubmitJobRequest is the payload accepted by the job submission API.
type SubmitJobRequest struct {
	SourceURL   string   `json:"sourceUrl" validate:"required,url,max=2048"`
	TaskType    TaskType `json:"taskType" validate:"omitempty,oneof=transcription code_extraction full_analysis"`
	CreateIssue bool     `json:"createIssue,omitempty"`
	WebhookURL  string   `json:"webhookUrl,omitempty" validate:"omitempty,url"`
}

// Validate checks the request and converts validator output into a *ValidationError.
func (r *SubmitJobRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{
				Field:   lowerFirst(fe.Field()),
				Message: fmt.Sprintf("failed %q validation", fe.Tag()),
				Err:     err,
			}
		}
		return &ValidationError{Message: err.Error(), Err: err}
	}
	return nil
}

// Normalized returns the task type, defaulting to full_analysis.
func (r *SubmitJobRequest) Normalized() TaskType {
	if r.TaskType == "" {
		return TaskFullAnalysis
	}
	return r.TaskType
}

// Options extracts the ACTION-stage options from the request.
func (r *SubmitJobRequest) Options() ActionOptions {
	return ActionOptions{CreateIssue: r.CreateIssue, WebhookURL: r.WebhookURL}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
