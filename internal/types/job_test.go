package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanAdvanceTo(t *testing.T) {
	assert.True(t, StatusQueued.CanAdvanceTo(StatusIngest))
	assert.True(t, StatusEnhance.CanAdvanceTo(StatusEnhance), "same-stage updates are allowed")
	assert.True(t, StatusSegment.CanAdvanceTo(StatusFailed))
	assert.False(t, StatusEnhance.CanAdvanceTo(StatusIngest), "no regression")
	assert.False(t, StatusCompleted.CanAdvanceTo(StatusFailed), "terminal is immutable")
	assert.False(t, StatusFailed.CanAdvanceTo(StatusFailed))
	assert.False(t, StatusQueued.CanAdvanceTo(Status("DOWNLOADING")))
}

func TestStatus_NextWalksCanonicalOrder(t *testing.T) {
	var walk []Status
	for s := StatusQueued; s != ""; s = s.Next() {
		walk = append(walk, s)
	}
	assert.Equal(t, []Status{StatusQueued, StatusIngest, StatusSegment, StatusEnhance, StatusAction, StatusCompleted}, walk)
	assert.Equal(t, Status(""), StatusFailed.Next())
}

func TestTaskType_IsValid(t *testing.T) {
	assert.True(t, TaskTranscription.IsValid())
	assert.True(t, TaskCodeExtraction.IsValid())
	assert.True(t, TaskFullAnalysis.IsValid())
	assert.False(t, TaskType("translation").IsValid())
}

func TestJob_CloneIsDeep(t *testing.T) {
	job := &Job{
		ID:             "job-1",
		ExecutedAgents: []string{"VTTA"},
		Metadata:       &VideoMetadata{Title: "t", Tags: []string{"go"}},
		Result:         &AnalysisResult{Summary: Summary{Title: "x", KeyInsights: []string{"a"}}},
	}

	c := job.Clone()
	c.ExecutedAgents[0] = "OFSA"
	c.Metadata.Tags[0] = "rust"
	c.Result.Summary.KeyInsights[0] = "b"

	assert.Equal(t, "VTTA", job.ExecutedAgents[0])
	assert.Equal(t, "go", job.Metadata.Tags[0])
	assert.Equal(t, "a", job.Result.Summary.KeyInsights[0])
	assert.Equal(t, "VTTA", job.LastAgent())
}

func TestVideoMetadata_IsActionable(t *testing.T) {
	assert.True(t, (&VideoMetadata{Title: "Deploy Go to Cloud Run - Tutorial"}).IsActionable())
	assert.True(t, (&VideoMetadata{Title: "Talk", Tags: []string{"programming"}}).IsActionable())
	assert.False(t, (&VideoMetadata{Title: "Cat compilation"}).IsActionable())
	assert.False(t, (*VideoMetadata)(nil).IsActionable())
}

func TestWholeAssetSegment(t *testing.T) {
	segs := WholeAssetSegment(&VideoMetadata{Title: "Intro", DurationSeconds: 120})
	assert.Len(t, segs, 1)
	assert.Equal(t, 120, segs[0].EndSeconds)
	assert.Equal(t, "Intro", segs[0].Title)
}

func TestAnalysisResult_Backfill(t *testing.T) {
	r := &AnalysisResult{}
	filled := r.Backfill(&VideoMetadata{Title: "Intro to gRPC"})
	assert.Equal(t, []string{"summary.title", "generatedWorkflow.name", "generatedWorkflow.steps"}, filled)
	assert.Equal(t, "Intro to gRPC", r.Summary.Title)
	assert.Equal(t, "Intro to gRPC", r.GeneratedWorkflow.Name)
	assert.Len(t, r.GeneratedWorkflow.Steps, 1)
	assert.Equal(t, 1, r.GeneratedWorkflow.Steps[0].StepNumber)

	r = &AnalysisResult{}
	r.Backfill(nil)
	assert.Equal(t, UntitledAnalysis, r.Summary.Title)

	r = &AnalysisResult{
		Summary:           Summary{Title: "Kept"},
		GeneratedWorkflow: Workflow{Name: "wf", Steps: []WorkflowStep{{StepNumber: 1, Action: "go build"}}},
	}
	assert.Empty(t, r.Backfill(&VideoMetadata{Title: "ignored"}))
	assert.Equal(t, "Kept", r.Summary.Title)
}
