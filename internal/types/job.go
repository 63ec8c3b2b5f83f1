// Package types defines the shared data model of the video refinery pipeline:
// jobs, events, source references, collaborator payloads and the error taxonomy.
package types

import "time"

// Status is the pipeline stage a job currently occupies.
type Status string

// Canonical stage order. FAILED is reachable from any non-terminal status.
const (
	StatusQueued    Status = "QUEUED"
	StatusIngest    Status = "INGEST"
	StatusSegment   Status = "SEGMENT"
	StatusEnhance   Status = "ENHANCE"
	StatusAction    Status = "ACTION"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// AllStatuses lists every status in canonical order.
var AllStatuses = []Status{
	StatusQueued,
	StatusIngest,
	StatusSegment,
	StatusEnhance,
	StatusAction,
	StatusCompleted,
	StatusFailed,
}

// stageRank orders the non-failed statuses. FAILED is ranked after everything.
var stageRank = map[Status]int{
	StatusQueued:    0,
	StatusIngest:    1,
	StatusSegment:   2,
	StatusEnhance:   3,
	StatusAction:    4,
	StatusCompleted: 5,
	StatusFailed:    6,
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := stageRank[s]
	return ok
}

// IsTerminal reports whether no further mutation is permitted in s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanAdvanceTo reports whether moving from s to next keeps the status
// monotonic. Staying in the same stage is allowed so that agent appends can
// be persisted without a stage change.
func (s Status) CanAdvanceTo(next Status) bool {
	if s.IsTerminal() || !next.IsValid() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return stageRank[next] >= stageRank[s]
}

// Next returns the stage following s in the canonical order, or "" for
// terminal statuses.
func (s Status) Next() Status {
	switch s {
	case StatusQueued:
		return StatusIngest
	case StatusIngest:
		return StatusSegment
	case StatusSegment:
		return StatusEnhance
	case StatusEnhance:
		return StatusAction
	case StatusAction:
		return StatusCompleted
	default:
		return ""
	}
}

// TaskType selects the agent chain a job must run.
type TaskType string

const (
	TaskTranscription  TaskType = "transcription"
	TaskCodeExtraction TaskType = "code_extraction"
	TaskFullAnalysis   TaskType = "full_analysis"
)

// IsValid reports whether t is one of the enumerated task types.
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTranscription, TaskCodeExtraction, TaskFullAnalysis:
		return true
	}
	return false
}

// ActionOptions toggles the optional sub-actions of the ACTION stage.
type ActionOptions struct {
	CreateIssue bool   `json:"createIssue,omitempty"`
	WebhookURL  string `json:"webhookUrl,omitempty"`
}

// Job is one video-analysis request tracked through the pipeline.
type Job struct {
	ID             string          `json:"id"`
	SourceURL      string          `json:"sourceUrl"`
	SourceKind     SourceKind      `json:"sourceKind"`
	SourceID       string          `json:"sourceId,omitempty"`
	TaskType       TaskType        `json:"taskType"`
	Status         Status          `json:"status"`
	ExecutedAgents []string        `json:"executedAgents"`
	Title          string          `json:"title,omitempty"`
	Options        ActionOptions   `json:"options"`
	Metadata       *VideoMetadata  `json:"metadata,omitempty"`
	StorageURI     string          `json:"storageUri,omitempty"`
	Segments       []Segment       `json:"segments,omitempty"`
	Result         *AnalysisResult `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Ref returns the source reference the ingestion collaborators operate on.
func (j *Job) Ref() SourceRef {
	return SourceRef{Kind: j.SourceKind, URL: j.SourceURL, ID: j.SourceID}
}

// LastAgent returns the most recently executed agent, or "".
func (j *Job) LastAgent() string {
	if len(j.ExecutedAgents) == 0 {
		return ""
	}
	return j.ExecutedAgents[len(j.ExecutedAgents)-1]
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.ExecutedAgents = append([]string{}, j.ExecutedAgents...)
	if j.Metadata != nil {
		m := *j.Metadata
		m.Tags = cloneSlice(j.Metadata.Tags)
		c.Metadata = &m
	}
	c.Segments = cloneSlice(j.Segments)
	if j.Result != nil {
		c.Result = j.Result.Clone()
	}
	return &c
}

// EventType names an audit record kind.
type EventType string

const (
	EventJobCreated       EventType = "JOB_CREATED"
	EventStatusChange     EventType = "STATUS_CHANGE"
	EventIngestMetadata   EventType = "INGEST_METADATA"
	EventIngestStored     EventType = "INGEST_STORED"
	EventSegmentComplete  EventType = "SEGMENT_COMPLETE"
	EventAgentExecute     EventType = "AGENT_EXECUTE"
	EventPipelineMismatch EventType = "PIPELINE_VALIDATION_WARNING"
	EventEnhanceComplete  EventType = "ENHANCE_COMPLETE"
	EventActionComplete   EventType = "ACTION_COMPLETE"
	EventJobCompleted     EventType = "JOB_COMPLETED"
	EventJobFailed        EventType = "JOB_FAILED"
	EventJobCancelled     EventType = "JOB_CANCELLED"
	EventStageRetry       EventType = "STAGE_RETRY"
)

// Event is an immutable audit record observing a job.
type Event struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	Type      EventType `json:"eventType"`
	Agent     string    `json:"agent,omitempty"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
