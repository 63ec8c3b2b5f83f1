package types

import "strings"

// VideoMetadata is what the metadata collaborator reports about a source.
type VideoMetadata struct {
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	ChannelTitle    string   `json:"channelTitle,omitempty"`
	DurationSeconds int      `json:"durationSeconds"`
	HasCaptions     bool     `json:"hasCaptions"`
	Tags            []string `json:"tags,omitempty"`
	ThumbnailURL    string   `json:"thumbnailUrl,omitempty"`
	PublishedAt     string   `json:"publishedAt,omitempty"`
}

// actionableKeywords mark videos likely to contain reproducible technical content.
var actionableKeywords = []string{
	"tutorial", "how to", "guide", "demo", "walkthrough",
	"coding", "programming", "development", "deploy", "build",
	"api", "sdk", "framework", "cloud", "kubernetes", "docker",
}

// IsActionable applies the keyword heuristic over title, description and tags.
func (m *VideoMetadata) IsActionable() bool {
	if m == nil {
		return false
	}
	text := strings.ToLower(m.Title + " " + m.Description + " " + strings.Join(m.Tags, " "))
	for _, kw := range actionableKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Segment is a semantic slice of the asset.
type Segment struct {
	Index        int    `json:"index"`
	StartSeconds int    `json:"startSeconds"`
	EndSeconds   int    `json:"endSeconds"`
	Title        string `json:"title,omitempty"`
	Summary      string `json:"summary,omitempty"`
}

// WholeAssetSegment is the degraded segmentation used when no finer split is available.
func WholeAssetSegment(meta *VideoMetadata) []Segment {
	seg := Segment{Index: 0, Title: "Full video"}
	if meta != nil {
		seg.EndSeconds = meta.DurationSeconds
		if meta.Title != "" {
			seg.Title = meta.Title
		}
	}
	return []Segment{seg}
}

// AnalysisInput is the view of a job the SEGMENT and ENHANCE collaborators
// work from.
type AnalysisInput struct {
	JobID      string
	TaskType   TaskType
	Metadata   *VideoMetadata
	StorageURI string
	Segments   []Segment
	AgentNotes []AgentOutput
}

// AgentOutput is the note an ENHANCE agent produced for the final analysis.
type AgentOutput struct {
	Agent string `json:"agent"`
	Notes string `json:"notes"`
}

// Summary describes the video at a glance.
type Summary struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	KeyInsights  []string `json:"keyInsights"`
	Duration     string   `json:"duration,omitempty"`
	PrimaryTopic string   `json:"primaryTopic,omitempty"`
}

// WorkflowStep is one reproducible step extracted from the video.
type WorkflowStep struct {
	StepNumber int    `json:"stepNumber"`
	Action     string `json:"action"`
	Command    string `json:"command,omitempty"`
}

// Workflow is the ordered procedure the video demonstrates.
type Workflow struct {
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Steps         []WorkflowStep `json:"steps"`
	Prerequisites []string       `json:"prerequisites,omitempty"`
}

// CodeArtifact is a code block recovered from the video.
type CodeArtifact struct {
	Filename string `json:"filename"`
	Language string `json:"language"`
	Code     string `json:"code"`
	Purpose  string `json:"purpose,omitempty"`
}

// ExternalRef records the outcome of an ACTION side effect.
type ExternalRef struct {
	Kind  string `json:"kind"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// Vector is one embedded chunk of an analysis result.
type Vector struct {
	Chunk     int       `json:"chunk"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// ActionResult is what the action collaborator reports.
type ActionResult struct {
	VectorCount  int           `json:"vectorCount"`
	ExternalRefs []ExternalRef `json:"externalRefs,omitempty"`
}

// AnalysisResult is the structured payload stored on a completed job.
type AnalysisResult struct {
	Summary               Summary        `json:"summary"`
	GeneratedWorkflow     Workflow       `json:"generatedWorkflow"`
	CodeArtifacts         []CodeArtifact `json:"codeArtifacts"`
	ExtractedCapabilities []string       `json:"extractedCapabilities,omitempty"`
	ActionableInsights    []string       `json:"actionableInsights,omitempty"`
	PerceivedLearnings    []string       `json:"perceivedLearnings,omitempty"`
	StorageURI            string         `json:"storageUri,omitempty"`
	Segments              []Segment      `json:"segments,omitempty"`
	Action                *ActionResult  `json:"action,omitempty"`
	Fallback              bool           `json:"fallback,omitempty"`
}

// UntitledAnalysis is the title used when neither the model nor the
// metadata provides one.
const UntitledAnalysis = "Untitled Analysis"

// Backfill fills the minimum fields a stored result must carry, a non-empty
// title and at least one workflow step, from meta where possible. It reports
// which fields it filled.
func (r *AnalysisResult) Backfill(meta *VideoMetadata) []string {
	var filled []string

	if strings.TrimSpace(r.Summary.Title) == "" {
		r.Summary.Title = UntitledAnalysis
		if meta != nil && meta.Title != "" {
			r.Summary.Title = meta.Title
		}
		filled = append(filled, "summary.title")
	}
	if r.GeneratedWorkflow.Name == "" {
		r.GeneratedWorkflow.Name = r.Summary.Title
		filled = append(filled, "generatedWorkflow.name")
	}
	if len(r.GeneratedWorkflow.Steps) == 0 {
		r.GeneratedWorkflow.Steps = []WorkflowStep{{
			StepNumber: 1,
			Action:     "Watch the source video and reproduce: " + r.Summary.Title,
		}}
		filled = append(filled, "generatedWorkflow.steps")
	}
	return filled
}

// Clone returns a deep copy of r.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Summary.KeyInsights = cloneSlice(r.Summary.KeyInsights)
	c.GeneratedWorkflow.Steps = cloneSlice(r.GeneratedWorkflow.Steps)
	c.GeneratedWorkflow.Prerequisites = cloneSlice(r.GeneratedWorkflow.Prerequisites)
	c.CodeArtifacts = cloneSlice(r.CodeArtifacts)
	c.ExtractedCapabilities = cloneSlice(r.ExtractedCapabilities)
	c.ActionableInsights = cloneSlice(r.ActionableInsights)
	c.PerceivedLearnings = cloneSlice(r.PerceivedLearnings)
	c.Segments = cloneSlice(r.Segments)
	if r.Action != nil {
		a := *r.Action
		a.ExternalRefs = cloneSlice(r.Action.ExternalRefs)
		c.Action = &a
	}
	return &c
}

// cloneSlice copies s, keeping nil and empty distinct.
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
