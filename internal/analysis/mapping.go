package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/video-refinery/internal/types"
)

// rawResponse is the JSON object the analysis prompt asks the model for.
type rawResponse struct {
	Summary             string          `json:"summary"`
	TechStack           []string        `json:"techStack"`
	Dependencies        json.RawMessage `json:"dependencies"`
	ImplementationSteps []string        `json:"implementationSteps"`
	CodeBlocks          []rawCodeBlock  `json:"codeBlocks"`
	Commands            []string        `json:"commands"`
	KeyMoments          []rawKeyMoment  `json:"keyMoments"`
}

type rawCodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Context  string `json:"context"`
	Filename string `json:"filename"`
}

type rawKeyMoment struct {
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
}

const maxActionableInsights = 5

var languageExtensions = map[string]string{
	"javascript": "js",
	"typescript": "ts",
	"python":     "py",
	"java":       "java",
	"go":         "go",
	"golang":     "go",
	"rust":       "rs",
	"ruby":       "rb",
	"php":        "php",
	"css":        "css",
	"html":       "html",
	"json":       "json",
	"yaml":       "yaml",
	"sql":        "sql",
	"bash":       "sh",
	"shell":      "sh",
	"dockerfile": "dockerfile",
}

func extensionFor(language string) string {
	if ext, ok := languageExtensions[strings.ToLower(strings.TrimSpace(language))]; ok {
		return ext
	}
	return "txt"
}

// dependencies accepts either a list of names or a name-to-version map.
func (r *rawResponse) dependencies() []string {
	if len(r.Dependencies) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(r.Dependencies, &list); err == nil {
		return list
	}
	var byName map[string]string
	if err := json.Unmarshal(r.Dependencies, &byName); err == nil {
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			if v := byName[name]; v != "" {
				names[i] = name + "@" + v
			}
		}
		return names
	}
	return nil
}

// toResult maps the raw model fields onto the stored result shape.
func (r *rawResponse) toResult(meta *types.VideoMetadata) *types.AnalysisResult {
	result := &types.AnalysisResult{
		Summary: types.Summary{
			Description: strings.TrimSpace(r.Summary),
			KeyInsights: []string{},
		},
		CodeArtifacts:         []types.CodeArtifact{},
		ExtractedCapabilities: append([]string{}, r.TechStack...),
		ActionableInsights:    []string{},
		PerceivedLearnings:    []string{},
	}

	if meta != nil {
		result.Summary.Title = meta.Title
		if meta.DurationSeconds > 0 {
			result.Summary.Duration = formatClock(meta.DurationSeconds)
		}
	}
	result.Summary.PrimaryTopic = "General"
	if len(r.TechStack) > 0 {
		result.Summary.PrimaryTopic = r.TechStack[0]
	}

	result.GeneratedWorkflow = types.Workflow{
		Name:          result.Summary.Title,
		Description:   result.Summary.Description,
		Steps:         make([]types.WorkflowStep, 0, len(r.ImplementationSteps)),
		Prerequisites: append(append([]string{}, r.TechStack...), r.dependencies()...),
	}
	for i, step := range r.ImplementationSteps {
		ws := types.WorkflowStep{StepNumber: i + 1, Action: step}
		if i < len(r.Commands) {
			ws.Command = r.Commands[i]
		}
		result.GeneratedWorkflow.Steps = append(result.GeneratedWorkflow.Steps, ws)
	}

	for i, step := range r.ImplementationSteps {
		if i == maxActionableInsights {
			break
		}
		result.ActionableInsights = append(result.ActionableInsights, step)
	}

	for i, block := range r.CodeBlocks {
		filename := block.Filename
		if filename == "" {
			filename = fmt.Sprintf("snippet-%d.%s", i+1, extensionFor(block.Language))
		}
		purpose := block.Context
		if purpose == "" {
			purpose = "Code extracted from video"
		}
		result.CodeArtifacts = append(result.CodeArtifacts, types.CodeArtifact{
			Filename: filename,
			Language: block.Language,
			Code:     block.Code,
			Purpose:  purpose,
		})
	}

	for _, m := range r.KeyMoments {
		learning := m.Description
		if m.Timestamp != "" {
			learning = fmt.Sprintf("At %s: %s", m.Timestamp, m.Description)
		}
		result.PerceivedLearnings = append(result.PerceivedLearnings, learning)
		if len(result.Summary.KeyInsights) < maxActionableInsights {
			result.Summary.KeyInsights = append(result.Summary.KeyInsights, m.Description)
		}
	}

	return result
}

// fallbackResult keeps the raw model text as the summary when the response
// could not be parsed.
func fallbackResult(raw string, meta *types.VideoMetadata) *types.AnalysisResult {
	result := (&rawResponse{Summary: raw}).toResult(meta)
	result.Fallback = true
	return result
}

func formatClock(seconds int) string {
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
