// Package steps holds the frozen pipeline tables: the stage definitions, the
// agent catalog, and the task-type routes that fix which agents run in which
// order. Nothing here is mutable at runtime.
package steps

import (
	"fmt"

	"github.com/jonathan/video-refinery/internal/prompts"
	"github.com/jonathan/video-refinery/internal/types"
)

// Agent identifiers.
const (
	AgentVTTA  = "VTTA"
	AgentCSDAA = "CSDAA"
	AgentOFSA  = "OFSA"
)

// Stage categories
const (
	CategoryIngestion = "ingestion"
	CategoryAnalysis  = "analysis"
	CategoryAction    = "action"
)

// StageDefinition defines metadata for a pipeline stage
type StageDefinition struct {
	Name         types.Status `json:"name"`
	Category     string       `json:"category"`
	Dependencies []string     `json:"dependencies"`
	Description  string       `json:"description"`
}

// AgentConfig describes one ENHANCE agent.
type AgentConfig struct {
	Name         string   `json:"name"`
	FullName     string   `json:"fullName"`
	Role         string   `json:"role"`
	Tools        []string `json:"tools"`
	OutputFormat string   `json:"outputFormat"`
	Prompt       string   `json:"-"`
}

var stageRegistry = []StageDefinition{
	{
		Name:         types.StatusIngest,
		Category:     CategoryIngestion,
		Dependencies: []string{},
		Description:  "Resolve the source, fetch metadata, apply admissibility rules and transfer the asset to storage",
	},
	{
		Name:         types.StatusSegment,
		Category:     CategoryAnalysis,
		Dependencies: []string{string(types.StatusIngest)},
		Description:  "Partition the stored asset into semantic segments",
	},
	{
		Name:         types.StatusEnhance,
		Category:     CategoryAnalysis,
		Dependencies: []string{string(types.StatusSegment)},
		Description:  "Run the task type's agent chain and produce the structured analysis",
	},
	{
		Name:         types.StatusAction,
		Category:     CategoryAction,
		Dependencies: []string{string(types.StatusEnhance)},
		Description:  "Vectorize the analysis and run optional issue and webhook actions",
	},
}

var agentConfigs = map[string]AgentConfig{
	AgentVTTA: {
		Name:         AgentVTTA,
		FullName:     "Video Transcription & Timing Agent",
		Role:         "Capture all dialogue and timestamp key events",
		Tools:        []string{"Transcript Generation"},
		OutputFormat: "Timestamped transcript with topic markers",
		Prompt:       prompts.MustGet("agents.json", AgentVTTA),
	},
	AgentCSDAA: {
		Name:         AgentCSDAA,
		FullName:     "Code Structure & Diff Analysis Agent",
		Role:         "Extract terminal commands, errors, and code changes",
		Tools:        []string{"Terminal Output Capture", "Diff Analysis"},
		OutputFormat: "Command logs, code blocks, error-fix pairs",
		Prompt:       prompts.MustGet("agents.json", AgentCSDAA),
	},
	AgentOFSA: {
		Name:         AgentOFSA,
		FullName:     "Output Formatting & Synthesis Agent",
		Role:         "Synthesize and structure output into actionable format",
		Tools:        []string{"Markdown Engine", "Mirrored Version Output"},
		OutputFormat: "Structured analysis JSON",
		Prompt:       prompts.MustGet("agents.json", AgentOFSA),
	},
}

var routes = map[types.TaskType][]string{
	types.TaskTranscription:  {AgentVTTA},
	types.TaskCodeExtraction: {AgentVTTA, AgentCSDAA},
	types.TaskFullAnalysis:   {AgentVTTA, AgentCSDAA, AgentOFSA},
}

// Stages returns a copy of the stage definitions in execution order.
func Stages() []StageDefinition {
	out := make([]StageDefinition, len(stageRegistry))
	for i, def := range stageRegistry {
		def.Dependencies = append([]string{}, def.Dependencies...)
		out[i] = def
	}
	return out
}

// GetAgentChain returns the ordered agents required for taskType.
func GetAgentChain(taskType types.TaskType) ([]string, error) {
	chain, ok := routes[taskType]
	if !ok {
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}
	return append([]string{}, chain...), nil
}

// MustAgentChain is GetAgentChain for task types already validated at submission.
func MustAgentChain(taskType types.TaskType) []string {
	chain, err := GetAgentChain(taskType)
	if err != nil {
		panic(err)
	}
	return chain
}

// Routes returns a copy of the full routing table.
func Routes() map[types.TaskType][]string {
	out := make(map[types.TaskType][]string, len(routes))
	for taskType, chain := range routes {
		out[taskType] = append([]string{}, chain...)
	}
	return out
}

// GetAgentConfig looks up an agent by id.
func GetAgentConfig(agent string) (AgentConfig, bool) {
	cfg, ok := agentConfigs[agent]
	if ok {
		cfg.Tools = append([]string{}, cfg.Tools...)
	}
	return cfg, ok
}

// Agents returns the agent catalog ordered as in the full analysis chain.
func Agents() []AgentConfig {
	var out []AgentConfig
	for _, id := range routes[types.TaskFullAnalysis] {
		cfg, _ := GetAgentConfig(id)
		out = append(out, cfg)
	}
	return out
}
