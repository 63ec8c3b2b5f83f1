package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/video-refinery/internal/llm"
	"github.com/jonathan/video-refinery/internal/pipeline/steps"
	"github.com/jonathan/video-refinery/internal/prompts"
	"github.com/jonathan/video-refinery/internal/types"
)

type agentPromptData struct {
	Prompt       string
	Title        string
	OutputFormat string
	Previous     []types.AgentOutput
}

// RunAgent executes one ENHANCE agent over the video. Each agent sees the
// notes of the agents that ran before it.
func (g *Gemini) RunAgent(ctx context.Context, agent steps.AgentConfig, in types.AnalysisInput) (types.AgentOutput, error) {
	file, err := g.files.resolve(ctx, in.StorageURI)
	if err != nil {
		return types.AgentOutput{}, err
	}

	data := agentPromptData{
		Prompt:       agent.Prompt,
		OutputFormat: agent.OutputFormat,
		Previous:     in.AgentNotes,
	}
	if in.Metadata != nil {
		data.Title = in.Metadata.Title
	}
	prompt, err := prompts.Render("analysis.json", "agent", data)
	if err != nil {
		return types.AgentOutput{}, fmt.Errorf("failed to render %s prompt: %w", agent.Name, err)
	}

	notes, err := g.client.AnalyzeVideo(ctx, llm.VideoRequest{
		FileURI:  file.uri,
		MIMEType: file.mimeType,
		Prompt:   prompt,
		Tier:     llm.TierStandard,
	})
	if err != nil {
		return types.AgentOutput{}, err
	}
	return types.AgentOutput{Agent: agent.Name, Notes: strings.TrimSpace(notes)}, nil
}
