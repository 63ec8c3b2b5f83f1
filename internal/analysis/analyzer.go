package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/video-refinery/internal/llm"
	"github.com/jonathan/video-refinery/internal/prompts"
	"github.com/jonathan/video-refinery/internal/schemas"
	"github.com/jonathan/video-refinery/internal/types"
	embedded "github.com/jonathan/video-refinery/schemas"
)

// Gemini runs segmentation, the ENHANCE agents and the final analysis
// against a multimodal model. One instance shares uploaded files between the
// three calls.
type Gemini struct {
	client llm.Client
	files  *fileResolver
	logger *slog.Logger
}

// NewGemini creates the model-backed collaborators. source opens the assets
// the INGEST stage stored.
func NewGemini(client llm.Client, source VideoSource, logger *slog.Logger) *Gemini {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{
		client: client,
		files:  newFileResolver(client, source),
		logger: logger,
	}
}

type analysisPromptData struct {
	TaskType   types.TaskType
	Title      string
	Duration   string
	Segments   []types.Segment
	AgentNotes []types.AgentOutput
}

// Analyze produces the structured result for a job. A response that is not
// JSON gets one text-only reformatting pass; if that fails too it is kept as
// a raw-text summary rather than failing the job. Provider faults are
// returned as *types.AnalysisError.
func (g *Gemini) Analyze(ctx context.Context, in types.AnalysisInput) (*types.AnalysisResult, error) {
	file, err := g.files.resolve(ctx, in.StorageURI)
	if err != nil {
		return nil, err
	}

	data := analysisPromptData{
		TaskType:   in.TaskType,
		Segments:   in.Segments,
		AgentNotes: in.AgentNotes,
	}
	if in.Metadata != nil {
		data.Title = in.Metadata.Title
		data.Duration = (time.Duration(in.Metadata.DurationSeconds) * time.Second).String()
	}
	prompt, err := prompts.Render("analysis.json", "video-analysis", data)
	if err != nil {
		return nil, fmt.Errorf("failed to render analysis prompt: %w", err)
	}

	start := time.Now()
	raw, err := g.client.AnalyzeVideo(ctx, llm.VideoRequest{
		FileURI:  file.uri,
		MIMEType: file.mimeType,
		Prompt:   prompt,
		Tier:     llm.TierAdvanced,
		JSON:     true,
	})
	if err != nil {
		return nil, err
	}
	g.logger.Debug("analysis response received",
		slog.String("job_id", in.JobID),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("bytes", len(raw)))

	result, ok := g.parse(in, raw)
	if !ok {
		if repaired := g.repair(ctx, in, raw); repaired != nil {
			result = repaired
		}
	}
	result.StorageURI = in.StorageURI
	result.Segments = append([]types.Segment{}, in.Segments...)
	if filled := result.Backfill(in.Metadata); len(filled) > 0 {
		g.logger.Info("analysis result backfilled",
			slog.String("job_id", in.JobID),
			slog.Any("fields", filled))
	}
	return result, nil
}

// parse maps raw onto a result. ok is false when raw could not be decoded
// and the raw-text fallback was used.
func (g *Gemini) parse(in types.AnalysisInput, raw string) (result *types.AnalysisResult, ok bool) {
	schema, err := schemas.Load(embedded.AnalysisResponse)
	if err != nil {
		g.logger.Error("analysis schema unavailable", slog.Any("error", err))
	} else if err := schema.Validate(raw); err != nil {
		var schemaErr *schemas.ValidationError
		if !errors.As(err, &schemaErr) {
			g.logger.Warn("analysis response is not JSON",
				slog.String("job_id", in.JobID))
			return fallbackResult(raw, in.Metadata), false
		}
		g.logger.Warn("analysis response does not match schema",
			slog.String("job_id", in.JobID),
			slog.Int("violations", len(schemaErr.Errors)),
			slog.String("first", schemaErr.Errors[0].Field+": "+schemaErr.Errors[0].Message))
	}

	var resp rawResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		g.logger.Warn("failed to decode analysis response",
			slog.String("job_id", in.JobID),
			slog.Any("error", err))
		return fallbackResult(raw, in.Metadata), false
	}
	return resp.toResult(in.Metadata), true
}

// repair asks the model to restate an undecodable response in the expected
// JSON shape. It returns nil when that does not yield a decodable result.
func (g *Gemini) repair(ctx context.Context, in types.AnalysisInput, raw string) *types.AnalysisResult {
	prompt, err := prompts.Render("analysis.json", "repair-json", struct{ Response string }{Response: raw})
	if err != nil {
		g.logger.Error("failed to render repair prompt", slog.Any("error", err))
		return nil
	}
	out, err := g.client.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		g.logger.Warn("analysis repair failed, using raw text",
			slog.String("job_id", in.JobID),
			slog.Any("error", err))
		return nil
	}
	result, ok := g.parse(in, out)
	if !ok {
		return nil
	}
	g.logger.Info("analysis response repaired", slog.String("job_id", in.JobID))
	return result
}
