package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jonathan/video-refinery/internal/llm"
	"github.com/jonathan/video-refinery/internal/prompts"
	"github.com/jonathan/video-refinery/internal/schemas"
	"github.com/jonathan/video-refinery/internal/types"
	embedded "github.com/jonathan/video-refinery/schemas"
)

// Segment partitions the stored asset. Any response that cannot be turned
// into at least one usable segment degrades to the whole-asset segment;
// only provider faults are returned as errors.
func (g *Gemini) Segment(ctx context.Context, in types.AnalysisInput) ([]types.Segment, error) {
	file, err := g.files.resolve(ctx, in.StorageURI)
	if err != nil {
		return nil, err
	}

	data := map[string]any{"Title": "", "Duration": 0}
	if in.Metadata != nil {
		data["Title"] = in.Metadata.Title
		data["Duration"] = in.Metadata.DurationSeconds
	}
	prompt, err := prompts.Render("analysis.json", "segment", data)
	if err != nil {
		return nil, fmt.Errorf("failed to render segment prompt: %w", err)
	}

	raw, err := g.client.AnalyzeVideo(ctx, llm.VideoRequest{
		FileURI:  file.uri,
		MIMEType: file.mimeType,
		Prompt:   prompt,
		Tier:     llm.TierLite,
		JSON:     true,
	})
	if err != nil {
		return nil, err
	}

	segments, err := parseSegments(raw, in.Metadata)
	if err != nil {
		g.logger.Warn("segmentation degraded to whole asset",
			slog.String("job_id", in.JobID),
			slog.Any("error", err))
		return types.WholeAssetSegment(in.Metadata), nil
	}
	return segments, nil
}

func parseSegments(raw string, meta *types.VideoMetadata) ([]types.Segment, error) {
	schema, err := schemas.Load(embedded.Segments)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(raw); err != nil {
		return nil, err
	}

	var segments []types.Segment
	if err := json.Unmarshal([]byte(raw), &segments); err != nil {
		return nil, fmt.Errorf("failed to decode segments: %w", err)
	}
	return normalizeSegments(segments, meta)
}

// normalizeSegments orders segments, clamps them to the known duration,
// drops empty spans and renumbers the result.
func normalizeSegments(segments []types.Segment, meta *types.VideoMetadata) ([]types.Segment, error) {
	duration := 0
	if meta != nil {
		duration = meta.DurationSeconds
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].StartSeconds < segments[j].StartSeconds
	})

	out := make([]types.Segment, 0, len(segments))
	for _, seg := range segments {
		if duration > 0 && seg.EndSeconds > duration {
			seg.EndSeconds = duration
		}
		if seg.EndSeconds <= seg.StartSeconds {
			continue
		}
		seg.Index = len(out)
		out = append(out, seg)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable segments in %d returned", len(segments))
	}
	return out, nil
}
