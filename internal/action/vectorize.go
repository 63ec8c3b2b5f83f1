package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/video-refinery/internal/types"
)

// Chunk kinds stored with each vector.
const (
	ChunkSummary  = "summary"
	ChunkInsight  = "insight"
	ChunkStep     = "workflow_step"
	ChunkArtifact = "code_artifact"
)

// maxEmbedBatch matches the provider's batch limit.
const maxEmbedBatch = 100

// Embedder turns text into embeddings, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists a job's vectors, replacing earlier ones.
type VectorStore interface {
	SaveVectors(ctx context.Context, jobID string, vectors []types.Vector) error
}

// Vectorizer embeds an analysis result and stores the vectors.
type Vectorizer struct {
	embedder Embedder
	store    VectorStore
}

// NewVectorizer creates a Vectorizer.
func NewVectorizer(embedder Embedder, store VectorStore) *Vectorizer {
	return &Vectorizer{embedder: embedder, store: store}
}

// Vectorize embeds the chunks of result and saves them. It returns the
// number of vectors stored. Saving replaces any earlier vectors, so a
// redelivered job does not duplicate them.
func (v *Vectorizer) Vectorize(ctx context.Context, jobID string, result *types.AnalysisResult) (int, error) {
	chunks := Chunks(result)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("analysis result has no content to vectorize")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		batch, err := v.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return 0, fmt.Errorf("failed to embed analysis: %w", err)
		}
		if len(batch) != end-start {
			return 0, &types.AnalysisError{
				Reason: types.ReasonMalformed,
				Err:    fmt.Errorf("expected %d embeddings, got %d", end-start, len(batch)),
			}
		}
		embeddings = append(embeddings, batch...)
	}

	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}
	if err := v.store.SaveVectors(ctx, jobID, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// Chunks splits a result into the texts that are embedded: the summary,
// each insight, each workflow step and each code artifact's purpose.
func Chunks(result *types.AnalysisResult) []types.Vector {
	if result == nil {
		return nil
	}

	var out []types.Vector
	add := func(kind, content string) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		out = append(out, types.Vector{Chunk: len(out), Kind: kind, Content: content})
	}

	summary := result.Summary.Title
	if result.Summary.Description != "" {
		summary += "\n\n" + result.Summary.Description
	}
	add(ChunkSummary, summary)
	for _, insight := range result.ActionableInsights {
		add(ChunkInsight, insight)
	}
	for _, step := range result.GeneratedWorkflow.Steps {
		text := step.Action
		if step.Command != "" {
			text += "\n$ " + step.Command
		}
		add(ChunkStep, text)
	}
	for _, artifact := range result.CodeArtifacts {
		add(ChunkArtifact, fmt.Sprintf("%s (%s): %s", artifact.Filename, artifact.Language, artifact.Purpose))
	}
	return out
}
