package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client is an abstraction over the model provider
type Client interface {
	// GenerateJSON generates JSON content using the specified model tier
	GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// AnalyzeVideo runs a multimodal prompt over an uploaded video
	AnalyzeVideo(ctx context.Context, req VideoRequest) (string, error)
	// UploadVideo stores r with the provider and returns a URI usable by AnalyzeVideo
	UploadVideo(ctx context.Context, r io.Reader, mimeType string) (string, error)
	// Embed returns one embedding per input text, in order
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// GetModel returns the underlying provider model for a tier
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	return NewGeminiClient(ctx, config, apiKey)
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

func (c *GeminiClient) model(tier ModelTier, jsonOutput bool) (*genai.GenerativeModel, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(c.config.Temperature)
	if jsonOutput {
		model.ResponseMIMEType = "application/json"
	}
	return model, nil
}

// GenerateJSON generates JSON content using the specified model tier
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	model, err := c.model(tier, true)
	if err != nil {
		return "", err
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", ClassifyError(err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", err
	}
	return CleanJSONBlock(text), nil
}

// VideoRequest is a multimodal prompt over one video file.
type VideoRequest struct {
	FileURI  string // provider file URI from UploadVideo
	MIMEType string
	Prompt   string
	Tier     ModelTier
	JSON     bool // request application/json output and strip fences
}

// AnalyzeVideo sends the video part followed by the prompt.
func (c *GeminiClient) AnalyzeVideo(ctx context.Context, req VideoRequest) (string, error) {
	model, err := c.model(req.Tier, req.JSON)
	if err != nil {
		return "", err
	}
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	resp, err := model.GenerateContent(ctx,
		genai.FileData{MIMEType: mimeType, URI: req.FileURI},
		genai.Text(req.Prompt),
	)
	if err != nil {
		return "", ClassifyError(err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", err
	}
	if req.JSON {
		return CleanJSONBlock(text), nil
	}
	return strings.TrimSpace(text), nil
}

// filePollInterval is how often an uploaded file's processing state is checked.
var filePollInterval = 2 * time.Second

// UploadVideo uploads r through the Files API and blocks until the provider
// has finished processing it.
func (c *GeminiClient) UploadVideo(ctx context.Context, r io.Reader, mimeType string) (string, error) {
	file, err := c.client.UploadFile(ctx, "", r, &genai.UploadFileOptions{MIMEType: mimeType})
	if err != nil {
		return "", ClassifyError(err)
	}

	for file.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return "", ClassifyError(ctx.Err())
		case <-time.After(filePollInterval):
		}
		if file, err = c.client.GetFile(ctx, file.Name); err != nil {
			return "", ClassifyError(err)
		}
	}

	if file.State != genai.FileStateActive {
		return "", ClassifyError(fmt.Errorf("uploaded file %s ended in state %v", file.Name, file.State))
	}
	return file.URI, nil
}

// Embed batches texts through the embedding model.
func (c *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := c.client.EmbeddingModel(c.config.GetEmbeddingModel())
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, ClassifyError(err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}

	out := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

// GetModel returns the model name for a tier
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", malformed("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", malformed("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", malformed("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
