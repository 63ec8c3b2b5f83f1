package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jonathan/video-refinery/internal/types"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason types.AnalysisReason
	}{
		{"blocked", &genai.BlockedError{}, types.ReasonContentPolicy},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), types.ReasonTimeout},
		{"http 429", &googleapi.Error{Code: http.StatusTooManyRequests}, types.ReasonRateLimit},
		{"http 504", &googleapi.Error{Code: http.StatusGatewayTimeout}, types.ReasonTimeout},
		{"http 500", &googleapi.Error{Code: http.StatusInternalServerError}, types.ReasonProvider},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), types.ReasonRateLimit},
		{"grpc deadline", status.Error(codes.DeadlineExceeded, "slow"), types.ReasonTimeout},
		{"plain", errors.New("boom"), types.ReasonProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyError(tt.err)
			var analysisErr *types.AnalysisError
			require.ErrorAs(t, err, &analysisErr)
			assert.Equal(t, tt.reason, analysisErr.Reason)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassifyError_PassThrough(t *testing.T) {
	assert.NoError(t, ClassifyError(nil))

	original := &types.AnalysisError{Reason: types.ReasonMalformed, Err: errors.New("bad")}
	assert.Same(t, original, ClassifyError(original))
}

func TestExtractTextFromResponse_Empty(t *testing.T) {
	_, err := extractTextFromResponse(&genai.GenerateContentResponse{})
	var analysisErr *types.AnalysisError
	require.ErrorAs(t, err, &analysisErr)
	assert.Equal(t, types.ReasonMalformed, analysisErr.Reason)

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text("a"), genai.Text("b")}}}},
	}
	text, err := extractTextFromResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}
