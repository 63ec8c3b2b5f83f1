package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jonathan/video-refinery/internal/types"
)

// ClassifyError wraps a provider error in a *types.AnalysisError with the
// narrowest reason it can determine. Already-classified errors pass through.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var analysisErr *types.AnalysisError
	if errors.As(err, &analysisErr) {
		return err
	}

	return &types.AnalysisError{Reason: reasonFor(err), Err: err}
}

func reasonFor(err error) types.AnalysisReason {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return types.ReasonContentPolicy
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ReasonTimeout
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return types.ReasonRateLimit
		case http.StatusGatewayTimeout, http.StatusRequestTimeout:
			return types.ReasonTimeout
		}
		return types.ReasonProvider
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return types.ReasonRateLimit
		case codes.DeadlineExceeded:
			return types.ReasonTimeout
		}
	}
	return types.ReasonProvider
}

func malformed(msg string) error {
	return &types.AnalysisError{Reason: types.ReasonMalformed, Err: fmt.Errorf("%s", msg)}
}
