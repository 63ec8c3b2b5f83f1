package analysis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/jonathan/video-refinery/internal/llm"
)

type fakeClient struct {
	mu        sync.Mutex
	responses []string
	err       error
	requests  []llm.VideoRequest
	uploads   int
	uploaded  []byte
	uploadErr error

	repairs       []string
	repairPrompts []string
}

func (f *fakeClient) GenerateJSON(_ context.Context, prompt string, _ llm.ModelTier) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repairPrompts = append(f.repairPrompts, prompt)
	if len(f.repairs) == 0 {
		return "", errors.New("no repair queued")
	}
	resp := f.repairs[0]
	f.repairs = f.repairs[1:]
	return resp, nil
}

func (f *fakeClient) AnalyzeVideo(_ context.Context, req llm.VideoRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no response queued")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeClient) UploadVideo(_ context.Context, r io.Reader, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.uploads++
	f.uploaded = data
	return "https://files.example/abc", nil
}

func (f *fakeClient) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (f *fakeClient) GetModel(llm.ModelTier) string { return "fake" }

func (f *fakeClient) Close() error { return nil }

// mp4Header is the start of an ISO base media file.
var mp4Header = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00, 'm', 'p', '4', '2', 'i', 's', 'o', 'm'}

type fakeSource struct {
	data  []byte
	err   error
	opens int
}

func (s *fakeSource) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	s.opens++
	if s.err != nil {
		return nil, s.err
	}
	if !strings.HasPrefix(uri, "file://") && !strings.HasPrefix(uri, "gs://") {
		return nil, errors.New("unsupported uri")
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}
