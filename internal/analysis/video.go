// Package analysis implements the model-backed collaborators of the SEGMENT
// and ENHANCE stages: segmentation, the per-agent passes and the final
// structured video analysis.
package analysis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jonathan/video-refinery/internal/llm"
	"github.com/jonathan/video-refinery/internal/types"
)

// VideoSource opens a stored asset by its storage URI.
type VideoSource interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// providerFileTTL is shorter than the provider's 48h file retention.
const providerFileTTL = 24 * time.Hour

type providerFile struct {
	uri      string
	mimeType string
	at       time.Time
}

// fileResolver uploads stored assets to the model provider once and reuses
// the resulting file URI across the segment, agent and analysis calls.
type fileResolver struct {
	client llm.Client
	source VideoSource
	now    func() time.Time

	mu    sync.Mutex
	files map[string]providerFile
}

func newFileResolver(client llm.Client, source VideoSource) *fileResolver {
	return &fileResolver{
		client: client,
		source: source,
		now:    time.Now,
		files:  make(map[string]providerFile),
	}
}

// resolve returns the provider URI and MIME type for storageURI.
func (f *fileResolver) resolve(ctx context.Context, storageURI string) (providerFile, error) {
	if storageURI == "" {
		return providerFile{}, &types.ValidationError{Field: "storageUri", Message: "job has no stored asset"}
	}

	f.mu.Lock()
	cached, ok := f.files[storageURI]
	f.mu.Unlock()
	if ok && f.now().Sub(cached.at) < providerFileTTL {
		return cached, nil
	}

	rc, err := f.source.Open(ctx, storageURI)
	if err != nil {
		return providerFile{}, &types.TransferError{Op: "open stored asset", Err: err}
	}
	defer func() { _ = rc.Close() }()

	br := bufio.NewReaderSize(rc, 3072)
	head, err := br.Peek(3072)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return providerFile{}, &types.TransferError{Op: "read stored asset", Err: err}
	}
	mimeType := mimetype.Detect(head).String()
	if !strings.HasPrefix(mimeType, "video/") {
		mimeType = "video/mp4"
	}

	uri, err := f.client.UploadVideo(ctx, br, mimeType)
	if err != nil {
		return providerFile{}, fmt.Errorf("failed to upload %s: %w", storageURI, err)
	}

	pf := providerFile{uri: uri, mimeType: mimeType, at: f.now()}
	f.mu.Lock()
	f.files[storageURI] = pf
	f.mu.Unlock()
	return pf, nil
}
