package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
)

// Sink is durable storage for raw assets. Put must not commit a partial
// object when r returns an error.
type Sink interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// GCSSink stores assets in a Google Cloud Storage bucket as gs:// URIs.
type GCSSink struct {
	client *storage.Client
	bucket string
}

// NewGCSSink creates a sink using application default credentials.
func NewGCSSink(ctx context.Context, bucket string) (*GCSSink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSSink{client: client, bucket: bucket}, nil
}

// Put streams r into the object at key. Cancelling the writer context on a
// read error aborts the upload.
func (s *GCSSink) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(wctx)
	w.ContentType = contentType
	w.ChunkSize = 8 << 20

	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize %s: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

// Open reads a gs:// URI from this sink's bucket.
func (s *GCSSink) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "gs" {
		return nil, fmt.Errorf("not a gs:// URI: %s", uri)
	}
	r, err := s.client.Bucket(u.Host).Object(strings.TrimPrefix(u.Path, "/")).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", uri, err)
	}
	return r, nil
}

// Close releases the storage client.
func (s *GCSSink) Close() error {
	return s.client.Close()
}

// LocalSink stores assets under a directory as file:// URIs.
type LocalSink struct {
	dir string
}

// NewLocalSink creates the directory if needed.
func NewLocalSink(dir string) (*LocalSink, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalSink{dir: abs}, nil
}

// Put writes r to a temporary file and renames it into place on success.
func (s *LocalSink) Put(ctx context.Context, key, _ string, r io.Reader) (string, error) {
	dest := filepath.Join(s.dir, filepath.FromSlash(key))
	if !strings.HasPrefix(dest, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, readerWithContext(ctx, r)); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", key, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(dest)}).String(), nil
}

// Open reads a file:// URI inside the sink directory.
func (s *LocalSink) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return nil, fmt.Errorf("not a file:// URI: %s", uri)
	}
	p := filepath.FromSlash(u.Path)
	if !strings.HasPrefix(p, s.dir+string(filepath.Separator)) {
		return nil, fmt.Errorf("%s is outside the storage dir", uri)
	}
	return os.Open(p)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
