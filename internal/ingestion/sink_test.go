package ingestion

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSink_PutAndOpen(t *testing.T) {
	sink, err := NewLocalSink(t.TempDir())
	require.NoError(t, err)

	uri, err := sink.Put(context.Background(), "raw/job-1.mp4", "video/mp4", strings.NewReader("frames"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))
	assert.True(t, strings.HasSuffix(uri, "/raw/job-1.mp4"))

	rc, err := sink.Open(context.Background(), uri)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("stream broke") }

func TestLocalSink_PartialWriteLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewLocalSink(dir)
	require.NoError(t, err)

	_, err = sink.Put(context.Background(), "raw/job-2.mp4", "video/mp4", io.MultiReader(strings.NewReader("part"), failingReader{}))
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "raw"))
	require.NoError(t, err)
	assert.Empty(t, entries, "no committed or temp files remain")
}

func TestLocalSink_RejectsEscapes(t *testing.T) {
	sink, err := NewLocalSink(t.TempDir())
	require.NoError(t, err)

	_, err = sink.Put(context.Background(), "../outside.mp4", "video/mp4", strings.NewReader("x"))
	assert.Error(t, err)

	_, err = sink.Open(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)

	_, err = sink.Open(context.Background(), "gs://bucket/key")
	assert.Error(t, err)
}

func TestLocalSink_CancelledContext(t *testing.T) {
	sink, err := NewLocalSink(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sink.Put(ctx, "raw/job-3.mp4", "video/mp4", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
