package ingestion

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-refinery/internal/types"
)

// mp4Header is the start of an ISO base media file with an isom brand.
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2',
}

func fakeYtDlp(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func readURI(t *testing.T, sink *LocalSink, uri string) string {
	t.Helper()
	rc, err := sink.Open(context.Background(), uri)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestYtDlpTransfer_Streams(t *testing.T) {
	sink, err := NewLocalSink(t.TempDir())
	require.NoError(t, err)

	bin := fakeYtDlp(t, `printf 'video-bytes'`)
	tr := NewYtDlpTransfer(bin, sink, nil)

	uri, err := tr.Transfer(context.Background(), types.SourceRef{Kind: types.SourceYouTube, URL: "https://youtu.be/abc12345678"}, "job-1")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(uri, "raw/job-1.mp4"))
	assert.Equal(t, "video-bytes", readURI(t, sink, uri))
}

func TestYtDlpTransfer_ExitFailure(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewLocalSink(dir)
	require.NoError(t, err)

	bin := fakeYtDlp(t, `printf 'partial'; echo 'ERROR: Video unavailable' >&2; exit 1`)
	tr := NewYtDlpTransfer(bin, sink, nil)

	_, err = tr.Transfer(context.Background(), types.SourceRef{Kind: types.SourceYouTube, URL: "https://youtu.be/abc12345678"}, "job-2")
	require.Error(t, err)
	assert.Equal(t, "transfer", types.Kind(err))
	assert.Contains(t, err.Error(), "Video unavailable")

	_, statErr := os.Stat(filepath.Join(dir, "raw", "job-2.mp4"))
	assert.True(t, os.IsNotExist(statErr), "failed download must not be committed")
}

func TestYtDlpTransfer_MissingBinary(t *testing.T) {
	sink, err := NewLocalSink(t.TempDir())
	require.NoError(t, err)

	tr := NewYtDlpTransfer(filepath.Join(t.TempDir(), "nope"), sink, nil)
	_, err = tr.Transfer(context.Background(), types.SourceRef{URL: "https://youtu.be/abc12345678"}, "job-3")
	assert.Equal(t, "transfer", types.Kind(err))
}

func TestDirectTransfer(t *testing.T) {
	payload := append(append([]byte{}, mp4Header...), []byte(strings.Repeat("x", 5000))...)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/clip":
			_, _ = w.Write(payload)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>not a video</body></html>"))
		case "/flaky":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	sink, err := NewLocalSink(t.TempDir())
	require.NoError(t, err)
	tr := NewDirectTransfer(server.Client(), sink, nil)

	t.Run("video", func(t *testing.T) {
		uri, err := tr.Transfer(context.Background(), types.SourceRef{Kind: types.SourceDirect, URL: server.URL + "/clip"}, "job-4")
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(uri, "raw/job-4.mp4"))
		assert.Equal(t, string(payload), readURI(t, sink, uri), "sniffed bytes are not lost")
	})

	t.Run("not a video", func(t *testing.T) {
		_, err := tr.Transfer(context.Background(), types.SourceRef{URL: server.URL + "/page"}, "job-5")
		assert.Equal(t, "validation", types.Kind(err))
		assert.Contains(t, err.Error(), "unsupported content type")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := tr.Transfer(context.Background(), types.SourceRef{URL: server.URL + "/gone"}, "job-6")
		assert.ErrorIs(t, err, types.ErrSourceNotFound)
	})

	t.Run("upstream error", func(t *testing.T) {
		_, err := tr.Transfer(context.Background(), types.SourceRef{URL: server.URL + "/flaky"}, "job-7")
		assert.Equal(t, "transfer", types.Kind(err))
		assert.True(t, types.Retryable(err))
	})
}
