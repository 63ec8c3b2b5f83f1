package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/jonathan/video-refinery/internal/types"
)

func newYouTubeServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/videos"), "unexpected path %s", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestYouTubeMetadata_FetchMetadata(t *testing.T) {
	server := newYouTubeServer(t, `{
		"items": [{
			"id": "abc12345678",
			"snippet": {
				"title": "Build a REST API in Go",
				"description": "In this tutorial   we build an API.",
				"channelTitle": "Gopher Academy",
				"tags": ["go", "api"],
				"publishedAt": "2024-05-01T10:00:00Z",
				"thumbnails": {"high": {"url": "https://i.ytimg.com/hq.jpg"}}
			},
			"contentDetails": {"duration": "PT12M30S", "caption": "true"}
		}]
	}`)

	yt, err := NewYouTubeMetadata(context.Background(), "test-key", nil, option.WithEndpoint(server.URL+"/"))
	require.NoError(t, err)

	meta, err := yt.FetchMetadata(context.Background(), types.SourceRef{Kind: types.SourceYouTube, ID: "abc12345678"})
	require.NoError(t, err)
	assert.Equal(t, "Build a REST API in Go", meta.Title)
	assert.Equal(t, "In this tutorial we build an API.", meta.Description)
	assert.Equal(t, "Gopher Academy", meta.ChannelTitle)
	assert.Equal(t, 750, meta.DurationSeconds)
	assert.True(t, meta.HasCaptions)
	assert.Equal(t, []string{"go", "api"}, meta.Tags)
	assert.Equal(t, "https://i.ytimg.com/hq.jpg", meta.ThumbnailURL)
}

func TestYouTubeMetadata_NotFound(t *testing.T) {
	server := newYouTubeServer(t, `{"items": []}`)

	yt, err := NewYouTubeMetadata(context.Background(), "test-key", nil, option.WithEndpoint(server.URL+"/"))
	require.NoError(t, err)

	_, err = yt.FetchMetadata(context.Background(), types.SourceRef{Kind: types.SourceYouTube, ID: "zzzzzzzzzzz"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrSourceNotFound)
	assert.Equal(t, "validation", types.Kind(err))
	assert.Contains(t, err.Error(), "zzzzzzzzzzz")
}

func TestYouTubeMetadata_MissingID(t *testing.T) {
	yt, err := NewYouTubeMetadata(context.Background(), "test-key", nil, option.WithEndpoint("http://127.0.0.1:1/"))
	require.NoError(t, err)

	_, err = yt.FetchMetadata(context.Background(), types.SourceRef{Kind: types.SourceYouTube})
	assert.Equal(t, "validation", types.Kind(err))
}

func TestNewYouTubeMetadata_RequiresKey(t *testing.T) {
	_, err := NewYouTubeMetadata(context.Background(), "", nil)
	assert.Error(t, err)
}
