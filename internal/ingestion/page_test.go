package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-refinery/internal/types"
)

func TestPageMetadata_FetchMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/share/demo":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><head>
				<meta property="og:title" content="Docker walkthrough">
				<meta property="og:description" content="Containerize   a service.">
				<meta property="video:duration" content="PT3M">
				<meta property="og:site_name" content="Loom">
			</head><body></body></html>`))
		case "/files/clip.mp4":
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("binary"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p := NewPageMetadata(nil, false, nil)

	meta, err := p.FetchMetadata(context.Background(), types.SourceRef{Kind: types.SourceLoom, URL: server.URL + "/share/demo"})
	require.NoError(t, err)
	assert.Equal(t, "Docker walkthrough", meta.Title)
	assert.Equal(t, "Containerize a service.", meta.Description)
	assert.Equal(t, 180, meta.DurationSeconds)
	assert.Equal(t, "Loom", meta.ChannelTitle)

	meta, err = p.FetchMetadata(context.Background(), types.SourceRef{Kind: types.SourceDirect, URL: server.URL + "/files/clip.mp4?sig=1"})
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", meta.Title)
	assert.Equal(t, 0, meta.DurationSeconds)

	_, err = p.FetchMetadata(context.Background(), types.SourceRef{Kind: types.SourceDirect, URL: server.URL + "/missing"})
	assert.ErrorIs(t, err, types.ErrSourceNotFound)
}

func TestPageMetadata_Unreachable(t *testing.T) {
	p := NewPageMetadata(nil, false, nil)
	_, err := p.FetchMetadata(context.Background(), types.SourceRef{Kind: types.SourceVimeo, URL: "http://127.0.0.1:1/video"})
	assert.Equal(t, "transfer", types.Kind(err))
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 754, parseDuration("754"))
	assert.Equal(t, 62, parseDuration("PT1M2S"))
	assert.Equal(t, 0, parseDuration(""))
	assert.Equal(t, 0, parseDuration("soon"))
}
