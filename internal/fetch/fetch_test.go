package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body><h1>Test</h1></body></html>"))
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, server.URL, result.URL)
	assert.Contains(t, result.HTML, "<h1>Test</h1>")
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestURL_InvalidURL(t *testing.T) {
	_, err := URL(context.Background(), "not-a-valid-url", nil)
	require.Error(t, err)

	var fetchErr *Error
	assert.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "invalid URL")
}

func TestURL_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)

	var fetchErr *Error
	assert.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "404")
}

func TestExtractPageMeta_OpenGraph(t *testing.T) {
	html := `
	<html>
		<head>
			<title>Fallback Title</title>
			<meta property="og:title" content="Deploying Go on Cloud Run">
			<meta property="og:description" content="A walkthrough of container deploys.">
			<meta property="og:image" content="https://cdn.example.com/thumb.jpg">
			<meta property="video:duration" content="754">
			<meta property="video:tag" content="go">
			<meta property="video:tag" content="cloud run">
			<meta property="og:site_name" content="Vimeo">
		</head>
		<body><main><p>Body text</p></main></body>
	</html>`

	meta, err := ExtractPageMeta(html)
	require.NoError(t, err)
	assert.Equal(t, "Deploying Go on Cloud Run", meta.Title)
	assert.Equal(t, "A walkthrough of container deploys.", meta.Description)
	assert.Equal(t, "https://cdn.example.com/thumb.jpg", meta.ThumbnailURL)
	assert.Equal(t, "754", meta.Duration)
	assert.Equal(t, []string{"go", "cloud run"}, meta.Tags)
	assert.Equal(t, "Vimeo", meta.SiteName)
	assert.False(t, NeedsBrowser(meta))
}

func TestExtractPageMeta_Fallbacks(t *testing.T) {
	html := `
	<html>
		<head>
			<title>  Plain Title </title>
			<meta name="keywords" content="tutorial, rust ,">
			<meta itemprop="duration" content="PT4M2S">
		</head>
		<body>
			<nav>Navigation</nav>
			<main>
				<p>First paragraph of the page.</p>
				<p>Second paragraph.</p>
			</main>
		</body>
	</html>`

	meta, err := ExtractPageMeta(html)
	require.NoError(t, err)
	assert.Equal(t, "Plain Title", meta.Title)
	assert.Equal(t, "First paragraph of the page.", meta.Description)
	assert.Equal(t, "PT4M2S", meta.Duration)
	assert.Equal(t, []string{"tutorial", "rust"}, meta.Tags)
}

func TestNeedsBrowser(t *testing.T) {
	assert.True(t, NeedsBrowser(nil))
	assert.True(t, NeedsBrowser(&PageMeta{Description: "only a description"}))
	assert.False(t, NeedsBrowser(&PageMeta{Title: "x"}))
}

func TestExtractPageMeta_DescriptionFromMainContent(t *testing.T) {
	html := `
	<html>
		<head><title>Demo</title></head>
		<body>
			<nav>Navigation</nav>
			<article>
				<p>Walkthrough of the deploy script.</p>
			</article>
			<footer>Footer</footer>
		</body>
	</html>`

	meta, err := ExtractPageMeta(html)
	require.NoError(t, err)
	assert.Equal(t, "Walkthrough of the deploy script.", meta.Description)
}

func TestExtractPageMeta_DescriptionFromBody(t *testing.T) {
	meta, err := ExtractPageMeta(`<html><body><nav>Menu</nav><div>Some content here.</div></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Some content here.", meta.Description)
}
