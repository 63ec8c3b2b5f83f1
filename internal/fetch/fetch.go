// Package fetch retrieves web pages and extracts the video metadata they
// advertise through OpenGraph, schema.org and standard meta tags.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; VideoRefinery/1.0)"

// maxPageBytes caps how much of a page is read.
const maxPageBytes = 4 << 20

// Result holds the raw content from a URL fetch.
type Result struct {
	URL         string
	HTML        string
	ContentType string
	StatusCode  int
}

// Error represents an error during URL fetching.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the fetch behavior.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	Client    *http.Client
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// URL retrieves HTML content from a URL.
func URL(ctx context.Context, urlStr string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{URL: urlStr, Message: "invalid URL", Cause: err}
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to create request", Cause: err}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to read response body", Cause: err}
	}

	result := &Result{
		URL:         urlStr,
		HTML:        string(bodyBytes),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}

	if resp.StatusCode != http.StatusOK {
		return result, &Error{
			URL:     urlStr,
			Message: fmt.Sprintf("HTTP status %d", resp.StatusCode),
		}
	}

	return result, nil
}

// PageMeta is the video-related metadata a page advertises.
type PageMeta struct {
	Title        string
	Description  string
	ThumbnailURL string
	Duration     string // raw value: ISO-8601 or seconds
	Tags         []string
	PublishedAt  string
	SiteName     string
}

// ExtractPageMeta parses HTML and reads OpenGraph, schema.org itemprop and
// plain meta tags, preferring OpenGraph where several are present. When no
// description is advertised the first paragraph of the main content is used.
func ExtractPageMeta(html string) (*PageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	meta := &PageMeta{
		Title: firstNonEmpty(
			metaContent(doc, `meta[property="og:title"]`),
			metaContent(doc, `meta[name="twitter:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Description: firstNonEmpty(
			metaContent(doc, `meta[property="og:description"]`),
			metaContent(doc, `meta[name="description"]`),
		),
		ThumbnailURL: firstNonEmpty(
			metaContent(doc, `meta[property="og:image"]`),
			metaContent(doc, `meta[itemprop="thumbnailUrl"]`),
		),
		Duration: firstNonEmpty(
			metaContent(doc, `meta[property="video:duration"]`),
			metaContent(doc, `meta[property="og:video:duration"]`),
			metaContent(doc, `meta[itemprop="duration"]`),
		),
		PublishedAt: firstNonEmpty(
			metaContent(doc, `meta[property="video:release_date"]`),
			metaContent(doc, `meta[itemprop="uploadDate"]`),
			metaContent(doc, `meta[property="article:published_time"]`),
		),
		SiteName: metaContent(doc, `meta[property="og:site_name"]`),
	}

	doc.Find(`meta[property="video:tag"], meta[property="og:video:tag"]`).Each(func(_ int, s *goquery.Selection) {
		if tag := strings.TrimSpace(s.AttrOr("content", "")); tag != "" {
			meta.Tags = append(meta.Tags, tag)
		}
	})
	if len(meta.Tags) == 0 {
		for _, kw := range strings.Split(metaContent(doc, `meta[name="keywords"]`), ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				meta.Tags = append(meta.Tags, kw)
			}
		}
	}

	if meta.Description == "" {
		text := mainText(doc, defaultTextSelectors())
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[:idx]
		}
		meta.Description = text
	}

	return meta, nil
}

// mainText removes noise elements and returns the text of the first match
// of contentSelectors, falling back to the body element.
func mainText(doc *goquery.Document, contentSelectors []string) string {
	doc.Find("nav, footer, header, script, style, noscript, .ad, .advertisement, .sidebar, .cookie-banner, .popup").Remove()

	var mainContent *goquery.Selection
	for _, selector := range contentSelectors {
		if selection := doc.Find(selector); selection.Length() > 0 {
			mainContent = selection.First()
			break
		}
	}
	if mainContent == nil {
		mainContent = doc.Find("body")
	}

	return cleanWhitespace(mainContent.Text())
}

// defaultTextSelectors locate the main content of a page.
func defaultTextSelectors() []string {
	return []string{
		"main",
		"article",
		".content",
		"#content",
		".main-content",
		"#main-content",
	}
}

func metaContent(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// cleanWhitespace trims every line and drops blank ones.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
