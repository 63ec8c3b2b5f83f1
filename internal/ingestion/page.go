package ingestion

import (
	"context"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/video-refinery/internal/fetch"
	"github.com/jonathan/video-refinery/internal/types"
)

// PageMetadata derives metadata for non-YouTube sources from the meta tags
// of the page behind the URL. Raw video files yield a metadata record named
// after the file with an unknown duration.
type PageMetadata struct {
	opts           *fetch.Options
	useBrowser     bool
	browserTimeout time.Duration
	logger         *slog.Logger
}

// NewPageMetadata creates a page metadata fetcher. When useBrowser is set,
// pages without a title are re-rendered in a headless browser.
func NewPageMetadata(opts *fetch.Options, useBrowser bool, logger *slog.Logger) *PageMetadata {
	if opts == nil {
		opts = fetch.DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PageMetadata{
		opts:           opts,
		useBrowser:     useBrowser,
		browserTimeout: 30 * time.Second,
		logger:         logger,
	}
}

// FetchMetadata fetches ref.URL and reads its meta tags.
func (p *PageMetadata) FetchMetadata(ctx context.Context, ref types.SourceRef) (*types.VideoMetadata, error) {
	result, err := fetch.URL(ctx, ref.URL, p.opts)
	if err != nil {
		if result != nil && result.StatusCode == 404 {
			return nil, &types.ValidationError{Field: "sourceUrl", Message: "Video not found: " + ref.URL, Err: types.ErrSourceNotFound}
		}
		return nil, &types.TransferError{Op: "page metadata", Err: err}
	}

	if isMediaType(result.ContentType) {
		return fileMetadata(ref.URL), nil
	}

	page, err := fetch.ExtractPageMeta(result.HTML)
	if err != nil {
		return nil, &types.TransferError{Op: "page metadata", Err: err}
	}

	if p.useBrowser && fetch.NeedsBrowser(page) {
		p.logger.Debug("page has no title, falling back to browser rendering", "url", ref.URL)
		html, browserErr := fetch.WithBrowser(ctx, ref.URL, p.browserTimeout, p.logger)
		if browserErr != nil {
			p.logger.Warn("browser rendering failed, using HTTP content", "url", ref.URL, "error", browserErr)
		} else if rendered, err := fetch.ExtractPageMeta(html); err == nil {
			page = rendered
		}
	}

	meta := &types.VideoMetadata{
		Title:        page.Title,
		Description:  CleanDescription(page.Description),
		ChannelTitle: page.SiteName,
		Tags:         page.Tags,
		ThumbnailURL: page.ThumbnailURL,
		PublishedAt:  page.PublishedAt,
	}
	meta.DurationSeconds = parseDuration(page.Duration)
	return meta, nil
}

func isMediaType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "video/") || strings.HasPrefix(ct, "application/octet-stream")
}

func fileMetadata(rawURL string) *types.VideoMetadata {
	name := path.Base(strings.SplitN(rawURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		name = "Untitled video"
	}
	return &types.VideoMetadata{Title: name}
}

// parseDuration accepts whole seconds or an ISO-8601 duration; anything else is 0.
func parseDuration(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
		return n
	}
	if n, err := types.ParseISODuration(raw); err == nil {
		return n
	}
	return 0
}
