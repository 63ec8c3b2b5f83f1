package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/jonathan/video-refinery/internal/types"
)

// YouTubeMetadata reads video metadata from the YouTube Data API v3.
type YouTubeMetadata struct {
	service *youtube.Service
	logger  *slog.Logger
}

// NewYouTubeMetadata creates a metadata fetcher. Extra client options are
// appended after the API key (tests pass option.WithEndpoint).
func NewYouTubeMetadata(ctx context.Context, apiKey string, logger *slog.Logger, opts ...option.ClientOption) (*YouTubeMetadata, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("YouTube API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := youtube.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return &YouTubeMetadata{service: svc, logger: logger}, nil
}

// FetchMetadata looks up ref.ID. An unknown id yields a *types.ValidationError
// wrapping types.ErrSourceNotFound.
func (y *YouTubeMetadata) FetchMetadata(ctx context.Context, ref types.SourceRef) (*types.VideoMetadata, error) {
	if ref.ID == "" {
		return nil, &types.ValidationError{Field: "sourceUrl", Message: "missing YouTube video id"}
	}

	resp, err := y.service.Videos.List([]string{"snippet", "contentDetails"}).
		Id(ref.ID).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, notFound(ref.ID)
		}
		return nil, &types.TransferError{Op: "youtube metadata", Err: err}
	}
	if len(resp.Items) == 0 {
		return nil, notFound(ref.ID)
	}

	video := resp.Items[0]
	meta := &types.VideoMetadata{}
	if s := video.Snippet; s != nil {
		meta.Title = s.Title
		meta.Description = CleanDescription(s.Description)
		meta.ChannelTitle = s.ChannelTitle
		meta.Tags = s.Tags
		meta.PublishedAt = s.PublishedAt
		if s.Thumbnails != nil {
			switch {
			case s.Thumbnails.High != nil:
				meta.ThumbnailURL = s.Thumbnails.High.Url
			case s.Thumbnails.Default != nil:
				meta.ThumbnailURL = s.Thumbnails.Default.Url
			}
		}
	}
	if cd := video.ContentDetails; cd != nil {
		meta.HasCaptions = cd.Caption == "true"
		if seconds, err := types.ParseISODuration(cd.Duration); err == nil {
			meta.DurationSeconds = seconds
		} else {
			y.logger.Warn("unparseable YouTube duration", "video_id", ref.ID, "duration", cd.Duration)
		}
	}

	y.logger.Debug("fetched YouTube metadata", "video_id", ref.ID, "title", meta.Title, "duration_seconds", meta.DurationSeconds)
	return meta, nil
}

func notFound(id string) error {
	return &types.ValidationError{
		Field:   "sourceUrl",
		Message: fmt.Sprintf("Video not found: %s", id),
		Err:     types.ErrSourceNotFound,
	}
}
