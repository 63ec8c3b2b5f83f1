package types

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// SourceKind classifies where a video reference points.
type SourceKind string

const (
	SourceYouTube     SourceKind = "youtube"
	SourceDirect      SourceKind = "direct"
	SourceGitHubAsset SourceKind = "github_asset"
	SourceLoom        SourceKind = "loom"
	SourceVimeo       SourceKind = "vimeo"
)

// SourceRef identifies the asset behind a job.
type SourceRef struct {
	Kind SourceKind `json:"kind"`
	URL  string     `json:"url"`
	ID   string     `json:"id,omitempty"`
}

// sourcePatterns are checked in order; the first match wins.
var sourcePatterns = []struct {
	kind    SourceKind
	pattern *regexp.Regexp
}{
	{SourceYouTube, regexp.MustCompile(`(?:youtube\.com|youtu\.be)`)},
	{SourceGitHubAsset, regexp.MustCompile(`github\.com/user-attachments/assets`)},
	{SourceLoom, regexp.MustCompile(`loom\.com`)},
	{SourceVimeo, regexp.MustCompile(`vimeo\.com`)},
}

var youtubeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
}

var isoDurationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// DetectSource derives the source kind from a URL. Anything unrecognized is direct.
func DetectSource(sourceURL string) SourceKind {
	for _, p := range sourcePatterns {
		if p.pattern.MatchString(sourceURL) {
			return p.kind
		}
	}
	return SourceDirect
}

// ExtractYouTubeID returns the 11-character video id embedded in a YouTube URL.
func ExtractYouTubeID(sourceURL string) (string, bool) {
	for _, p := range youtubeIDPatterns {
		if m := p.FindStringSubmatch(sourceURL); len(m) == 2 {
			return m[1], true
		}
	}
	return "", false
}

// ResolveSource validates a submitted URL and derives its kind and source id.
// YouTube sources must carry a well-formed video id; other kinds use the URL itself.
func ResolveSource(sourceURL string) (SourceRef, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	parsed, err := url.Parse(sourceURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return SourceRef{}, &ValidationError{Field: "sourceUrl", Message: "must be an absolute http(s) URL"}
	}

	ref := SourceRef{Kind: DetectSource(sourceURL), URL: sourceURL}
	if ref.Kind == SourceYouTube {
		id, ok := ExtractYouTubeID(sourceURL)
		if !ok {
			return SourceRef{}, &ValidationError{Field: "sourceUrl", Message: "could not extract a YouTube video id"}
		}
		ref.ID = id
	}
	return ref, nil
}

// ParseISODuration converts an ISO-8601 PT#H#M#S duration to seconds.
func ParseISODuration(value string) (int, error) {
	m := isoDurationPattern.FindStringSubmatch(value)
	if m == nil || value == "PT" {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", value)
	}
	total := 0
	for i, mult := range []int{3600, 60, 1} {
		part := m[i+1]
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", value, err)
		}
		total += n * mult
	}
	return total, nil
}
