package ingestion

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxDescriptionRunes bounds the description stored on a job.
const maxDescriptionRunes = 2000

var (
	innerSpace  = regexp.MustCompile(`[ \t]+`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
	trackingURL = regexp.MustCompile(`https?://\S+[?&](utm_[a-z]+|si)=\S*`)
)

// CleanDescription normalizes a provider description: line endings become
// LF, runs of spaces collapse, tracking links are dropped, at most one blank
// line separates paragraphs, and the result is cut to maxDescriptionRunes.
func CleanDescription(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = trackingURL.ReplaceAllString(content, "")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(innerSpace.ReplaceAllString(line, " "))
	}
	content = blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	content = strings.TrimSpace(content)

	return truncateRunes(content, maxDescriptionRunes)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
