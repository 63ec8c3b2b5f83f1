package ingestion

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-refinery/internal/types"
)

func TestCheckAdmissible(t *testing.T) {
	tests := []struct {
		name     string
		duration int
		errMsg   string
	}{
		{"too short", 10, "Video too short (< 30 seconds)"},
		{"lower bound", 30, ""},
		{"typical", 754, ""},
		{"upper bound", 10800, ""},
		{"too long", 10801, "Video too long (> 3 hours)"},
		{"unknown duration", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := &types.VideoMetadata{Title: "Go tutorial", DurationSeconds: tt.duration}
			err := CheckAdmissible(meta, DefaultLimits(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			var validationErr *types.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.errMsg, validationErr.Message)
			assert.Equal(t, "validation", types.Kind(err))
		})
	}
}

func TestCheckAdmissible_NonActionableWarnsOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	err := CheckAdmissible(&types.VideoMetadata{Title: "Cat compilation", DurationSeconds: 120}, DefaultLimits(), logger)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "may not contain actionable content")
}

func TestCheckAdmissible_NilMetadata(t *testing.T) {
	err := CheckAdmissible(nil, DefaultLimits(), nil)
	assert.Equal(t, "validation", types.Kind(err))
}

func TestDescribeSeconds(t *testing.T) {
	assert.Equal(t, "30 seconds", describeSeconds(30))
	assert.Equal(t, "60 seconds", describeSeconds(60))
	assert.Equal(t, "5 minutes", describeSeconds(300))
	assert.Equal(t, "1 hour", describeSeconds(3600))
	assert.Equal(t, "3 hours", describeSeconds(10800))
	assert.Equal(t, "1 second", describeSeconds(1))
}
