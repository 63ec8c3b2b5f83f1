package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-refinery/internal/types"
)

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	var all strings.Builder
	for _, name := range names {
		body, err := migrationFiles.ReadFile(name)
		require.NoError(t, err)
		all.Write(body)
	}
	schema := all.String()
	for _, table := range []string{"jobs", "job_events", "job_vectors"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Contains(t, schema, "jobs_result_xor_error")
}

func TestEncodeJSONColumns(t *testing.T) {
	cols, err := encodeJSONColumns(&types.Job{})
	require.NoError(t, err)
	assert.Nil(t, cols.metadata, "absent fields are stored as NULL")
	assert.Nil(t, cols.segments)
	assert.Nil(t, cols.result)

	cols, err = encodeJSONColumns(&types.Job{
		Metadata: &types.VideoMetadata{Title: "Intro", DurationSeconds: 90},
		Segments: []types.Segment{{Index: 0, EndSeconds: 90}},
		Result:   &types.AnalysisResult{Summary: types.Summary{Title: "Intro"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Intro","durationSeconds":90,"hasCaptions":false}`, string(cols.metadata))
	assert.Contains(t, string(cols.segments), `"endSeconds":90`)
	assert.Contains(t, string(cols.result), `"title":"Intro"`)
}
