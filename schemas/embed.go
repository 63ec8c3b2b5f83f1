// Package schemas embeds the JSON Schemas that model responses are checked
// against before they are mapped into analysis results.
package schemas

import "embed"

// FS holds every *.schema.json file in this directory.
//
//go:embed *.schema.json
var FS embed.FS

// Schema file names.
const (
	AnalysisResponse = "analysis_response.schema.json"
	Segments         = "segments.schema.json"
)
