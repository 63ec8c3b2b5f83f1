package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "json fence",
			input: "```json\n{\"summary\": {\"title\": \"Deploying to Cloud Run\"}}\n```",
			want:  `{"summary": {"title": "Deploying to Cloud Run"}}`,
		},
		{
			name:  "bare fence",
			input: "```\n[{\"index\": 0, \"endSeconds\": 90}]\n```",
			want:  `[{"index": 0, "endSeconds": 90}]`,
		},
		{
			name:  "fence with language tag",
			input: "```js\n{\"codeArtifacts\": []}\n```",
			want:  `{"codeArtifacts": []}`,
		},
		{
			name:  "already clean",
			input: `{"extractedCapabilities": ["docker"]}`,
			want:  `{"extractedCapabilities": ["docker"]}`,
		},
		{
			name:  "preamble before object",
			input: "I watched the whole video. Here is the analysis:\n\n{\"summary\": {\"title\": \"Intro\"}}",
			want:  `{"summary": {"title": "Intro"}}`,
		},
		{
			name:  "preamble before segment array",
			input: "Segments follow.\n[{\"index\": 0}, {\"index\": 1}]",
			want:  `[{"index": 0}, {"index": 1}]`,
		},
		{
			name:  "trailing chatter",
			input: "{\"generatedWorkflow\": {\"steps\": []}}\n\nLet me know if you want the code too.",
			want:  `{"generatedWorkflow": {"steps": []}}`,
		},
		{
			name:  "braces inside code strings",
			input: "Result: {\"code\": \"func main() { fmt.Println(\\\"}\\\") }\"}",
			want:  `{"code": "func main() { fmt.Println(\"}\") }"}`,
		},
		{
			name:  "no json at all",
			input: "  The video could not be analyzed.  ",
			want:  "The video could not be analyzed.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.input))
		})
	}
}

func TestExtractBalanced(t *testing.T) {
	tests := []struct {
		name  string
		input string
		open  byte
		close byte
		want  string
	}{
		{"object", `{"a": {"b": 1}} tail`, '{', '}', `{"a": {"b": 1}}`},
		{"array of objects", `[{"i": 0}, {"i": 1}] tail`, '[', ']', `[{"i": 0}, {"i": 1}]`},
		{"escaped quote in string", `{"s": "\"{\""}`, '{', '}', `{"s": "\"{\""}`},
		{"unbalanced", `{"a": 1`, '{', '}', ""},
		{"wrong opener", `x{}`, '{', '}', ""},
		{"empty", "", '[', ']', ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractBalanced(tt.input, tt.open, tt.close))
		})
	}
}
