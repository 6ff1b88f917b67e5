package llm

import (
	"encoding/json"
	"testing"

	"github.com/factchecker/labdesk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceArgs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]string
		wantErr bool
	}{
		{
			name: "snake case",
			raw:  `{"search_text":"a","replacement_text":"b"}`,
			want: map[string]string{"searchtext": "a", "replacementtext": "b"},
		},
		{
			name: "camel case",
			raw:  `{"searchText":"a","replacementText":"b"}`,
			want: map[string]string{"searchtext": "a", "replacementtext": "b"},
		},
		{
			name: "double encoded",
			raw:  `"{\"search_text\":\"a\"}"`,
			want: map[string]string{"searchtext": "a"},
		},
		{
			name: "scalars stringified",
			raw:  `{"search_text":12.5,"replacement_text":true,"title":null}`,
			want: map[string]string{"searchtext": "12.5", "replacementtext": "true"},
		},
		{name: "empty", raw: ``, wantErr: true},
		{name: "not json", raw: `{search_text:`, wantErr: true},
		{name: "array value", raw: `{"search_text":["a"]}`, wantErr: true},
		{name: "top level array", raw: `["a"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerceArgs(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssemble_RoutesToolCalls(t *testing.T) {
	res := assemble("openai", "  Done.  ", []toolCall{
		{Name: ToolUpdateReport, Args: json.RawMessage(`{"search_text":"99°C","replacement_text":"100°C"}`)},
		{Name: ToolReportConflict, Args: json.RawMessage(`{"existingInfo":"n = 12","newInfo":"n = 14","description":"Sample size","reasoning":"lab notes"}`)},
		{Name: ToolCiteSource, Args: json.RawMessage(`{"uri":"https://example.org/water","title":"Water"}`)},
	})

	assert.Equal(t, "Done.", res.Text)
	assert.Equal(t, "openai", res.Provider)
	assert.Zero(t, res.Dropped)
	assert.Equal(t, []models.PatchRequest{{SearchText: "99°C", ReplacementText: "100°C"}}, res.Patches)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "n = 12", res.Conflicts[0].ExistingInfo)
	assert.Equal(t, "lab notes", res.Conflicts[0].Reasoning)
	assert.False(t, res.Conflicts[0].Resolved)
	assert.Equal(t, []Source{{URI: "https://example.org/water", Title: "Water"}}, res.Sources)
}

func TestAssemble_DropsMalformedCallsIndividually(t *testing.T) {
	res := assemble("gemini", "", []toolCall{
		{Name: ToolUpdateReport, Args: json.RawMessage(`{"replacement_text":"no search"}`)},
		{Name: ToolUpdateReport, Args: json.RawMessage(`not json`)},
		{Name: ToolReportConflict, Args: json.RawMessage(`{"existing_info":"a"}`)},
		{Name: ToolCiteSource, Args: json.RawMessage(`{"uri":"not a url"}`)},
		{Name: "delete_report", Args: json.RawMessage(`{}`)},
		{Name: ToolUpdateReport, Args: json.RawMessage(`{"search_text":"keep","replacement_text":""}`)},
	})

	assert.Equal(t, 5, res.Dropped)
	require.Len(t, res.Patches, 1)
	assert.Equal(t, "keep", res.Patches[0].SearchText)
	assert.Empty(t, res.Patches[0].ReplacementText)
	assert.Empty(t, res.Conflicts)
	assert.Empty(t, res.Sources)
}

func TestToolSpecs_RequiredFields(t *testing.T) {
	names := make(map[string][]string)
	for _, spec := range toolSpecs {
		required, ok := spec.Parameters["required"].([]string)
		require.True(t, ok, spec.Name)
		names[spec.Name] = required
	}

	assert.Equal(t, []string{"search_text", "replacement_text"}, names[ToolUpdateReport])
	assert.Equal(t, []string{"existing_info", "new_info", "description"}, names[ToolReportConflict])
	assert.Equal(t, []string{"uri"}, names[ToolCiteSource])
}
