package patch

import (
	"strings"
	"testing"

	"github.com/factchecker/labdesk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_SingleMatch(t *testing.T) {
	res := Apply("The boiling point is 99°C.", []models.PatchRequest{
		{SearchText: "99°C", ReplacementText: "100°C"},
	})

	assert.Equal(t, "The boiling point is 100°C.", res.Content)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Requested)
	assert.True(t, res.Changed())
}

func TestApply_NoMatchLeavesDocumentUnchanged(t *testing.T) {
	doc := "Km = 2 mM for the enzyme."
	res := Apply(doc, []models.PatchRequest{
		{SearchText: "Vmax = 5", ReplacementText: "Vmax = 7"},
	})

	assert.Equal(t, doc, res.Content)
	assert.Equal(t, 0, res.Applied)
	assert.False(t, res.Changed())
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StatusNotFound, res.Outcomes[0].Status)
}

func TestApply_Sequential(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		patches     []models.PatchRequest
		want        string
		wantApplied int
	}{
		{
			name: "later patch sees earlier edit",
			doc:  "pH 7.0",
			patches: []models.PatchRequest{
				{SearchText: "7.0", ReplacementText: "7.4"},
				{SearchText: "pH 7.4", ReplacementText: "pH 7.4 (buffered)"},
			},
			want:        "pH 7.4 (buffered)",
			wantApplied: 2,
		},
		{
			name: "patch against original snapshot is skipped",
			doc:  "mass 10 g",
			patches: []models.PatchRequest{
				{SearchText: "10 g", ReplacementText: "12 g"},
				{SearchText: "mass 10 g", ReplacementText: "mass 11 g"},
			},
			want:        "mass 12 g",
			wantApplied: 1,
		},
		{
			name: "mixed matching and missing",
			doc:  "A. B. C.",
			patches: []models.PatchRequest{
				{SearchText: "A.", ReplacementText: "Alpha."},
				{SearchText: "Z.", ReplacementText: "Zeta."},
				{SearchText: "C.", ReplacementText: "Gamma."},
			},
			want:        "Alpha. B. Gamma.",
			wantApplied: 2,
		},
		{
			name: "first occurrence only",
			doc:  "trial 1, trial 1",
			patches: []models.PatchRequest{
				{SearchText: "trial 1", ReplacementText: "trial 2"},
			},
			want:        "trial 2, trial 1",
			wantApplied: 1,
		},
		{
			name: "replacement equal to search is not counted",
			doc:  "unchanged",
			patches: []models.PatchRequest{
				{SearchText: "unchanged", ReplacementText: "unchanged"},
			},
			want:        "unchanged",
			wantApplied: 0,
		},
		{
			name: "deletion via empty replacement",
			doc:  "Result: 5 (approx) units",
			patches: []models.PatchRequest{
				{SearchText: " (approx)", ReplacementText: ""},
			},
			want:        "Result: 5 units",
			wantApplied: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Apply(tt.doc, tt.patches)
			assert.Equal(t, tt.want, res.Content)
			assert.Equal(t, tt.wantApplied, res.Applied)
			assert.Equal(t, len(tt.patches), res.Requested)
		})
	}
}

func TestApply_EmptySearchRejected(t *testing.T) {
	doc := "Introduction"
	res := Apply(doc, []models.PatchRequest{
		{SearchText: "", ReplacementText: "INSERTED "},
	})

	assert.Equal(t, doc, res.Content)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, StatusEmptySearch, res.Outcomes[0].Status)
}

func TestApply_AllMatchingPatchesRemoveSearchText(t *testing.T) {
	doc := "alpha beta gamma delta"
	patches := []models.PatchRequest{
		{SearchText: "alpha", ReplacementText: "A"},
		{SearchText: "gamma", ReplacementText: "G"},
		{SearchText: "delta", ReplacementText: "D"},
	}

	res := Apply(doc, patches)
	require.Equal(t, len(patches), res.Applied)
	for _, p := range patches {
		assert.False(t, strings.Contains(res.Content, p.SearchText), p.SearchText)
	}

	again := Apply(res.Content, patches)
	assert.Equal(t, res.Content, again.Content)
	assert.Equal(t, 0, again.Applied)
}

func TestResult_AppliedPatchesAndSummary(t *testing.T) {
	res := Apply("x y", []models.PatchRequest{
		{SearchText: "x", ReplacementText: "1"},
		{SearchText: "q", ReplacementText: "2"},
	})

	assert.Equal(t, "1 of 2 edits applied", res.Summary())
	applied := res.AppliedPatches()
	require.Len(t, applied, 1)
	assert.Equal(t, "x", applied[0].SearchText)
}

func TestApply_EmptyBatch(t *testing.T) {
	res := Apply("text", nil)
	assert.Equal(t, "text", res.Content)
	assert.Equal(t, 0, res.Requested)
	assert.False(t, res.Changed())
}
