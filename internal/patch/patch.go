// Package patch applies exact-match text replacements to a document buffer.
//
// Patches come from the AI collaborator and are untrusted: search text may be
// missing, stale or empty. Mismatches are counted rather than raised, and the
// caller commits the resulting buffer once per batch.
package patch

import (
	"fmt"
	"strings"

	"github.com/factchecker/labdesk/internal/models"
)

// Status is the outcome of a single patch.
type Status string

const (
	StatusApplied     Status = "applied"
	StatusNotFound    Status = "not_found"
	StatusEmptySearch Status = "empty_search"
	StatusNoChange    Status = "no_change"
)

// Outcome records what happened to one patch of a batch.
type Outcome struct {
	Patch  models.PatchRequest `json:"patch"`
	Status Status              `json:"status"`
}

// Result is the outcome of applying a batch.
type Result struct {
	Content   string    `json:"-"`
	Applied   int       `json:"applied"`
	Requested int       `json:"requested"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Changed reports whether any patch modified the buffer.
func (r Result) Changed() bool {
	return r.Applied > 0
}

// Summary returns "N of M edits applied".
func (r Result) Summary() string {
	return fmt.Sprintf("%d of %d edits applied", r.Applied, r.Requested)
}

// AppliedPatches returns the patches that changed the buffer, in order.
func (r Result) AppliedPatches() []models.PatchRequest {
	var out []models.PatchRequest
	for _, o := range r.Outcomes {
		if o.Status == StatusApplied {
			out = append(out, o.Patch)
		}
	}
	return out
}

// Apply runs patches in order, each against the output of the previous one.
// Only the first occurrence of each search text is replaced.
func Apply(content string, patches []models.PatchRequest) Result {
	res := Result{
		Content:   content,
		Requested: len(patches),
		Outcomes:  make([]Outcome, 0, len(patches)),
	}

	for _, p := range patches {
		status := applyOne(&res.Content, p)
		if status == StatusApplied {
			res.Applied++
		}
		res.Outcomes = append(res.Outcomes, Outcome{Patch: p, Status: status})
	}

	return res
}

func applyOne(buf *string, p models.PatchRequest) Status {
	if p.SearchText == "" {
		return StatusEmptySearch
	}
	idx := strings.Index(*buf, p.SearchText)
	if idx < 0 {
		return StatusNotFound
	}
	next := (*buf)[:idx] + p.ReplacementText + (*buf)[idx+len(p.SearchText):]
	if next == *buf {
		return StatusNoChange
	}
	*buf = next
	return StatusApplied
}
