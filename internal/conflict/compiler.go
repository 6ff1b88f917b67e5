package conflict

import (
	"fmt"
	"strings"

	"github.com/factchecker/labdesk/internal/models"
)

// ManifestEntry is one compiled decision.
type ManifestEntry struct {
	TurnID      string          `json:"turn_id"`
	Strategy    models.Strategy `json:"strategy"`
	Instruction string          `json:"instruction"`
}

// Manifest is the outbound message describing a batch of resolutions.
type Manifest struct {
	Message       string          `json:"message"`
	Entries       []ManifestEntry `json:"entries"`
	EditsExpected int             `json:"edits_expected"`
}

// Empty reports whether no decision was compiled.
func (m Manifest) Empty() bool {
	return len(m.Entries) == 0
}

// Compile turns decisions (conflict turn id to strategy) into a single
// instruction message and marks each compiled conflict resolved. Only conflicts
// that are unresolved at the time of the call are included; decisions for
// unknown, already resolved or conflict-less turns are dropped.
func Compile(reg *Registry, decisions map[string]models.Strategy) Manifest {
	var m Manifest

	for _, turn := range reg.Unresolved() {
		strategy, ok := decisions[turn.ID]
		if !ok || !strategy.Valid() {
			continue
		}
		c := *turn.Conflict
		if !reg.MarkResolved(turn.ID, strategy) {
			continue
		}
		m.Entries = append(m.Entries, ManifestEntry{
			TurnID:      turn.ID,
			Strategy:    strategy,
			Instruction: instructionFor(c, strategy),
		})
		if strategy != models.StrategyKeepExisting {
			m.EditsExpected++
		}
	}

	if m.Empty() {
		return m
	}
	m.Message = render(m)
	return m
}

func instructionFor(c models.Conflict, strategy models.Strategy) string {
	label := c.Description
	if label == "" {
		label = "Unlabelled discrepancy"
	}

	switch strategy {
	case models.StrategyKeepExisting:
		return fmt.Sprintf(
			"[KEEP EXISTING] %s\nLeave the document unchanged for this item. The text %q stays as it is. Do NOT call update_report for this item.",
			label, c.ExistingInfo)
	case models.StrategyUpdateNew:
		return fmt.Sprintf(
			"[UPDATE WITH NEW] %s\nReplace the exact text %q with %q verbatim. Use the existing text as search_text and the new text as replacement_text. Do not rephrase or merge.",
			label, c.ExistingInfo, c.NewInfo)
	case models.StrategyCombine:
		return fmt.Sprintf(
			"[COMBINE] %s\nExisting: %q\nNew: %q\nWrite a single cohesive passage in professional report prose that integrates both pieces of information, then replace the existing text with it. Do not simply concatenate the two statements.",
			label, c.ExistingInfo, c.NewInfo)
	}
	return ""
}

func render(m Manifest) string {
	var sb strings.Builder
	sb.WriteString("CONFLICT RESOLUTION DECISIONS\n")
	sb.WriteString(fmt.Sprintf(
		"The user has resolved %d data conflict(s). Apply every decision below in this single response. "+
			"You MUST issue exactly one update_report tool call for each item marked UPDATE WITH NEW or COMBINE (%d in total). "+
			"Items marked KEEP EXISTING must not produce any edit.\n",
		len(m.Entries), m.EditsExpected))

	for i, e := range m.Entries {
		sb.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, e.Instruction))
	}
	return sb.String()
}
