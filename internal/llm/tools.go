package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/factchecker/labdesk/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// Tool names exposed to every provider.
const (
	ToolUpdateReport   = "update_report"
	ToolReportConflict = "report_conflict"
	ToolCiteSource     = "cite_source"
)

type toolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

var toolSpecs = []toolSpec{
	{
		Name:        ToolUpdateReport,
		Description: "Propose an edit to the report by replacing an exact passage with new text.",
		Parameters: objectSchema(map[string]any{
			"search_text":      stringProp("Passage copied verbatim from the current report. Must be long enough to be unique."),
			"replacement_text": stringProp("Text that replaces the passage."),
		}, "search_text", "replacement_text"),
	},
	{
		Name:        ToolReportConflict,
		Description: "Flag a discrepancy between the report and new information instead of editing it. The user decides how to resolve it.",
		Parameters: objectSchema(map[string]any{
			"existing_info": stringProp("The contradicted passage, copied verbatim from the report."),
			"new_info":      stringProp("The new, contradicting information."),
			"description":   stringProp("Short label for the discrepancy, e.g. 'Boiling point of water'."),
			"reasoning":     stringProp("Why the two disagree and which is likely correct."),
		}, "existing_info", "new_info", "description"),
	},
	{
		Name:        ToolCiteSource,
		Description: "Record an external source you relied on so it can be added to the bibliography.",
		Parameters: objectSchema(map[string]any{
			"uri":   stringProp("URL of the source."),
			"title": stringProp("Title of the source, if known."),
		}, "uri"),
	},
}

// toolCall is a provider-neutral tool invocation with raw JSON arguments.
type toolCall struct {
	Name string
	Args json.RawMessage
}

type updateReportArgs struct {
	SearchText      string `validate:"required"`
	ReplacementText string
}

type reportConflictArgs struct {
	ExistingInfo string `validate:"required"`
	NewInfo      string `validate:"required"`
	Description  string `validate:"required,max=300"`
	Reasoning    string
}

type citeSourceArgs struct {
	URI   string `validate:"required,url"`
	Title string
}

var validate = validator.New()

// assemble builds a Result from the reply text and tool calls. Calls with
// malformed arguments are dropped one by one; the rest of the turn survives.
func assemble(provider, text string, calls []toolCall) *Result {
	res := &Result{Text: strings.TrimSpace(text), Provider: provider}

	for _, call := range calls {
		if err := res.addCall(call); err != nil {
			res.Dropped++
			log.Warn().
				Err(err).
				Str("provider", provider).
				Str("tool", call.Name).
				Msg("Dropping malformed tool call")
		}
	}
	return res
}

func (r *Result) addCall(call toolCall) error {
	args, err := coerceArgs(call.Args)
	if err != nil {
		return err
	}

	switch call.Name {
	case ToolUpdateReport:
		a := updateReportArgs{
			SearchText:      args["searchtext"],
			ReplacementText: args["replacementtext"],
		}
		if err := validate.Struct(a); err != nil {
			return err
		}
		r.Patches = append(r.Patches, models.PatchRequest{
			SearchText:      a.SearchText,
			ReplacementText: a.ReplacementText,
		})
	case ToolReportConflict:
		a := reportConflictArgs{
			ExistingInfo: args["existinginfo"],
			NewInfo:      args["newinfo"],
			Description:  args["description"],
			Reasoning:    args["reasoning"],
		}
		if err := validate.Struct(a); err != nil {
			return err
		}
		r.Conflicts = append(r.Conflicts, models.Conflict{
			ExistingInfo: a.ExistingInfo,
			NewInfo:      a.NewInfo,
			Description:  a.Description,
			Reasoning:    a.Reasoning,
		})
	case ToolCiteSource:
		a := citeSourceArgs{URI: args["uri"], Title: args["title"]}
		if err := validate.Struct(a); err != nil {
			return err
		}
		r.Sources = append(r.Sources, Source{URI: a.URI, Title: a.Title})
	default:
		return fmt.Errorf("unknown tool %q", call.Name)
	}
	return nil
}

// coerceArgs decodes tool arguments into a flat string map. Keys are
// normalised (lowercase, no underscores) so search_text and searchText match.
// Arguments encoded as a JSON string are unwrapped first; scalar values of any
// type are stringified.
func coerceArgs(raw json.RawMessage) (map[string]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty tool arguments")
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("invalid tool arguments: %w", err)
		}
		raw = []byte(inner)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		key := strings.ToLower(strings.ReplaceAll(k, "_", ""))
		switch val := v.(type) {
		case string:
			out[key] = val
		case float64:
			out[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(val)
		case nil:
		default:
			return nil, fmt.Errorf("argument %q has unsupported type %T", k, v)
		}
	}
	return out, nil
}
