package llm

import (
	"fmt"
	"strings"

	"github.com/factchecker/labdesk/internal/models"
)

// chatMessage is a provider-neutral history entry.
type chatMessage struct {
	Role    string // user, assistant
	Content string
}

func buildSystemPrompt(req Request) string {
	locale := req.Locale
	if locale == "" {
		locale = "en"
	}
	doc := req.DocumentText
	if strings.TrimSpace(doc) == "" {
		doc = "(no report loaded)"
	}

	return fmt.Sprintf(`You are a research assistant helping a student research and edit a laboratory report.
Reply in the language of locale %q.

Tools:
- update_report: propose an edit. search_text MUST be copied verbatim from the current report and be long enough to match exactly one place. Never leave search_text empty.
- report_conflict: when information from the user or from your research contradicts the report, do NOT edit it. Report the conflict with the exact existing passage, the new information, a short description and your reasoning. The user decides how it is resolved.
- cite_source: cite each external source you relied on.

Rules:
- Only edit what the user asked for or what a resolution decision requires.
- Keep the report's tone: formal, third person, past tense for methods and results.
- If you make edits, briefly say what you changed.

Current report:
<<<REPORT
%s
REPORT>>>`, locale, doc)
}

// buildMessages renders the history plus the new message. Error turns are
// skipped; conflict turns become a short assistant note.
func buildMessages(req Request) []chatMessage {
	msgs := make([]chatMessage, 0, len(req.History)+1)
	for _, t := range req.History {
		if t.IsError {
			continue
		}
		content := t.Text
		if t.Conflict != nil {
			content = describeConflict(*t.Conflict)
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		role := "user"
		if t.Role == models.RoleAssistant {
			role = "assistant"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: content})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.NewMessage})
	return msgs
}

func describeConflict(c models.Conflict) string {
	status := "awaiting the user's decision"
	if c.Resolved {
		status = "resolved by the user as " + string(c.Resolution)
	}
	return fmt.Sprintf("[Flagged conflict: %s. Report says %q; new information says %q. Status: %s.]",
		c.Description, c.ExistingInfo, c.NewInfo, status)
}

// alternate merges consecutive messages of the same role and drops leading
// assistant messages, for APIs that require strict user/assistant alternation.
func alternate(msgs []chatMessage) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		if len(out) == 0 && m.Role != "user" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
