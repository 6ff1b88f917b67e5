// Package conflict tracks data conflicts raised during the conversation and
// compiles the user's resolution decisions into an instruction for the
// collaborator.
package conflict

import (
	"strings"
	"time"

	"github.com/factchecker/labdesk/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Registry is a view over the conflicts embedded in a conversation. It holds no
// state of its own; the turn list is the source of truth.
type Registry struct {
	conv *models.Conversation
	now  func() time.Time
}

// NewRegistry creates a registry over conv.
func NewRegistry(conv *models.Conversation) *Registry {
	return &Registry{conv: conv, now: time.Now}
}

// AddConflicts appends one assistant turn per conflict and returns copies of
// the new turns that do not alias the conversation.
func (r *Registry) AddConflicts(conflicts []models.Conflict, provider string) []models.Turn {
	added := make([]models.Turn, 0, len(conflicts))
	for _, c := range conflicts {
		c.Resolved = false
		c.Resolution = ""
		c.ResolvedAt = nil
		c.Applied = false

		turn := models.Turn{
			ID:        uuid.New().String(),
			Role:      models.RoleAssistant,
			Text:      c.Description,
			Conflict:  &c,
			Provider:  provider,
			CreatedAt: r.now(),
		}
		r.conv.Append(turn)

		cp := c
		turn.Conflict = &cp
		added = append(added, turn)
	}
	return added
}

// Unresolved returns, in turn order, every turn whose conflict is still open.
func (r *Registry) Unresolved() []models.Turn {
	var out []models.Turn
	for _, t := range r.conv.Turns {
		if t.Conflict != nil && !t.Conflict.Resolved {
			out = append(out, t)
		}
	}
	return out
}

// MarkResolved records strategy for the conflict in turn turnID. Unknown ids,
// turns without a conflict, already resolved conflicts and invalid strategies
// are ignored. It reports whether anything changed.
func (r *Registry) MarkResolved(turnID string, strategy models.Strategy) bool {
	if !strategy.Valid() {
		return false
	}
	turn := r.conv.Find(turnID)
	if turn == nil || turn.Conflict == nil || turn.Conflict.Resolved {
		return false
	}

	now := r.now()
	turn.Conflict.Resolved = true
	turn.Conflict.Resolution = strategy
	turn.Conflict.ResolvedAt = &now

	log.Info().
		Str("turn_id", turnID).
		Str("strategy", string(strategy)).
		Msg("Conflict resolved")
	return true
}

// Blocks reports whether p, applied to content, would edit the existing text
// of an unresolved conflict.
func (r *Registry) Blocks(p models.PatchRequest, content string) bool {
	for _, t := range r.conv.Turns {
		if t.Conflict != nil && !t.Conflict.Resolved && Targets(*t.Conflict, p.SearchText, content) {
			return true
		}
	}
	return false
}

// MarkApplied flags resolved conflicts whose existing text was replaced by an
// applied patch. content is the text the patch was applied to. It returns the
// number of conflicts updated.
func (r *Registry) MarkApplied(p models.PatchRequest, content string) int {
	n := 0
	for i := range r.conv.Turns {
		c := r.conv.Turns[i].Conflict
		if c == nil || !c.Resolved || c.Applied {
			continue
		}
		if c.Resolution == models.StrategyKeepExisting {
			continue
		}
		if Targets(*c, p.SearchText, content) {
			c.Applied = true
			n++
		}
	}
	return n
}

// Targets reports whether a patch for searchText edits the conflict's existing
// text. A search that contains the whole passage always does. A shorter search
// only does when its first occurrence in content falls inside the passage;
// with no content to look at, any overlap counts.
func Targets(c models.Conflict, searchText, content string) bool {
	existing := strings.TrimSpace(c.ExistingInfo)
	search := strings.TrimSpace(searchText)
	if existing == "" || search == "" {
		return false
	}
	if strings.Contains(search, existing) {
		return true
	}
	if !strings.Contains(existing, search) {
		return false
	}
	if content == "" {
		return true
	}

	at := strings.Index(content, searchText)
	if at < 0 {
		return false
	}
	for from := 0; from < len(content); {
		i := strings.Index(content[from:], existing)
		if i < 0 {
			return false
		}
		start := from + i
		if at >= start && at < start+len(existing) {
			return true
		}
		from = start + 1
	}
	return false
}
