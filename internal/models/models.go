// Package models defines the core data structures used throughout the application.
package models

import (
	"time"
)

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Strategy is the user's decision for an open conflict.
type Strategy string

const (
	StrategyKeepExisting Strategy = "kept_existing"
	StrategyUpdateNew    Strategy = "updated_new"
	StrategyCombine      Strategy = "combined"
)

// Valid reports whether s is one of the known resolution strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyKeepExisting, StrategyUpdateNew, StrategyCombine:
		return true
	}
	return false
}

// Document is the report being edited.
type Document struct {
	Name            string    `json:"name"`
	Content         string    `json:"content"`
	OriginalContent string    `json:"original_content"`
	LastModified    time.Time `json:"last_modified"`
}

// Conflict is a discrepancy between the document and newly supplied information.
type Conflict struct {
	ExistingInfo string     `json:"existing_info"`
	NewInfo      string     `json:"new_info"`
	Description  string     `json:"description"`
	Reasoning    string     `json:"reasoning,omitempty"`
	Resolved     bool       `json:"resolved"`
	Resolution   Strategy   `json:"resolution,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	// Applied is set once an edit for this conflict actually landed in the document.
	Applied bool `json:"applied"`
}

// PatchRequest is an exact-match find/replace proposed by the collaborator.
type PatchRequest struct {
	SearchText      string `json:"search_text" validate:"required"`
	ReplacementText string `json:"replacement_text"`
}

// Citation is a bibliographic entry attached to the report.
type Citation struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Title     string    `json:"title,omitempty"`
	Formatted string    `json:"formatted"`
	InText    string    `json:"in_text"`
	Style     string    `json:"style"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one entry of the conversation.
type Turn struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	Sources   []Citation `json:"sources,omitempty"`
	Conflict  *Conflict  `json:"conflict,omitempty"`
	IsError   bool       `json:"is_error,omitempty"`
	Provider  string     `json:"provider,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Conversation is the append-only list of turns.
type Conversation struct {
	Turns []Turn `json:"turns"`
}

// Append adds a turn to the end of the conversation.
func (c *Conversation) Append(t Turn) {
	c.Turns = append(c.Turns, t)
}

// Find returns a pointer to the turn with the given id, or nil.
func (c *Conversation) Find(id string) *Turn {
	for i := range c.Turns {
		if c.Turns[i].ID == id {
			return &c.Turns[i]
		}
	}
	return nil
}

// Recent returns a copy of the last n turns. Conflicts are copied too, so the
// result can be read without holding the session lock.
func (c *Conversation) Recent(n int) []Turn {
	start := 0
	if n >= 0 && len(c.Turns) > n {
		start = len(c.Turns) - n
	}
	out := make([]Turn, len(c.Turns)-start)
	copy(out, c.Turns[start:])
	for i := range out {
		if out[i].Conflict != nil {
			cf := *out[i].Conflict
			out[i].Conflict = &cf
		}
	}
	return out
}

// Snapshot is the persisted form of a session.
type Snapshot struct {
	Version   int        `json:"version"`
	Document  *Document  `json:"document,omitempty"`
	Turns     []Turn     `json:"turns"`
	Citations []Citation `json:"citations"`
	SavedAt   time.Time  `json:"saved_at"`
}

// SnapshotVersion is the current persisted schema version.
const SnapshotVersion = 1
