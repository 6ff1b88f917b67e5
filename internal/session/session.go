// Package session holds the working state of one report editing session and
// persists it through the snapshot store.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/factchecker/labdesk/internal/citation"
	"github.com/factchecker/labdesk/internal/database"
	"github.com/factchecker/labdesk/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrNoDocument is returned by operations that need a loaded report.
var ErrNoDocument = errors.New("no document loaded")

// State is the mutable session data. It is only reachable through View and
// Mutate, which hold the session lock.
type State struct {
	Document     *models.Document
	Conversation models.Conversation
	Citations    []models.Citation
}

// Session guards State with a mutex and tracks unsaved changes.
type Session struct {
	mu       sync.Mutex
	state    State
	rev      uint64
	savedRev uint64

	store database.Store
	key   string
	now   func() time.Time
}

// New creates an empty session persisted under key.
func New(store database.Store, key string) *Session {
	return &Session{store: store, key: key, now: time.Now}
}

// View runs fn with exclusive access to the state without marking it changed.
func (s *Session) View(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// Mutate runs fn with exclusive access to the state and marks it for saving.
func (s *Session) Mutate(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	s.rev++
}

// LoadDocument replaces the report. The conversation is kept.
func (s *Session) LoadDocument(name, content string) models.Document {
	var doc models.Document
	s.Mutate(func(st *State) {
		st.Document = &models.Document{
			Name:            name,
			Content:         content,
			OriginalContent: content,
			LastModified:    s.now(),
		}
		doc = *st.Document
	})
	log.Info().Str("name", name).Int("length", len(content)).Msg("Document loaded")
	return doc
}

// EditContent replaces the report text with a direct user edit.
func (s *Session) EditContent(content string) (models.Document, error) {
	var doc models.Document
	var err error
	s.Mutate(func(st *State) {
		if st.Document == nil {
			err = ErrNoDocument
			return
		}
		st.Document.Content = content
		st.Document.LastModified = s.now()
		doc = *st.Document
	})
	return doc, err
}

// Reset discards the document, conversation and citations.
func (s *Session) Reset() {
	s.Mutate(func(st *State) {
		*st = State{}
	})
	log.Info().Msg("Session reset")
}

// AddCitations records citations, de-duplicated by source. The returned
// slice holds the stored citation for each input, which is the earlier one
// when the source was already cited.
func (s *Session) AddCitations(cs ...models.Citation) []models.Citation {
	var out []models.Citation
	s.Mutate(func(st *State) {
		out = st.AddCitations(cs...)
	})
	return out
}

// AddCitations is Session.AddCitations for callers already inside Mutate.
func (st *State) AddCitations(cs ...models.Citation) []models.Citation {
	index := make(map[string]int, len(st.Citations))
	for i, c := range st.Citations {
		index[citation.Key(c.Source)] = i
	}
	out := make([]models.Citation, 0, len(cs))
	for _, c := range cs {
		k := citation.Key(c.Source)
		if i, ok := index[k]; ok {
			out = append(out, st.Citations[i])
			continue
		}
		index[k] = len(st.Citations)
		st.Citations = append(st.Citations, c)
		out = append(out, c)
	}
	return out
}

// DeleteCitation removes the citation with the given id.
func (s *Session) DeleteCitation(id string) bool {
	found := false
	s.Mutate(func(st *State) {
		for i, c := range st.Citations {
			if c.ID == id {
				st.Citations = append(st.Citations[:i], st.Citations[i+1:]...)
				found = true
				return
			}
		}
	})
	return found
}

// Snapshot returns a deep copy of the current state in persisted form.
func (s *Session) Snapshot() *models.Snapshot {
	var snap *models.Snapshot
	s.View(func(st *State) {
		snap = s.snapshotLocked(st)
	})
	return snap
}

func (s *Session) snapshotLocked(st *State) *models.Snapshot {
	snap := &models.Snapshot{
		Version:   models.SnapshotVersion,
		Turns:     st.Conversation.Recent(-1),
		Citations: append([]models.Citation{}, st.Citations...),
		SavedAt:   s.now(),
	}
	if st.Document != nil {
		doc := *st.Document
		snap.Document = &doc
	}
	return snap
}

// Dirty reports whether there are changes not yet saved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev != s.savedRev
}

// Save writes the current state to the store.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	snap := s.snapshotLocked(&s.state)
	rev := s.rev
	s.mu.Unlock()

	if err := s.store.SaveSnapshot(ctx, s.key, snap); err != nil {
		return err
	}

	s.mu.Lock()
	if rev > s.savedRev {
		s.savedRev = rev
	}
	s.mu.Unlock()

	log.Debug().Str("key", s.key).Int("turns", len(snap.Turns)).Msg("Session saved")
	return nil
}

// Restore replaces the state with the stored snapshot. It reports whether a
// snapshot was found.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	snap, err := s.store.LoadSnapshot(ctx, s.key)
	if err != nil {
		return false, err
	}
	if snap == nil {
		return false, nil
	}

	s.mu.Lock()
	s.state = State{
		Document:     snap.Document,
		Conversation: models.Conversation{Turns: snap.Turns},
		Citations:    citation.Dedup(snap.Citations),
	}
	s.savedRev = s.rev
	s.mu.Unlock()

	log.Info().
		Str("key", s.key).
		Bool("document", snap.Document != nil).
		Int("turns", len(snap.Turns)).
		Int("citations", len(snap.Citations)).
		Msg("Session restored")
	return true, nil
}

// Autosave saves changed state every interval until ctx is done, then saves
// once more.
func (s *Session) Autosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.Dirty() {
				saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := s.Save(saveCtx); err != nil {
					log.Error().Err(err).Msg("Final session save failed")
				}
				cancel()
			}
			return
		case <-ticker.C:
			if !s.Dirty() {
				continue
			}
			if err := s.Save(ctx); err != nil {
				log.Error().Err(err).Msg("Autosave failed")
			}
		}
	}
}
