// Package orchestrator drives the conversation loop between the user, the AI
// collaborator and the report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/factchecker/labdesk/internal/config"
	"github.com/factchecker/labdesk/internal/conflict"
	"github.com/factchecker/labdesk/internal/llm"
	"github.com/factchecker/labdesk/internal/models"
	"github.com/factchecker/labdesk/internal/patch"
	"github.com/factchecker/labdesk/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrEmptyMessage is returned when Submit is called with blank text.
var ErrEmptyMessage = errors.New("message is empty")

// State is the orchestrator's position in the turn cycle.
type State string

const (
	StateIdle     State = "idle"
	StateSending  State = "sending"
	StateApplying State = "applying"
	StateError    State = "error"
)

// Citer turns a source reference into a citation.
type Citer interface {
	Generate(ctx context.Context, source, title, style string) (models.Citation, error)
}

// Options configures the turn loop.
type Options struct {
	HistoryLimit int
	Locale       string
	Timeout      time.Duration
}

// OptionsFrom builds Options from the application configuration.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		HistoryLimit: cfg.Conversation.HistoryLimit,
		Locale:       cfg.Conversation.Locale,
		Timeout:      cfg.LLM.RequestTimeout,
	}
}

// Outcome describes what one submitted turn did.
type Outcome struct {
	UserTurn models.Turn   `json:"user_turn"`
	Replies  []models.Turn `json:"replies"`
	Patches  patch.Result  `json:"patches"`
	// Withheld holds patches held back because they target an open conflict.
	Withheld []models.PatchRequest `json:"withheld,omitempty"`
	Dropped  int                   `json:"dropped_tool_calls,omitempty"`
	Usage    llm.Usage             `json:"usage"`
	Failed   bool                  `json:"failed"`
	Manifest *conflict.Manifest    `json:"manifest,omitempty"`
}

// Orchestrator runs submits against one session.
type Orchestrator struct {
	session *session.Session
	collab  llm.Collaborator
	citer   Citer
	opts    Options

	mu       sync.Mutex
	state    State
	inflight int
	onState  func(State)

	now func() time.Time
}

// New creates an orchestrator. citer may be nil, in which case sources are
// not turned into citations.
func New(sess *session.Session, collab llm.Collaborator, citer Citer, opts Options) *Orchestrator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	return &Orchestrator{
		session: sess,
		collab:  collab,
		citer:   citer,
		opts:    opts,
		state:   StateIdle,
		now:     time.Now,
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	hook := o.onState
	o.mu.Unlock()
	if hook != nil {
		hook(s)
	}
}

func (o *Orchestrator) begin() {
	o.mu.Lock()
	o.inflight++
	o.mu.Unlock()
	o.setState(StateSending)
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.inflight--
	next := StateSending
	if o.inflight == 0 {
		next = StateIdle
	}
	o.mu.Unlock()
	o.setState(next)
}

// Submit sends text to the collaborator and applies its reply. Collaborator
// failures become an error turn and are not returned as errors.
func (o *Orchestrator) Submit(ctx context.Context, text string) (*Outcome, error) {
	return o.submit(ctx, text, nil)
}

// ResolveConflicts compiles the decisions (conflict turn id to strategy) into
// one instruction and submits it. Decisions for unknown or already resolved
// conflicts are ignored; when none remain nothing is sent.
func (o *Orchestrator) ResolveConflicts(ctx context.Context, decisions map[string]models.Strategy) (*Outcome, error) {
	var manifest conflict.Manifest
	var kept []models.Conflict
	o.session.Mutate(func(st *session.State) {
		reg := conflict.NewRegistry(&st.Conversation)
		manifest = conflict.Compile(reg, decisions)
		for _, e := range manifest.Entries {
			if e.Strategy != models.StrategyKeepExisting {
				continue
			}
			if t := st.Conversation.Find(e.TurnID); t != nil && t.Conflict != nil {
				kept = append(kept, *t.Conflict)
			}
		}
	})

	if manifest.Empty() {
		log.Info().Int("decisions", len(decisions)).Msg("No open conflicts matched the decisions")
		return &Outcome{Manifest: &manifest}, nil
	}

	log.Info().
		Int("resolved", len(manifest.Entries)).
		Int("edits_expected", manifest.EditsExpected).
		Msg("Submitting conflict resolutions")

	out, err := o.submit(ctx, manifest.Message, kept)
	if out != nil {
		out.Manifest = &manifest
	}
	return out, err
}

func (o *Orchestrator) submit(ctx context.Context, text string, protected []models.Conflict) (*Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	startTime := o.now()
	out := &Outcome{
		UserTurn: models.Turn{
			ID:        uuid.New().String(),
			Role:      models.RoleUser,
			Text:      text,
			CreatedAt: startTime,
		},
	}

	var req llm.Request
	o.session.Mutate(func(st *session.State) {
		if st.Document != nil {
			req.DocumentText = st.Document.Content
		}
		req.History = st.Conversation.Recent(o.opts.HistoryLimit)
		st.Conversation.Append(out.UserTurn)
	})
	req.NewMessage = text
	req.Locale = o.opts.Locale

	o.begin()
	defer o.finish()

	res, err := o.send(ctx, req)
	if err != nil {
		o.setState(StateError)
		log.Error().Err(err).Str("provider", o.collab.Name()).Msg("Collaborator call failed")

		reply := models.Turn{
			ID:        uuid.New().String(),
			Role:      models.RoleAssistant,
			Text:      llm.UserMessage(err),
			IsError:   true,
			Provider:  o.collab.Name(),
			CreatedAt: o.now(),
		}
		o.session.Mutate(func(st *session.State) {
			st.Conversation.Append(reply)
		})
		out.Replies = []models.Turn{reply}
		out.Failed = true
		return out, nil
	}

	cites := o.citations(ctx, res.Sources)

	o.setState(StateApplying)
	o.session.Mutate(func(st *session.State) {
		o.apply(st, res, cites, protected, out)
	})

	log.Info().
		Str("provider", res.Provider).
		Int("patches_applied", out.Patches.Applied).
		Int("patches_requested", len(res.Patches)).
		Int("patches_withheld", len(out.Withheld)).
		Int("conflicts", len(res.Conflicts)).
		Int("sources", len(res.Sources)).
		Int("tokens", res.Usage.TotalTokens).
		Dur("duration", o.now().Sub(startTime)).
		Msg("Turn complete")

	return out, nil
}

func (o *Orchestrator) send(ctx context.Context, req llm.Request) (*llm.Result, error) {
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}
	res, err := o.collab.SendTurn(ctx, req)
	if err == nil && res == nil {
		err = llm.ErrMalformedResponse
	}
	return res, err
}

// citations resolves sources outside the session lock since title lookups
// may hit the network.
func (o *Orchestrator) citations(ctx context.Context, sources []llm.Source) []models.Citation {
	if o.citer == nil || len(sources) == 0 {
		return nil
	}
	out := make([]models.Citation, 0, len(sources))
	for _, src := range sources {
		c, err := o.citer.Generate(ctx, src.URI, src.Title, "")
		if err != nil {
			log.Warn().Err(err).Str("source", src.URI).Msg("Skipping source")
			continue
		}
		out = append(out, c)
	}
	return out
}

// apply commits one collaborator result. It runs under the session lock, so
// patches always see the latest document content.
func (o *Orchestrator) apply(st *session.State, res *llm.Result, cites []models.Citation, protected []models.Conflict, out *Outcome) {
	reg := conflict.NewRegistry(&st.Conversation)
	out.Usage = res.Usage
	out.Dropped = res.Dropped

	content := ""
	if st.Document != nil {
		content = st.Document.Content
	}

	var allowed []models.PatchRequest
	for _, p := range res.Patches {
		if reg.Blocks(p, content) || targetsAny(res.Conflicts, p, content) || targetsAny(protected, p, content) {
			out.Withheld = append(out.Withheld, p)
			continue
		}
		allowed = append(allowed, p)
	}

	out.Patches = patch.Apply(content, allowed)
	if st.Document != nil && out.Patches.Changed() {
		st.Document.Content = out.Patches.Content
		st.Document.LastModified = o.now()
	}
	for _, p := range out.Patches.AppliedPatches() {
		reg.MarkApplied(p, content)
	}
	if len(out.Withheld) > 0 {
		log.Warn().Int("count", len(out.Withheld)).Msg("Withheld patches targeting open conflicts")
	}

	stored := st.AddCitations(cites...)

	text := res.Text
	if text == "" && out.Patches.Applied > 0 {
		text = fallbackText(out.Patches.Applied, len(res.Patches))
	}
	if text != "" {
		reply := models.Turn{
			ID:        uuid.New().String(),
			Role:      models.RoleAssistant,
			Text:      text,
			Sources:   stored,
			Provider:  res.Provider,
			CreatedAt: o.now(),
		}
		st.Conversation.Append(reply)
		out.Replies = append(out.Replies, reply)
	}

	out.Replies = append(out.Replies, reg.AddConflicts(res.Conflicts, res.Provider)...)
}

func fallbackText(applied, requested int) string {
	return fmt.Sprintf("Updated the report (%d of %d edits applied).", applied, requested)
}

func targetsAny(conflicts []models.Conflict, p models.PatchRequest, content string) bool {
	for _, c := range conflicts {
		if conflict.Targets(c, p.SearchText, content) {
			return true
		}
	}
	return false
}
