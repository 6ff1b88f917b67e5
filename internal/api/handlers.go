// Package api provides HTTP API handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/factchecker/labdesk/internal/conflict"
	"github.com/factchecker/labdesk/internal/document"
	"github.com/factchecker/labdesk/internal/models"
	"github.com/factchecker/labdesk/internal/orchestrator"
	"github.com/factchecker/labdesk/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// Assistant runs conversation turns against the session.
type Assistant interface {
	State() orchestrator.State
	Submit(ctx context.Context, text string) (*orchestrator.Outcome, error)
	ResolveConflicts(ctx context.Context, decisions map[string]models.Strategy) (*orchestrator.Outcome, error)
}

// Handler contains all HTTP handlers.
type Handler struct {
	session      *session.Session
	orchestrator Assistant
	citer        orchestrator.Citer
	provider     string
	validate     *validator.Validate
}

// NewHandler creates a new handler.
func NewHandler(sess *session.Session, orch Assistant, citer orchestrator.Citer, provider string) *Handler {
	return &Handler{
		session:      sess,
		orchestrator: orch,
		citer:        citer,
		provider:     provider,
		validate:     validator.New(),
	}
}

type messageRequest struct {
	Text string `json:"text" validate:"required,max=20000"`
}

type editRequest struct {
	Content string `json:"content" validate:"max=5000000"`
}

type resolveRequest struct {
	Decisions map[string]models.Strategy `json:"decisions" validate:"required,min=1,dive,keys,required,endkeys,oneof=kept_existing updated_new combined"`
}

type citationRequest struct {
	Source string `json:"source" validate:"required,max=2048"`
	Title  string `json:"title" validate:"max=500"`
	Style  string `json:"style" validate:"omitempty,oneof=apa mla harvard"`
}

type sessionResponse struct {
	Document  *models.Document   `json:"document"`
	Turns     []models.Turn      `json:"turns"`
	Citations []models.Citation  `json:"citations"`
	State     orchestrator.State `json:"state"`
}

// HealthCheck returns the service health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"version":   "1.0.0",
		"provider":  h.provider,
		"state":     h.orchestrator.State(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, response)
}

// GetSession returns the document, conversation and citations.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()
	writeJSON(w, http.StatusOK, sessionResponse{
		Document:  snap.Document,
		Turns:     snap.Turns,
		Citations: snap.Citations,
		State:     h.orchestrator.State(),
	})
}

// UploadDocument extracts an uploaded file and loads it as the report.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, document.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(document.MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	text, err := document.Extract(data, header.Filename)
	if err != nil {
		log.Warn().Err(err).Str("filename", header.Filename).Msg("Document extraction failed")
		status := http.StatusBadRequest
		if errors.Is(err, document.ErrUnsupportedFormat) {
			status = http.StatusUnsupportedMediaType
		}
		writeError(w, status, extractionMessage(err))
		return
	}

	doc := h.session.LoadDocument(header.Filename, text)
	writeJSON(w, http.StatusCreated, doc)
}

func extractionMessage(err error) string {
	switch {
	case errors.Is(err, document.ErrEmptyFile):
		return "The file is empty."
	case errors.Is(err, document.ErrUnsupportedFormat):
		return "This file type is not supported. Upload a .txt, .md or .html file."
	default:
		return "The file appears to be corrupted or is not valid text."
	}
}

// EditDocument replaces the report text with a user edit.
func (h *Handler) EditDocument(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !h.decode(w, r, &req) {
		return
	}

	doc, err := h.session.EditContent(req.Content)
	if errors.Is(err, session.ErrNoDocument) {
		writeError(w, http.StatusNotFound, "No document loaded")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ResetSession discards the document, conversation and citations.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	h.session.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// ExportDocument downloads the report in the requested format.
func (h *Handler) ExportDocument(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()
	if snap.Document == nil {
		writeError(w, http.StatusNotFound, "No document loaded")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = document.FormatHTML
	}
	f, err := document.Export(snap.Document.Content, snap.Document.Name, format)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported export format")
		return
	}

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Filename}))
	w.WriteHeader(http.StatusOK)
	w.Write(f.Data)
}

// SendMessage submits a user message to the assistant.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.orchestrator.Submit(r.Context(), req.Text)
	if errors.Is(err, orchestrator.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, "Message is empty")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Message submit failed")
		writeError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ListConflicts returns the turns holding unresolved conflicts.
func (h *Handler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	var open []models.Turn
	h.session.View(func(st *session.State) {
		for _, t := range conflict.NewRegistry(&st.Conversation).Unresolved() {
			c := *t.Conflict
			t.Conflict = &c
			open = append(open, t)
		}
	})
	if open == nil {
		open = []models.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conflicts": open,
	})
}

// ResolveConflicts applies the user's decisions for open conflicts.
func (h *Handler) ResolveConflicts(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.orchestrator.ResolveConflicts(r.Context(), req.Decisions)
	if err != nil {
		log.Error().Err(err).Msg("Conflict resolution failed")
		writeError(w, http.StatusInternalServerError, "Conflict resolution failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// AddCitation formats and stores a citation.
func (h *Handler) AddCitation(w http.ResponseWriter, r *http.Request) {
	var req citationRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.citer.Generate(r.Context(), req.Source, req.Title, req.Style)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored := h.session.AddCitations(c)
	status := http.StatusCreated
	if stored[0].ID != c.ID {
		status = http.StatusOK
	}
	writeJSON(w, status, stored[0])
}

// DeleteCitation removes a citation.
func (h *Handler) DeleteCitation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.session.DeleteCitation(id) {
		writeError(w, http.StatusNotFound, "Citation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "Invalid field " + fe.Field() + ": failed " + fe.Tag()
	}
	return "Invalid request"
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
