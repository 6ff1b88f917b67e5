// Package api provides HTTP router setup.
package api

import (
	"net/http"

	"github.com/factchecker/labdesk/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg *config.Config, handler *Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", handler.HealthCheck)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.Server.AuthToken))
			r.Use(RateLimitMiddleware(cfg.RateLimits.RequestsPerMinute))

			r.Get("/session", handler.GetSession)

			r.Route("/document", func(r chi.Router) {
				r.Post("/", handler.UploadDocument)
				r.Put("/", handler.EditDocument)
				r.Delete("/", handler.ResetSession)
				r.Get("/export", handler.ExportDocument)
			})

			r.Post("/messages", handler.SendMessage)

			r.Get("/conflicts", handler.ListConflicts)
			r.Post("/conflicts/resolve", handler.ResolveConflicts)

			r.Post("/citations", handler.AddCitation)
			r.Delete("/citations/{id}", handler.DeleteCitation)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Labdesk - Lab Report Assistant</title>
    <style>
        body { font-family: system-ui, sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; }
        h1 { color: #2563eb; }
        code { background: #f1f5f9; padding: 2px 6px; border-radius: 4px; }
        .endpoint { margin: 10px 0; }
    </style>
</head>
<body>
    <h1>Labdesk API</h1>
    <p>Lab report assistant is running. Use the API endpoints below:</p>

    <h2>Endpoints</h2>
    <div class="endpoint"><code>GET /api/v1/health</code> - Health check</div>
    <div class="endpoint"><code>GET /api/v1/session</code> - Document, conversation and citations</div>
    <div class="endpoint"><code>POST /api/v1/document</code> - Upload a report (multipart field <code>file</code>)</div>
    <div class="endpoint"><code>PUT /api/v1/document</code> - Edit the report text</div>
    <div class="endpoint"><code>DELETE /api/v1/document</code> - Reset the session</div>
    <div class="endpoint"><code>GET /api/v1/document/export?format=html|md|txt</code> - Download the report</div>
    <div class="endpoint"><code>POST /api/v1/messages</code> - Send a message to the assistant</div>
    <div class="endpoint"><code>GET /api/v1/conflicts</code> - Open conflicts</div>
    <div class="endpoint"><code>POST /api/v1/conflicts/resolve</code> - Resolve conflicts</div>
    <div class="endpoint"><code>POST /api/v1/citations</code> - Add a citation</div>
    <div class="endpoint"><code>DELETE /api/v1/citations/{id}</code> - Remove a citation</div>

    <h2>Authentication</h2>
    <p>When <code>server.auth_token</code> is set, use <code>Authorization: Bearer your-token</code> for all requests except health check.</p>
</body>
</html>`))
	})

	return r
}
