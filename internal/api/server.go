// Package api provides the local HTTP API of pocket-docs.
//
// SYSTEM ARCHITECTURE ROLE:
// The API exposes the template library and document export to local tools
// (scripts, editor plugins, the office intranet page). Every operation is
// executed through commands.CommandExecutor, so the API, the CLI and the TUI
// share validation and error reporting.
//
// MIDDLEWARE STACK:
// - Logging: request method, path, status and duration through zap
// - CORS: permissive headers for browser callers on the same machine
// - Content-Type: JSON by default, overridden by the PDF endpoint
// - Error Handling: panic recovery into a standard error response
// - Validation: RequestValidator checks path, query and body per route
//
// ENDPOINT STRUCTURE:
// - /api/v1/templates: list templates, optionally by category
// - /api/v1/templates/{id}: one template with its body
// - /api/v1/templates/{id}/markers: markers with catalog labels
// - /api/v1/templates/{id}/preview: filled preview HTML
// - /api/v1/templates/{id}/export: filled PDF as an attachment
// - /api/v1/search: fuzzy template search
// - /api/v1/fields: the field catalog
// - /api/v1/history: recent exports
// - /api/v1/health: CRM reachability
// - /api/docs, /api/openapi.json: documentation
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dpshade/pocket-docs/internal/commands"
	"github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/service"
	"github.com/dpshade/pocket-docs/internal/validation"
)

// exportTimeout bounds a single PDF render, which can take a while on a
// cold browser
const exportTimeout = 2 * time.Minute

// APIServer serves the local HTTP API
type APIServer struct {
	service      *service.Service
	executor     *commands.CommandExecutor
	errorHandler *errors.HTTPErrorHandler
	validator    *validation.RequestValidator
	logger       *zap.Logger
	port         int
	server       *http.Server
}

// NewAPIServer creates a new API server instance
func NewAPIServer(svc *service.Service, port int, logger *zap.Logger) *APIServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &APIServer{
		service:      svc,
		executor:     commands.NewCommandExecutor(svc),
		errorHandler: errors.NewHTTPErrorHandler(true, logger),
		validator:    validation.NewRequestValidator(logger),
		logger:       logger,
		port:         port,
	}
}

// Handler returns the routed handler with middleware applied
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/templates", s.withMiddleware(s.handleTemplates))
	mux.HandleFunc("/api/v1/templates/", s.withMiddleware(s.handleTemplatesWithID))
	mux.HandleFunc("/api/v1/search", s.withMiddleware(s.handleSearch))
	mux.HandleFunc("/api/v1/fields", s.withMiddleware(s.handleFields))
	mux.HandleFunc("/api/v1/history", s.withMiddleware(s.handleHistory))
	mux.HandleFunc("/api/v1/health", s.withMiddleware(s.handleHealth))

	mux.HandleFunc("/api/docs", s.withMiddleware(s.handleOpenAPI))
	mux.HandleFunc("/api/openapi.json", s.withMiddleware(s.handleOpenAPISpec))

	return mux
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *APIServer) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: exportTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting",
		zap.String("url", fmt.Sprintf("http://localhost:%d", s.port)),
		zap.String("docs", fmt.Sprintf("http://localhost:%d/api/docs", s.port)))

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server
func (s *APIServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// withMiddleware applies middleware to HTTP handlers
func (s *APIServer) withMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return s.loggingMiddleware(
		s.corsMiddleware(
			s.contentTypeMiddleware(
				s.errorMiddleware(handler),
			),
		),
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func (s *APIServer) loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	}
}

// corsMiddleware handles CORS headers
func (s *APIServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// contentTypeMiddleware sets default content type
func (s *APIServer) contentTypeMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next(w, r)
	}
}

// errorMiddleware handles panics
func (s *APIServer) errorMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in handler",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stack"))
				s.writeError(w, errors.InternalError("Internal server error"))
			}
		}()
		next(w, r)
	}
}

// APIResponse represents a standardized API response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// writeResponse writes a standardized JSON response
func (s *APIServer) writeResponse(w http.ResponseWriter, data interface{}, message string, statusCode int) {
	response := APIResponse{
		Success:   statusCode < 400,
		Data:      data,
		Message:   message,
		Timestamp: time.Now(),
	}

	w.WriteHeader(statusCode)

	jsonData, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		json.NewEncoder(w).Encode(response)
		return
	}

	w.Write(jsonData)
}

// writeError writes an error response using the error handler
func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	s.errorHandler.WriteHTTPError(w, err)
}

func methodNotAllowed(r *http.Request) error {
	return errors.InvalidCommandError(r.URL.Path, fmt.Sprintf("method %s not allowed", r.Method))
}

// run executes a command and writes its result or error
func (s *APIServer) run(w http.ResponseWriter, r *http.Request, command string, params map[string]interface{}) {
	result, ok := s.execute(w, r, command, params)
	if !ok {
		return
	}
	s.writeResponse(w, result.Data, result.Message, http.StatusOK)
}

// execute runs a command and writes the error response on failure
func (s *APIServer) execute(w http.ResponseWriter, r *http.Request, command string, params map[string]interface{}) (*commands.CommandResult, bool) {
	result, err := s.executor.Execute(r.Context(), command, params)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	if !result.Success {
		if cause := result.Err(); cause != nil {
			s.writeError(w, cause)
		} else {
			s.writeError(w, errors.InternalError("Command failed"))
		}
		return nil, false
	}
	return result, true
}

func (s *APIServer) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r))
		return
	}
	s.run(w, r, "list", validation.ValidateQueryParams(r.URL.Query()))
}

// handleTemplatesWithID routes /api/v1/templates/{id}[/action]
func (s *APIServer) handleTemplatesWithID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/templates/"), "/")
	if rest == "" {
		s.writeError(w, errors.ValidationError("Template ID is required"))
		return
	}

	id, action, _ := strings.Cut(rest, "/")

	switch action {
	case "":
		if r.Method != http.MethodGet {
			s.writeError(w, methodNotAllowed(r))
			return
		}
		s.run(w, r, "get", map[string]interface{}{"id": id})
	case "markers":
		if r.Method != http.MethodGet {
			s.writeError(w, methodNotAllowed(r))
			return
		}
		s.run(w, r, "markers", map[string]interface{}{"id": id})
	case "preview":
		if r.Method != http.MethodPost {
			s.writeError(w, methodNotAllowed(r))
			return
		}
		s.validator.ValidateRequest("export_request")(s.handlePreview)(w, r)
	case "export":
		if r.Method != http.MethodPost {
			s.writeError(w, methodNotAllowed(r))
			return
		}
		s.validator.ValidateRequest("export_request")(s.handleExport)(w, r)
	default:
		s.writeError(w, errors.NotFoundError("Route").WithContext("path", r.URL.Path))
	}
}

func (s *APIServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "preview", validation.Validated(r))
}

// handleExport streams the rendered PDF. Nothing is written to the export
// directory; the caller saves the attachment.
func (s *APIServer) handleExport(w http.ResponseWriter, r *http.Request) {
	params := validation.Validated(r)
	delete(params, "out")

	ctx, cancel := context.WithTimeout(r.Context(), exportTimeout)
	defer cancel()

	result, ok := s.execute(w, r.WithContext(ctx), "render", params)
	if !ok {
		return
	}

	doc, ok := result.Data.(commands.RenderedDocument)
	if !ok {
		s.writeError(w, errors.InternalError("unexpected render result"))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": doc.FileName,
	}))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.PDF)))
	w.WriteHeader(http.StatusOK)
	w.Write(doc.PDF)
}

func (s *APIServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r))
		return
	}
	params := validation.ValidateQueryParams(r.URL.Query())
	if params["query"] == nil {
		s.writeError(w, errors.ValidationError("Search query 'q' parameter is required"))
		return
	}
	s.run(w, r, "search", params)
}

func (s *APIServer) handleFields(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r))
		return
	}
	s.run(w, r, "fields", nil)
}

func (s *APIServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r))
		return
	}
	s.run(w, r, "history", validation.ValidateQueryParams(r.URL.Query()))
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, methodNotAllowed(r))
		return
	}
	s.run(w, r, "health", nil)
}
