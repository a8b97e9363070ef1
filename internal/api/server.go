// Package api serves the RAG service over HTTP: JSON endpoints for index
// management, plain-text streaming for answers, and the MCP endpoint.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bull/docrag/internal/rag"
)

// Default request values applied before decoding.
const (
	DefaultIndexType    = "basic"
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 200
	DefaultTopK         = 12
)

// Server routes HTTP requests to a rag.Service.
type Server struct {
	service  *rag.Service
	mcp      http.Handler
	validate *validator.Validate
	logger   *slog.Logger
}

// NewServer creates a Server. mcpHandler is mounted at /mcp when non-nil.
func NewServer(service *rag.Service, mcpHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Server{
		service:  service,
		mcp:      mcpHandler,
		validate: validate,
		logger:   logger.With("component", "api"),
	}
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /build-index", s.handleBuildIndex)
	mux.HandleFunc("POST /get-index-names", s.handleIndexNames)
	mux.HandleFunc("POST /delete-index", s.handleDeleteIndex)
	mux.HandleFunc("GET /health", NewHealthHandler(s.service))
	if s.mcp != nil {
		mux.Handle("/mcp", s.mcp)
	}
	return s.withMiddleware(mux)
}

// decode reads an optional JSON body into dst and validates it. Fields
// absent from the body keep the values dst already holds.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must have at least %s item(s)", fe.Field(), fe.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError reports any failure as 500 with a detail message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("Request failed", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Detail: err.Error()})
}
