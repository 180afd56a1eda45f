// Package dashboard serves a read-only HTTP API over a cassette directory:
// listing and search through the catalog index, full cassette bodies read
// straight from disk.
package dashboard

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tapedeck/tapedeck/internal/cassette"
	"github.com/tapedeck/tapedeck/internal/catalog"
)

// Server exposes the dashboard API.
type Server struct {
	dir     string
	catalog *catalog.Catalog
	logger  *zap.Logger
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds a dashboard server over dir, indexed by cat.
func New(dir string, cat *catalog.Catalog, opts ...Option) *Server {
	s := &Server{dir: dir, catalog: cat, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/cassettes", s.handleList)
	r.Get("/api/cassettes/*", s.handleShow)
	r.Post("/api/reindex", s.handleReindex)
	s.router = r
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// entryView is the list-item wire shape.
type entryView struct {
	Path        string  `json:"path"`
	SessionID   string  `json:"session_id"`
	RecordedAt  string  `json:"recorded_at"`
	Service     string  `json:"service"`
	Env         string  `json:"env"`
	Method      string  `json:"method"`
	Endpoint    string  `json:"endpoint"`
	Status      int     `json:"status"`
	DurationMS  float64 `json:"duration_ms"`
	TotalEvents int     `json:"total_events"`
	HasError    bool    `json:"has_error"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := catalog.Query{
		Method:     r.URL.Query().Get("method"),
		Endpoint:   r.URL.Query().Get("endpoint"),
		Service:    r.URL.Query().Get("service"),
		Env:        r.URL.Query().Get("env"),
		ErrorsOnly: r.URL.Query().Get("errors_only") == "true",
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		q.Limit = limit
	}

	entries, err := s.catalog.Search(r.Context(), q)
	if err != nil {
		s.logger.Error("catalog search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	views := make([]entryView, len(entries))
	for i, e := range entries {
		views[i] = entryView{
			Path:        e.Path,
			SessionID:   e.SessionID,
			RecordedAt:  e.RecordedAt,
			Service:     e.Service,
			Env:         e.Env,
			Method:      e.Method,
			Endpoint:    e.Endpoint,
			Status:      e.Status,
			DurationMS:  e.DurationMS,
			TotalEvents: e.TotalEvents,
			HasError:    e.HasError,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cassettes": views,
		"count":     len(views),
	})
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	path, ok := s.resolve(name)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid cassette name")
		return
	}

	c, err := cassette.Read(path)
	if err != nil {
		if cassette.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "cassette not found")
			return
		}
		s.logger.Error("cassette read failed", zap.String("path", path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cassette unreadable")
		return
	}
	writeJSON(w, http.StatusOK, c.ToMap())
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	result, err := s.catalog.Index(r.Context(), s.dir)
	if err != nil {
		s.logger.Error("reindex failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reindex failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"indexed":  result.Indexed,
		"skipped":  result.Skipped,
		"problems": result.Problems,
	})
}

// resolve maps a request name to a file under the cassette directory and
// rejects anything that escapes it.
func (s *Server) resolve(name string) (string, bool) {
	if name == "" || strings.Contains(name, "..") {
		return "", false
	}
	path := filepath.Join(s.dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return path, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
