// Package server exposes runs over HTTP: a blocking JSON endpoint, a
// server-sent-events stream, and the MCP tool surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/papapumpkin/xployt/internal/cache"
	"github.com/papapumpkin/xployt/internal/catalog"
	"github.com/papapumpkin/xployt/internal/logging"
	"github.com/papapumpkin/xployt/internal/pipeline"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Runner executes runs. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Stream(ctx context.Context, req pipeline.Request, fn func(pipeline.Event)) (*pipeline.Result, error)
}

// Options wire a Server to the rest of the program.
type Options struct {
	// RunConfig builds the run-scoped settings for a request. Required.
	RunConfig  func(id, path string) pipeline.RunConfig
	Catalog    *catalog.Catalog
	CacheStats func(ctx context.Context) (cache.Stats, error) // nil reports the cache as disabled
	Logger     *slog.Logger
}

// Server serves runs over HTTP and MCP. At most one run per id is in flight.
type Server struct {
	runner Runner
	opts   Options
	log    *slog.Logger

	mu     sync.Mutex
	active map[string]bool
}

// New returns a Server executing runs with runner.
func New(runner Runner, opts Options) *Server {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Server{runner: runner, opts: opts, log: log, active: make(map[string]bool)}
}

// Handler returns the HTTP routes, including the MCP endpoint at /mcp.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /run-pipeline", s.handleRun)
	mux.HandleFunc("POST /run-pipeline-sse", s.handleRunSSE)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.MCP()))
	return mux
}

// runRequest is the body of both run endpoints.
type runRequest struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// runResponse is the JSON body returned by both run endpoints.
type runResponse struct {
	Success bool                     `json:"success"`
	Results []pipeline.ManifestEntry `json:"results,omitempty"`
	Output  string                   `json:"output,omitempty"`
	Message string                   `json:"message,omitempty"`
}

// errBusy is returned when a run with the same id is already in flight.
var errBusy = errors.New("a run with this id is already in progress")

func (s *Server) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[id] {
		return false
	}
	s.active[id] = true
	return true
}

func (s *Server) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// decodeRun parses and validates a run request, writing a 400 on failure.
func decodeRun(w http.ResponseWriter, r *http.Request) (runRequest, bool) {
	var req runRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, runResponse{Message: "invalid request body: " + err.Error()})
		return req, false
	}
	req.ID = strings.TrimSpace(req.ID)
	req.Path = strings.TrimSpace(req.Path)
	if req.ID == "" || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, runResponse{Message: "id and path are required"})
		return req, false
	}
	return req, true
}

// run executes a run. Callers hold the id's lock.
func (s *Server) run(ctx context.Context, id, path string, maxFiles int, fn func(pipeline.Event)) (*pipeline.Result, error) {
	cfg := s.opts.RunConfig(id, path)
	if maxFiles > 0 {
		cfg.MaxFiles = maxFiles
	}
	s.log.Info("run requested", "run", id, "path", path)
	return s.runner.Stream(ctx, pipeline.Request{Config: cfg}, fn)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRun(w, r)
	if !ok {
		return
	}
	if !s.acquire(req.ID) {
		writeJSON(w, http.StatusConflict, runResponse{Message: errBusy.Error()})
		return
	}
	defer s.release(req.ID)

	res, err := s.run(r.Context(), req.ID, req.Path, 0, nil)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, failure(res, err))
		return
	}
	writeJSON(w, http.StatusOK, success(res))
}

func success(res *pipeline.Result) runResponse {
	if len(res.Manifest.Entries) == 0 {
		return runResponse{Success: true, Output: res.Output}
	}
	return runResponse{Success: true, Results: res.Manifest.Entries}
}

func failure(res *pipeline.Result, err error) runResponse {
	out := runResponse{Message: err.Error()}
	var runErr *pipeline.RunError
	if errors.As(err, &runErr) {
		out.Output = runErr.Output
	}
	if res != nil {
		out.Results = res.Manifest.Entries
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
