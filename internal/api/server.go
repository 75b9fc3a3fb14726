package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyuha/orbit/internal/ai"
	"github.com/vyuha/orbit/internal/search"
	"github.com/vyuha/orbit/internal/session"
	"github.com/vyuha/orbit/internal/storage"
)

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server is the HTTP API layer in front of a single graph session.
type Server struct {
	session  *session.Session
	sse      *SSEBroadcaster
	mux      *http.ServeMux
	server   *http.Server
	searcher search.Provider
	jobQueue *ai.JobQueue
	store    *storage.Storage

	numResults     int
	searchLimiter  *rate.Limiter
	analyzeLimiter *rate.Limiter
}

// NewServer creates a Server for sess. Graph changes are pushed to sse as
// graph:updated events, and completed analyses are merged into sess.
// Pass nil for searcher or jobQueue when the corresponding provider is not
// configured; their routes then answer 503.
func NewServer(sess *session.Session, sse *SSEBroadcaster, searcher search.Provider, jobQueue *ai.JobQueue) *Server {
	if sse == nil {
		sse = NewSSEBroadcaster()
	}
	s := &Server{
		session:    sess,
		sse:        sse,
		mux:        http.NewServeMux(),
		searcher:   searcher,
		jobQueue:   jobQueue,
		numResults: search.DefaultNumResults,
	}

	// Per-server limiters (not per-IP); both routes call paid upstream APIs.
	s.searchLimiter = rate.NewLimiter(rate.Limit(5), 10)
	s.analyzeLimiter = rate.NewLimiter(rate.Limit(1), 3)

	feed := &graphFeed{hub: s.sse}
	sess.OnChange(func(v session.View) { feed.publish(v) })
	if jobQueue != nil {
		jobQueue.OnComplete(s.applyAnalysis)
	}
	return s
}

// SetStore attaches the response cache so /health can report on it.
func (s *Server) SetStore(store *storage.Storage) {
	s.store = store
}

// SetNumResults sets how many results each search asks for.
func (s *Server) SetNumResults(n int) {
	if n > 0 {
		s.numResults = n
	}
}

// RegisterRoutes wires up every API endpoint.
func (s *Server) RegisterRoutes() {
	// -- Graph state ------------------------------------------------------
	s.mux.HandleFunc("GET /api/graph", s.handleGetGraph)
	s.mux.HandleFunc("PUT /api/graph", s.handleReplaceGraph)
	s.mux.HandleFunc("POST /api/graph/merge", s.handleMergeGraph)
	s.mux.HandleFunc("GET /api/graph/sources", s.handleSources)

	// -- Navigation -------------------------------------------------------
	s.mux.HandleFunc("POST /api/graph/drill/{id}", s.handleDrill)
	s.mux.HandleFunc("POST /api/graph/back", s.handleBack)
	s.mux.HandleFunc("POST /api/graph/reset-view", s.handleResetView)

	// -- Modes and surface events ----------------------------------------
	s.mux.HandleFunc("PUT /api/graph/mode", s.handleSetMode)
	s.mux.HandleFunc("PUT /api/graph/pending-source", s.handleSetPendingSource)
	s.mux.HandleFunc("POST /api/graph/events/node-click", s.handleNodeClick)
	s.mux.HandleFunc("POST /api/graph/events/background-click", s.handleBackgroundClick)
	s.mux.HandleFunc("POST /api/graph/events/node-drag-end", s.handleNodeDragEnd)

	// -- Direct mutations -------------------------------------------------
	s.mux.HandleFunc("POST /api/graph/nodes", s.handleAddNode)
	s.mux.HandleFunc("DELETE /api/graph/nodes/{id}", s.handleRemoveNode)
	s.mux.HandleFunc("POST /api/graph/nodes/{id}/expand", s.handleExpandNode)
	s.mux.HandleFunc("GET /api/graph/nodes/{id}/neighborhood", s.handleNeighborhood)
	s.mux.HandleFunc("POST /api/graph/links", s.handleAddLink)
	s.mux.HandleFunc("PUT /api/graph/highlight", s.handleHighlight)

	// -- Providers (rate-limited) ----------------------------------------
	s.mux.HandleFunc("POST /api/graph/search",
		s.withRateLimit(s.searchLimiter, s.handleSearch))
	s.mux.HandleFunc("POST /api/analyze",
		s.withRateLimit(s.analyzeLimiter, s.handleAnalyze))
	s.mux.HandleFunc("GET /api/analyze/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /api/analyze/jobs/{id}", s.handleJobStatus)

	// -- SSE event stream -------------------------------------------------
	s.mux.HandleFunc("GET /api/events", s.handleSSE)

	// -- Health check -----------------------------------------------------
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.serveFrontend()
}

// serveFrontend registers a static file handler for the browser client.
// It looks for a "web/dist" directory relative to the working directory
// or the executable path. If not found, static serving is skipped.
func (s *Server) serveFrontend() {
	candidates := []string{"web/dist"}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "web", "dist"))
	}

	var distDir string
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			distDir = c
			break
		}
	}
	if distDir == "" {
		slog.Debug("web client dist not found, static files not served")
		return
	}

	absDir, _ := filepath.Abs(distDir)
	slog.Info("serving web client", "dir", absDir)

	distFS := os.DirFS(distDir)
	fileServer := http.FileServerFS(distFS)

	// Serve the SPA: try the file first, fall back to index.html.
	s.mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}
		if f, err := fs.Stat(distFS, path); err == nil && !f.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}

// Handler returns the fully-wrapped http.Handler (middleware chain + mux).
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = recoveryMiddleware(h)
	h = loggingMiddleware(h)
	h = corsMiddleware(h)
	return h
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: SSE streams stay open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":      "ok",
		"service":     "orbit",
		"sse_clients": s.sse.ClientCount(),
		"search":      s.searcher != nil,
		"ai":          s.jobQueue != nil,
	}
	if s.store != nil {
		if stats, err := s.store.Stats(r.Context()); err == nil {
			resp["cache"] = stats
		} else {
			slog.Warn("cache stats unavailable", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

const maxJSONBody = 4 << 20

// writeJSON writes an arbitrary value as JSON with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeData wraps v in the {"data": ...} envelope.
func writeData(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, map[string]interface{}{"data": v})
}

// writeError writes a standardised JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON reads a bounded JSON body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON",
			"invalid request body: "+err.Error())
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// corsMiddleware allows requests from any localhost origin (dev servers).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "http://localhost:5173"
		}

		if strings.HasPrefix(origin, "http://localhost:") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseRecorder captures the status code written by downstream handlers.
// It also implements http.Flusher so SSE streaming works through the
// logging middleware.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher by delegating to the underlying writer.
func (rr *responseRecorder) Flush() {
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// loggingMiddleware logs method, path, duration and status code.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware catches panics and returns a 500 response.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintf(w, `{"error":"internal server error","code":"INTERNAL"}`)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withRateLimit wraps a handler with a token-bucket rate limiter.
// Returns 429 when the limiter is exhausted.
func (s *Server) withRateLimit(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%g", float64(limiter.Limit())))
			w.Header().Set("X-RateLimit-Remaining",
				fmt.Sprintf("%d", int(limiter.Tokens())))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			slog.Warn("rate limit exceeded",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			return
		}
		next(w, r)
	}
}
