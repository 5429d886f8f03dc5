// Package debugserver exposes the query cache and its metrics over HTTP
// for inspection while the dashboard runs.
package debugserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/five82/scrapedeck/internal/metrics"
	"github.com/five82/scrapedeck/internal/state"
)

// Server serves /healthz, /metrics and /debug/cache.
type Server struct {
	router  chi.Router
	store   *state.Store
	metrics *metrics.Metrics
	logger  *zap.Logger

	srv *http.Server
	ln  net.Listener
}

// New wires the routes. m may be nil, in which case /metrics is a 404.
func New(store *state.Store, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{store: store, metrics: m, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Route("/debug/cache", func(r chi.Router) {
		r.Get("/", s.cache)
		r.Get("/*", s.cache)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server or httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("debug server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("debug server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for active requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown debug server: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// entryView is the JSON form of a cache entry.
type entryView struct {
	Key          []string  `json:"key"`
	HasData      bool      `json:"has_data"`
	Data         any       `json:"data,omitempty"`
	Error        string    `json:"error,omitempty"`
	FetchStatus  string    `json:"fetch_status"`
	Stale        bool      `json:"stale"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
	ErrorAt      time.Time `json:"error_at,omitzero"`
	FailureCount int       `json:"failure_count"`
	Observers    int       `json:"observers"`
}

// cache lists entries under the key prefix given by the path tail, one key
// part per segment: /debug/cache/jobs/list.
func (s *Server) cache(w http.ResponseWriter, r *http.Request) {
	var prefix state.Key
	if tail := strings.Trim(chi.URLParam(r, "*"), "/"); tail != "" {
		prefix = state.NewKey(strings.Split(tail, "/")...)
	}
	withData := r.URL.Query().Get("data") == "1"

	entries := s.store.Entries(prefix)
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		v := entryView{
			Key:          e.Key,
			HasData:      e.HasData,
			FetchStatus:  e.FetchStatus.String(),
			Stale:        e.Stale,
			UpdatedAt:    e.UpdatedAt,
			ErrorAt:      e.ErrorAt,
			FailureCount: e.FailureCount,
			Observers:    e.Observers,
		}
		if e.Err != nil {
			v.Error = e.Err.Error()
		}
		if withData && e.HasData {
			v.Data = e.Data
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "entries": out})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("debug request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
