package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openpolitica/proyectos-ley/internal/era"
	"github.com/openpolitica/proyectos-ley/internal/metrics"
	"github.com/openpolitica/proyectos-ley/internal/progress"
)

const requestTimeout = 30 * time.Second

// ReadyCheck reports whether the process can serve jobs.
type ReadyCheck func(ctx context.Context) error

// ProgressSource exposes the live tallies of the runs in flight.
type ProgressSource interface {
	Snapshot() []progress.RunSummary
}

// Server wires HTTP handlers to the era table, the result board and the live
// run tallies.
type Server struct {
	router   chi.Router
	eras     []era.Era
	board    *Board
	progress ProgressSource
	ready    ReadyCheck
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. board and ready
// may be nil.
func NewServer(eras []era.Era, board *Board, ready ReadyCheck, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if board == nil {
		board = NewBoard()
	}
	s := &Server{
		eras:   eras,
		board:  board,
		ready:  ready,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/eras", s.listEras)
		r.Get("/eras/{era}", s.getEra)
		r.Get("/results", s.listResults)
		r.Get("/progress", s.listProgress)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetProgress attaches the source served by /v1/progress. Call it before
// serving.
func (s *Server) SetProgress(src ProgressSource) {
	s.progress = src
}

// Board returns the result board fed by the jobs of this process.
func (s *Server) Board() *Board {
	return s.board
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type eraDTO struct {
	Era      string `json:"era"`
	From     int    `json:"from"`
	To       int    `json:"to"`
	Adapter  string `json:"adapter"`
	ListURL  string `json:"list_url"`
	PageSize int    `json:"page_size"`
	Cache    string `json:"cache"`
	Database string `json:"database"`
}

func toEraDTO(e era.Era) eraDTO {
	return eraDTO{
		Era:      e.String(),
		From:     e.From,
		To:       e.To,
		Adapter:  string(e.Adapter),
		ListURL:  e.ListURL,
		PageSize: e.PageSize,
		Cache:    e.CacheName(),
		Database: e.DatabaseName(),
	}
}

func (s *Server) listEras(w http.ResponseWriter, _ *http.Request) {
	out := make([]eraDTO, 0, len(s.eras))
	for _, e := range s.eras {
		out = append(out, toEraDTO(e))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"eras": out})
}

func (s *Server) getEra(w http.ResponseWriter, r *http.Request) {
	e, err := era.Parse(s.eras, chi.URLParam(r, "era"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	body := map[string]any{"era": toEraDTO(e)}
	if res, ok := s.board.Get(e.Period); ok {
		body["result"] = res
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	results := s.board.List()
	if r.URL.Query().Get("failed") == "true" {
		results = failedOnly(results)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) listProgress(w http.ResponseWriter, _ *http.Request) {
	runs := []progress.RunSummary{}
	if s.progress != nil {
		runs = append(runs, s.progress.Snapshot()...)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
