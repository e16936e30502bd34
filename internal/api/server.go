package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-crawler/internal/coordinator"
	idgen "github.com/JakeFAU/wayback-crawler/internal/id/uuid"
	"github.com/JakeFAU/wayback-crawler/internal/logging"
	"github.com/JakeFAU/wayback-crawler/internal/metrics"
)

const maxURLsPerRequest = 1000

// Controller is the slice of the coordinator the API drives.
type Controller interface {
	Pause()
	Resume()
	Stop()
	AddURLLive(raw string) error
	Snapshot() coordinator.Snapshot
}

// Server wires HTTP handlers to the coordinator and the ledger.
type Server struct {
	router chi.Router
	ctrl   Controller
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. runs may be nil
// when no ledger is configured.
func NewServer(ctrl Controller, runs *RunHandler, logger *zap.Logger) *Server {
	s := &Server{
		ctrl:   ctrl,
		logger: logging.OrNop(logger),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Post("/pause", s.pause)
		r.Post("/resume", s.resume)
		r.Post("/stop", s.stop)
		r.Post("/urls", s.addURLs)
		if runs != nil {
			r.Get("/runs/{run_id}", runs.GetRun)
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) pause(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Pause()
	writeJSON(w, http.StatusAccepted, map[string]string{"state": s.ctrl.Snapshot().State.String()})
}

func (s *Server) resume(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Resume()
	writeJSON(w, http.StatusAccepted, map[string]string{"state": s.ctrl.Snapshot().State.String()})
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"state": s.ctrl.Snapshot().State.String()})
}

type addURLsRequest struct {
	URLs []string `json:"urls"`
}

type rejectedURL struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

func (s *Server) addURLs(w http.ResponseWriter, r *http.Request) {
	var req addURLsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls required")
		return
	}
	if len(req.URLs) > maxURLsPerRequest {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d urls per request", maxURLsPerRequest))
		return
	}

	accepted := make([]string, 0, len(req.URLs))
	var rejected []rejectedURL
	for _, raw := range req.URLs {
		if err := s.ctrl.AddURLLive(raw); err != nil {
			rejected = append(rejected, rejectedURL{URL: raw, Error: err.Error()})
			continue
		}
		accepted = append(accepted, strings.TrimSpace(raw))
	}
	status := http.StatusAccepted
	if len(accepted) == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{
		"accepted": accepted,
		"rejected": rejected,
	})
}

type requestIDKey struct{}

// RequestID returns the request id stored by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = idgen.RequestID()
		}
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
		s.logger.Info("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
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

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
