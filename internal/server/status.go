package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"tgrelay/internal/bans"
	"tgrelay/internal/cron"
	"tgrelay/internal/scheduler"
	"tgrelay/internal/session"
	"tgrelay/pkg/logger"
)

const (
	errCodeNotFound = "NOT_FOUND"
	errCodeInternal = "INTERNAL_ERROR"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Identities   int               `json:"identities"`
	Bans         int               `json:"bans"`
	Interactions int               `json:"interactions"`
	RateStates   int               `json:"rateStates"`
	Queue        scheduler.Stats   `json:"queue"`
	LastSweep    *cron.SweepResult `json:"lastSweep,omitempty"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusDeps are the structures reported by /status. Any field may be nil.
type StatusDeps struct {
	Identities *session.IdentityMap
	Bans       *bans.Registry
	Dedup      *session.Deduplicator
	Limiter    *session.RateLimiter
	Pool       *scheduler.Pool
	Janitor    *cron.Janitor
}

// StatusServer serves the read-only health and status endpoints.
type StatusServer struct {
	httpServer *http.Server
	router     *mux.Router
	deps       StatusDeps
	version    string
	startedAt  time.Time
	log        zerolog.Logger
}

// NewStatusServer creates a status server listening on addr.
func NewStatusServer(addr, version string, deps StatusDeps, log zerolog.Logger) *StatusServer {
	log = logger.Component(log, "status")
	router := mux.NewRouter()

	s := &StatusServer{
		router:    router,
		deps:      deps,
		version:   version,
		startedAt: time.Now(),
		log:       log,
	}

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusNotFound, errCodeNotFound, "no route for "+r.URL.Path)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           recovery(log)(logging(log)(router)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler with middleware applied.
func (s *StatusServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run listens until ctx is cancelled, then shuts the server down.
func (s *StatusServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("status listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *StatusServer) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("status server started")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status shutdown: %w", err)
	}
	s.log.Info().Msg("status server stopped")
	return nil
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp StatusResponse
	d := s.deps
	if d.Identities != nil {
		resp.Identities = d.Identities.Len()
	}
	if d.Bans != nil {
		resp.Bans = d.Bans.Len()
	}
	if d.Dedup != nil {
		resp.Interactions = d.Dedup.Len()
	}
	if d.Limiter != nil {
		resp.RateStates = d.Limiter.Len()
	}
	if d.Pool != nil {
		resp.Queue = d.Pool.Stats()
	}
	if d.Janitor != nil {
		if last := d.Janitor.LastSweep(); !last.At.IsZero() {
			resp.LastSweep = &last
		}
	}
	sendJSON(w, http.StatusOK, resp)
}

// sendJSON writes a JSON response with the given status code.
func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func sendError(w http.ResponseWriter, status int, code, message string) {
	sendJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}
