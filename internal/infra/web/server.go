package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"social-pipeline/internal/domain/ports/adapter"
	"social-pipeline/internal/infra/metrics"
	"social-pipeline/internal/usecase"
)

// RunReporter exposes the last finished cycle.
type RunReporter interface {
	LastRun() (usecase.RunSummary, bool)
}

// StatusSources feeds GET /status. Every field is optional.
type StatusSources struct {
	Sessions map[string]adapter.SessionStatus // platform -> sessions
	Runs     RunReporter
	LockMode string // "redis" or "none"
}

type statusResponse struct {
	Sessions map[string]map[string]bool `json:"sessions"`
	LastRun  *usecase.RunSummary        `json:"last_run,omitempty"`
	LockMode string                     `json:"claim_lock"`
	Time     time.Time                  `json:"time"`
}

// Server is the ops HTTP surface: health, metrics and status.
type Server struct {
	src    StatusSources
	apiKey string
	srv    *http.Server
	log    *zerolog.Logger
}

func NewServer(port int, src StatusSources, apiKey string, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "OpsServer").Logger()
	s := &Server{src: src, apiKey: apiKey, log: &l}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the chi router; exported for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(s.log), requestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.With(bearerAuth(s.apiKey)).Get("/status", s.handleStatus)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Sessions: map[string]map[string]bool{},
		LockMode: s.src.LockMode,
		Time:     time.Now().UTC(),
	}
	if resp.LockMode == "" {
		resp.LockMode = "none"
	}
	for platform, st := range s.src.Sessions {
		if st != nil {
			resp.Sessions[platform] = st.Status()
		}
	}
	if s.src.Runs != nil {
		if sum, ok := s.src.Runs.LastRun(); ok {
			resp.LastRun = &sum
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("encode status")
	}
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("ops server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
