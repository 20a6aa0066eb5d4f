package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/mutker/stepperctl/internal/archive"
	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/logger"
	"codeberg.org/mutker/stepperctl/internal/telemetry"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 5 * time.Second

// Server exposes motor health, archived datasets and metrics over HTTP
type Server struct {
	snapshots *Snapshots
	repo      archive.Repository
	metrics   http.Handler
	router    *mux.Router
	log       logger.Logger
}

// NewServer wires the routes. metrics may be nil to leave /metrics unrouted.
func NewServer(snapshots *Snapshots, repo archive.Repository, metrics http.Handler, log logger.Logger) *Server {
	s := &Server{
		snapshots: snapshots,
		repo:      repo,
		metrics:   metrics,
		router:    mux.NewRouter(),
		log:       log,
	}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/motors/{id:[0-9]+}/context", s.handleMotorContext).Methods(http.MethodGet)
	v1.HandleFunc("/datasets", s.handleListDatasets).Methods(http.MethodGet)
	v1.HandleFunc("/datasets/{id:[0-9]+}", s.handleGetDataset).Methods(http.MethodGet)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	s.router.Use(s.loggingMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errFactory := errors.New()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.log.Info().Str("listen", addr).Msg("API server started")

	select {
	case err := <-errCh:
		return errFactory.Wrap(ErrServe, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(ErrShutdown, err)
	}

	s.log.Info().Msg("API server stopped")

	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// Response helpers
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data}); err != nil {
		s.log.Debug().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message}); err != nil {
		s.log.Debug().Err(err).Msg("Failed to write response")
	}
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	motors := s.snapshots.Health()

	status := "healthy"
	views := make([]healthView, 0, len(motors))
	for _, h := range motors {
		if h.OverheadExceeded || h.TimingDegraded {
			status = "degraded"
		}
		views = append(views, newHealthView(h))
	}

	s.respondJSON(w, http.StatusOK, struct {
		Status string       `json:"status"`
		Motors []healthView `json:"motors"`
	}{
		Status: status,
		Motors: views,
	})
}

func (s *Server) handleMotorContext(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid motor id")
		return
	}

	c, ok := s.snapshots.Context(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "motor not found")
		return
	}

	s.respondJSON(w, http.StatusOK, newContextView(id, c))
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	motor := -1
	if v := r.URL.Query().Get("motor"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid motor id")
			return
		}
		motor = id
	}

	summaries, err := s.repo.List(r.Context(), motor)
	if err != nil {
		s.log.Error().Err(err).Int("motor", motor).Msg("Failed to list datasets")
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, summaries)
}

// handleGetDataset streams the archived run in its export format
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid dataset id")
		return
	}

	ds, err := s.repo.Load(r.Context(), id)
	switch {
	case errors.HasCode(err, archive.ErrDataSetNotFound), errors.HasCode(err, archive.ErrArchiveDisabled):
		s.respondError(w, http.StatusNotFound, "dataset not found")
		return
	case errors.HasCode(err, archive.ErrChecksumMismatch):
		s.respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !ds.DataValid {
		s.respondError(w, http.StatusUnprocessableEntity, "dataset holds no valid samples")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := telemetry.WriteJSON(w, ds); err != nil {
		s.log.Debug().Err(err).Int64("dataset", id).Msg("Failed to write dataset")
	}
}
