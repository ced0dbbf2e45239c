// Package api exposes the scan flow over HTTP so a kiosk or browser UI can
// drive the camera session and show progress statistics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/dharsanguruparan/FitScan/internal/camera"
	"github.com/dharsanguruparan/FitScan/internal/config"
	"github.com/dharsanguruparan/FitScan/internal/countdown"
	"github.com/dharsanguruparan/FitScan/internal/history"
	"github.com/dharsanguruparan/FitScan/internal/model"
	"github.com/dharsanguruparan/FitScan/internal/platform"
	"github.com/dharsanguruparan/FitScan/internal/queue"
	"github.com/dharsanguruparan/FitScan/internal/repository"
	"github.com/dharsanguruparan/FitScan/internal/session"
)

// Images stores stills and signs links to them. *s3storage.Storage
// implements it.
type Images interface {
	session.ImageStore
	PresignImage(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

// Deps are the collaborators the server wires into every session. Images and
// Queue are optional.
type Deps struct {
	Repo   repository.Scans
	Camera session.Camera
	Images Images
	Queue  queue.Enqueuer
	// NewScheduler defaults to a real-clock countdown using the configured
	// tick interval.
	NewScheduler func() session.Scheduler
}

type userScan struct {
	session *session.Session
	history *history.Store
}

// Server hosts the scan endpoints.
type Server struct {
	cfg  *config.Config
	deps Deps
	ctx  context.Context

	mu    sync.Mutex
	users map[string]*userScan

	server *http.Server
	once   sync.Once
}

// New constructs a Server. ctx bounds background work of every session.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	if deps.NewScheduler == nil {
		interval := cfg.TickInterval
		deps.NewScheduler = func() session.Scheduler { return countdown.New(nil, interval) }
	}
	return &Server{cfg: cfg, deps: deps, ctx: ctx, users: make(map[string]*userScan)}
}

// Handler returns the routed handler, useful for tests.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/users/{user}/scan", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/users/{user}/scan/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/users/{user}/scan/cancel", s.handleCancel).Methods(http.MethodPost)
	r.HandleFunc("/users/{user}/scans", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/users/{user}/scans/{scan}/tryon", s.handleTryOn).Methods(http.MethodPost)
	r.HandleFunc("/users/{user}/session", s.handleEndSession).Methods(http.MethodDelete)
	return corsMiddleware(loggingMiddleware(r))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Handler(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.closeAll()
	}()
	log.Printf("api listening on %s", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// userScan returns the user's scan state, creating it and loading the user's
// history on first use.
func (s *Server) userScan(ctx context.Context, userID, userAgent string) (*userScan, error) {
	s.mu.Lock()
	if us, ok := s.users[userID]; ok {
		s.mu.Unlock()
		return us, nil
	}
	hist := history.NewStore(s.deps.Repo)
	opts := session.Options{
		UserID:       userID,
		Camera:       s.deps.Camera,
		Scheduler:    s.deps.NewScheduler(),
		Saver:        s.deps.Repo,
		History:      hist,
		Constraints:  camera.Constraints{Width: s.cfg.CameraWidth, Height: s.cfg.CameraHeight},
		Duration:     s.cfg.CountdownSeconds,
		Device:       platform.FromUserAgent(userAgent),
		CaptureStill: s.cfg.CaptureStill,
	}
	if s.deps.Images != nil {
		opts.Images = s.deps.Images
	}
	if s.deps.Queue != nil {
		opts.Notifier = queue.NewNotifier(s.deps.Queue)
	}
	sess, err := session.New(s.ctx, opts)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	us := &userScan{session: sess, history: hist}
	s.users[userID] = us
	s.mu.Unlock()

	if err := hist.Load(ctx, userID); err != nil {
		log.Printf("load history for %s: %v", userID, err)
	}
	return us, nil
}

func (s *Server) closeAll() {
	s.mu.Lock()
	users := s.users
	s.users = make(map[string]*userScan)
	s.mu.Unlock()
	for _, us := range users {
		us.session.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	us, err := s.userScan(r.Context(), mux.Vars(r)["user"], r.UserAgent())
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, us.session.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	us, err := s.userScan(r.Context(), mux.Vars(r)["user"], r.UserAgent())
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	if err := us.session.Start(r.Context()); err != nil {
		respondSessionError(w, err, us.session.Snapshot())
		return
	}
	respondJSON(w, http.StatusOK, us.session.Snapshot())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	us, err := s.userScan(r.Context(), mux.Vars(r)["user"], r.UserAgent())
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	if err := us.session.Cancel(); err != nil {
		respondSessionError(w, err, us.session.Snapshot())
		return
	}
	respondJSON(w, http.StatusOK, us.session.Snapshot())
}

type scanView struct {
	model.ScanRecord
	ImageLink string `json:"imageLink,omitempty"`
}

type historyResponse struct {
	Scans []scanView    `json:"scans"`
	Stats history.Stats `json:"stats"`
	Stale bool          `json:"stale,omitempty"`
	Error string        `json:"error,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user"]
	us, err := s.userScan(r.Context(), userID, r.UserAgent())
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	resp := historyResponse{}
	status := http.StatusOK
	if err := us.history.Load(r.Context(), userID); err != nil {
		log.Printf("load history for %s: %v", userID, err)
		// Serve whatever is cached, flagged as stale.
		resp.Stale = true
		resp.Error = "history unavailable"
		status = http.StatusBadGateway
	}
	for _, rec := range us.history.Records() {
		view := scanView{ScanRecord: rec}
		if rec.ImageURL != nil && s.deps.Images != nil {
			if link, err := s.deps.Images.PresignImage(r.Context(), *rec.ImageURL, s.cfg.SignedURLTTL); err == nil {
				view.ImageLink = link
			}
		}
		resp.Scans = append(resp.Scans, view)
	}
	if resp.Scans == nil {
		resp.Scans = []scanView{}
	}
	resp.Stats = us.history.Stats()
	respondJSON(w, status, resp)
}

func (s *Server) handleTryOn(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, scanID := vars["user"], vars["scan"]
	if s.deps.Queue != nil {
		payload := queue.TryOnPayload{UserID: userID, ScanID: scanID}
		if err := queue.EnqueueTryOn(r.Context(), s.deps.Queue, payload); err != nil {
			log.Printf("enqueue try-on: %v", err)
			http.Error(w, "failed to queue try-on", http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	count, err := s.deps.Repo.IncrementTryOn(r.Context(), userID, scanID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "scan not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to record try-on", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"tryOnCount": count})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user"]
	s.mu.Lock()
	us, ok := s.users[userID]
	delete(s.users, userID)
	s.mu.Unlock()
	if ok {
		us.session.Close()
		us.history.Reset()
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error   string           `json:"error"`
	Session session.Snapshot `json:"session"`
}

func respondSessionError(w http.ResponseWriter, err error, snap session.Snapshot) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrCancelled):
		status = http.StatusConflict
	case errors.Is(err, session.ErrNoUser):
		status = http.StatusUnauthorized
	case errors.Is(err, camera.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, camera.ErrDeviceUnavailable):
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, errorResponse{Error: err.Error(), Session: snap})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
