// Package server exposes the JSON API over net/http. Routing uses the
// stdlib mux; request logging goes through zap. Error mapping is
// uniform: validation failures are 400s, missing records are 404s,
// anything else is a 500.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"flock/internal/service"
	"flock/internal/store"
)

type Server struct {
	svc  *service.Service
	log  *zap.Logger
	http *http.Server
}

func New(addr string, svc *service.Service, log *zap.Logger) *Server {
	s := &Server{svc: svc, log: log}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.logged(s.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /timeline", s.handleTimeline)
	mux.HandleFunc("POST /content", s.handleCreateContent)
	mux.HandleFunc("POST /content/{id}/like", s.handleLike)
	mux.HandleFunc("POST /ai/tick", s.handleTick)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /users", s.handleUsers)
	mux.HandleFunc("GET /dashboard/{user_id}", s.handleDashboard)
	mux.HandleFunc("GET /traces", s.handleTraces)
	mux.HandleFunc("POST /ai/model", s.handleUpdateModel)
	return mux
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.AvailableModels())
}

type loginRequest struct {
	Nickname string `json:"nickname"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.svc.RegisterOrLogin(req.Nickname)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 30, 1, 100)
	items, err := s.svc.Timeline(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type contentRequest struct {
	UserID   int64  `json:"user_id"`
	Body     string `json:"body"`
	ParentID int64  `json:"parent_id"`
}

func (s *Server) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}
	content, err := s.svc.CreateHumanContent(req.UserID, req.Body, req.ParentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

type likeRequest struct {
	UserID int64 `json:"user_id"`
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	contentID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid content id")
		return
	}
	var req likeRequest
	if !s.decode(w, r, &req) {
		return
	}
	liked, err := s.svc.LikeContent(req.UserID, contentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

type tickRequest struct {
	MaxAgents int `json:"max_agents"`
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var req tickRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.svc.RunTick(r.Context(), req.MaxAgents)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.svc.CommunityMetrics()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 100, 1, 200)
	users, err := s.svc.ListUsers(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	dash, err := s.svc.UserDashboard(userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 40, 1, 200)
	traces, err := s.svc.RecentTraces(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, traces)
}

type modelUpdateRequest struct {
	UserID   int64  `json:"user_id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (s *Server) handleUpdateModel(w http.ResponseWriter, r *http.Request) {
	var req modelUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	agent, err := s.svc.UpdateUserAIModel(req.UserID, req.Provider, req.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ai_account_id": agent.ID,
		"provider":      agent.Provider,
		"model":         agent.Model,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeDetail(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error("internal error", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func queryLimit(r *http.Request, def, min, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
