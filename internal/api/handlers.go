package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/failsafe/internal/failover"
	"github.com/FairForge/failsafe/internal/notify"
	"github.com/FairForge/failsafe/internal/status"
)

type failoverRequest struct {
	Reason string `json:"reason"`
}

type attemptsResponse struct {
	Attempts []failover.Attempt `json:"attempts"`
	Stats    failover.Stats     `json:"stats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":             "healthy",
		"version":            "0.1.0",
		"uptime":             time.Since(s.startTime).Seconds(),
		"monitoring_running": s.loop.Running(),
	}
	s.respondJSON(w, http.StatusOK, health)
}

func (s *Server) handleStartMonitoring(w http.ResponseWriter, r *http.Request) {
	// The loop outlives this request.
	if err := s.loop.Start(context.Background()); err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}

	if s.dispatcher != nil {
		s.dispatcher.Notify(r.Context(), notify.EventMonitoringStarted,
			notify.SeverityLow, "health monitoring started")
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"monitoring": "started"})
}

func (s *Server) handleStopMonitoring(w http.ResponseWriter, r *http.Request) {
	if !s.loop.Running() {
		s.respondError(w, http.StatusConflict, "monitoring is not running")
		return
	}
	s.loop.Stop()

	if s.dispatcher != nil {
		s.dispatcher.Notify(r.Context(), notify.EventMonitoringStopped,
			notify.SeverityLow, "health monitoring stopped")
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"monitoring": "stopped"})
}

func (s *Server) handleTriggerFailover(w http.ResponseWriter, r *http.Request) {
	var req failoverRequest
	if r.Body != nil {
		// An empty body means a default reason, not a bad request.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	// A client disconnect must not abandon the sequence mid-step.
	attempt, err := s.loop.TriggerFailover(context.Background(), req.Reason)
	if err != nil {
		if errors.Is(err, failover.ErrAlreadyCompleted) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("manual failover failed",
			zap.String("attempt_id", attempt.AttemptID),
			zap.Error(err))
		s.respondJSON(w, http.StatusBadGateway, attempt)
		return
	}
	s.respondJSON(w, http.StatusOK, attempt)
}

func (s *Server) handleRunDRTest(w http.ResponseWriter, r *http.Request) {
	report, err := s.runner.Run(r.Context())
	if err != nil {
		s.logger.Error("dr test report persistence failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "dr test report could not be persisted")
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	rs, err := s.store.Read(r.Context())
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			s.respondJSON(w, http.StatusOK, status.RecoveryStatus{
				CurrentStatus: status.StateInitialized,
				Message:       "no recovery activity recorded",
				UpdatedAt:     time.Now().UTC(),
			})
			return
		}
		s.respondError(w, http.StatusInternalServerError, "status store unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, rs)
}

func (s *Server) handleGetAttempts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	attempts, err := s.attempts.Recent(limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "attempt log unavailable")
		return
	}

	s.respondJSON(w, http.StatusOK, attemptsResponse{
		Attempts: attempts,
		Stats:    failover.ComputeStats(attempts),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encoding failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, map[string]string{"error": message})
}
