package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"tigro/internal/modules/optimization"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "tigro",
	}

	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			response["status"] = "unhealthy"
			response["database_error"] = err.Error()
		}
	}
	if s.svc != nil {
		if err := s.svc.LastError(); err != nil {
			response["last_run_error"] = err.Error()
		}
	}

	s.writeJSON(w, status, response)
}

// handleOptimize triggers a full optimization run and returns its record.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	record, err := s.svc.RunOnce(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Optimization run failed")
		s.writeError(w, statusForRunError(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// handleLatestRun returns the most recent run, in memory or persisted.
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	record, err := s.svc.LatestRun(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, errors.New("no optimization runs yet"))
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// handleFrontier computes the efficient frontier on demand.
func (s *Server) handleFrontier(w http.ResponseWriter, r *http.Request) {
	points := optimization.DefaultFrontierPoints
	if raw := r.URL.Query().Get("points"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2 {
			s.writeError(w, http.StatusBadRequest, errors.New("points must be an integer >= 2"))
			return
		}
		points = parsed
	}

	frontier, err := s.svc.Frontier(r.Context(), points)
	if err != nil {
		s.writeError(w, statusForRunError(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"points": frontier})
}

// handleRecommendations returns the trade plan of the latest run.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	record, err := s.svc.LatestRun(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if record == nil || record.Trades == nil {
		s.writeError(w, http.StatusNotFound, errors.New("no recommendations yet"))
		return
	}
	s.writeJSON(w, http.StatusOK, record.Trades)
}

// statusForRunError maps pipeline errors to HTTP status codes.
func statusForRunError(err error) int {
	var invalid *optimization.InvalidInputError
	var insufficient *optimization.InsufficientDataError
	var degenerate *optimization.DegenerateRiskError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &insufficient), errors.As(err, &degenerate):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
