package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status      string `json:"status"`
	SessionID   string `json:"session_id"`
	Agents      int    `json:"agents"`
	Context     int    `json:"context"`
	Questions   int    `json:"questions"`
	Pending     int    `json:"pending"`
	Decisions   int    `json:"decisions"`
	Connections int    `json:"connections"`
	Redis       string `json:"redis,omitempty"`
	Error       string `json:"error,omitempty"`
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK with session counts. When a Redis mirror is configured and
// unreachable it returns 503 Service Unavailable.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	store := s.router.Store()
	stats := store.Stats()

	response := HealthResponse{
		Status:      "healthy",
		SessionID:   store.SessionID(),
		Agents:      stats.Agents,
		Context:     stats.Context,
		Questions:   stats.Questions,
		Pending:     stats.Pending,
		Decisions:   stats.Decisions,
		Connections: s.Connections(),
	}

	status := http.StatusOK
	if s.redis != nil {
		// Check Redis connectivity with timeout
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.redis.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Redis = "disconnected"
			response.Error = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			response.Redis = "connected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
