// Package health provides liveness and readiness endpoints for the relay.
package health

import (
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// Check tracks whether the relay is ready to serve.
type Check struct {
	mu     sync.RWMutex
	ready  bool
	logger *zap.Logger
}

// New creates a health check. The relay starts not ready; main flips it once
// the server is wired up.
func New(logger *zap.Logger) *Check {
	return &Check{logger: logger}
}

// LivenessResponse is the body for the liveness check.
type LivenessResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse is the body for the readiness check.
type ReadinessResponse struct {
	Status string `json:"status"`
}

// LivenessHandler handles GET /health. 200 means the process is running.
func (c *Check) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LivenessResponse{Status: "healthy"})
}

// ReadinessHandler handles GET /ready. 200 means the relay core is
// initialized and accepting connections.
func (c *Check) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	ready := c.ready
	c.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(ReadinessResponse{Status: "not_ready"})
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ReadinessResponse{Status: "ready"})
}

// SetReady sets the readiness status.
func (c *Check) SetReady(ready bool) {
	c.mu.Lock()
	changed := c.ready != ready
	c.ready = ready
	c.mu.Unlock()

	if changed {
		c.logger.Info("readiness changed", zap.Bool("ready", ready))
	}
}

// IsReady returns the current readiness status.
func (c *Check) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}
