// Package handler provides the REST handlers of the sync relay.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/varunkan/ai-pos-system-sub011/internal/apierrors"
	"github.com/varunkan/ai-pos-system-sub011/internal/broadcast"
	"github.com/varunkan/ai-pos-system-sub011/internal/metrics"
	"github.com/varunkan/ai-pos-system-sub011/internal/model"
	"github.com/varunkan/ai-pos-system-sub011/internal/protocol"
	"github.com/varunkan/ai-pos-system-sub011/internal/registry"
	"github.com/varunkan/ai-pos-system-sub011/internal/store"
)

// Handlers contains the REST handlers and their dependencies.
type Handlers struct {
	registry     *registry.Registry
	store        *store.Store
	engine       *broadcast.Engine
	errorHandler *apierrors.Handler
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewHandlers creates a Handlers instance.
func NewHandlers(
	reg *registry.Registry,
	st *store.Store,
	engine *broadcast.Engine,
	errorHandler *apierrors.Handler,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		registry:     reg,
		store:        st,
		engine:       engine,
		errorHandler: errorHandler,
		metrics:      m,
		logger:       logger,
	}
}

// SyncRequest is the body of POST /api/sync.
type SyncRequest struct {
	RestaurantID string         `json:"restaurant_id"`
	DeviceID     string         `json:"device_id"`
	Changes      []model.Change `json:"changes"`
}

// SyncResponse acknowledges a sync batch. SyncedChanges counts submitted
// changes, not applied ones: changes skipped for unknown data types still
// count, which callers rely on to match their submitted batch length.
type SyncResponse struct {
	Status        string `json:"status"`
	SyncedChanges int    `json:"synced_changes"`
	Timestamp     string `json:"timestamp"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status               string `json:"status"`
	Timestamp            string `json:"timestamp"`
	ConnectedRestaurants int    `json:"connectedRestaurants"`
	TotalConnections     int    `json:"totalConnections"`
}

// ConnectedDevice describes one live connection in a status response.
type ConnectedDevice struct {
	DeviceID    string `json:"device_id"`
	UserID      string `json:"user_id"`
	ConnectedAt string `json:"connected_at"`
}

// StatusResponse is the body of GET /api/restaurants/{id}/status.
type StatusResponse struct {
	RestaurantID     string            `json:"restaurant_id"`
	ConnectedDevices []ConnectedDevice `json:"connected_devices"`
	DeviceCount      int               `json:"device_count"`
}

// DataResponse is the body of GET /api/restaurants/{id}/data.
type DataResponse struct {
	RestaurantID string                                     `json:"restaurant_id"`
	Data         map[model.DataType]map[string]model.Record `json:"data"`
	Timestamp    string                                     `json:"timestamp"`
}

// Health handles GET /api/health. Counts are computed from the registry at
// call time.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	restaurants, connections := h.registry.Counts()

	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:               "healthy",
		Timestamp:            timestamp(),
		ConnectedRestaurants: restaurants,
		TotalConnections:     connections,
	})
}

// RestaurantStatus handles GET /api/restaurants/{id}/status. An unknown
// restaurant yields an empty device list, not an error.
func (h *Handlers) RestaurantStatus(w http.ResponseWriter, r *http.Request) {
	restaurantID := mux.Vars(r)["id"]

	conns := h.registry.List(restaurantID)
	devices := make([]ConnectedDevice, 0, len(conns))
	for _, c := range conns {
		devices = append(devices, ConnectedDevice{
			DeviceID:    c.DeviceID(),
			UserID:      c.UserID(),
			ConnectedAt: c.ConnectedAt().UTC().Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, StatusResponse{
		RestaurantID:     restaurantID,
		ConnectedDevices: devices,
		DeviceCount:      len(devices),
	})
}

// Sync handles POST /api/sync. Changes are applied in order; unknown data
// types and payloads without an id are skipped silently. The batch is not
// atomic: changes applied before a failure stay applied. The resulting
// sync_update broadcast reaches every connection of the restaurant,
// including ones belonging to the submitting device.
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}
	if req.RestaurantID == "" {
		h.errorHandler.WriteValidationError(w, "restaurant_id is required", requestID)
		return
	}
	if req.Changes == nil {
		h.errorHandler.WriteValidationError(w, "changes must be a list", requestID)
		return
	}

	for _, change := range req.Changes {
		err := h.store.ApplyChange(req.RestaurantID, change)
		switch {
		case err == nil:
			if h.metrics != nil {
				h.metrics.RecordSyncChange(true)
			}
		case errors.Is(err, store.ErrUnknownDataType), errors.Is(err, store.ErrMissingEntityID):
			h.logger.Warn("skipped sync change",
				zap.String("restaurant_id", req.RestaurantID),
				zap.String("data_type", change.DataType),
				zap.Error(err),
			)
			if h.metrics != nil {
				h.metrics.RecordSyncChange(false)
			}
		default:
			h.logger.Error("failed to apply sync change",
				zap.String("restaurant_id", req.RestaurantID),
				zap.Error(err),
			)
			h.errorHandler.WriteInternalError(w, "failed to apply changes", requestID)
			return
		}
	}

	// Broadcast carries the original changes array, not the post-apply
	// state, with no excluded connection.
	update := protocol.NewSyncUpdate(req.RestaurantID, req.Changes)
	h.engine.BroadcastToTenant(req.RestaurantID, update, nil)

	h.logger.Info("sync applied",
		zap.String("restaurant_id", req.RestaurantID),
		zap.String("device_id", req.DeviceID),
		zap.Int("changes", len(req.Changes)),
	)

	h.writeJSON(w, http.StatusOK, SyncResponse{
		Status:        "success",
		SyncedChanges: len(req.Changes),
		Timestamp:     timestamp(),
	})
}

// RestaurantData handles GET /api/restaurants/{id}/data. A restaurant with
// no store entry 404s, including one whose data was evicted after its last
// device disconnected.
func (h *Handlers) RestaurantData(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	restaurantID := mux.Vars(r)["id"]

	snapshot, err := h.store.Snapshot(restaurantID)
	if err != nil {
		h.errorHandler.WriteNotFound(w, "no data for restaurant", requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, DataResponse{
		RestaurantID: restaurantID,
		Data:         snapshot,
		Timestamp:    timestamp(),
	})
}

// writeJSON writes a JSON response.
func (h *Handlers) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
