package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/varunkan/ai-pos-system-sub011/internal/broadcast"
	"github.com/varunkan/ai-pos-system-sub011/internal/config"
	"github.com/varunkan/ai-pos-system-sub011/internal/metrics"
	"github.com/varunkan/ai-pos-system-sub011/internal/model"
	"github.com/varunkan/ai-pos-system-sub011/internal/protocol"
	"github.com/varunkan/ai-pos-system-sub011/internal/registry"
	"github.com/varunkan/ai-pos-system-sub011/internal/store"
)

// Handler upgrades device connections and runs the message protocol.
//
// Update frames are relayed to the sender's restaurant without touching the
// store: the REST sync endpoint is the only path that mutates persisted
// state, while the socket path is a best-effort live notification. REST
// broadcasts also include the submitting device's own connections, whereas
// the socket path excludes the sender. Both asymmetries are part of the
// protocol contract and clients depend on them.
type Handler struct {
	upgrader websocket.Upgrader
	registry *registry.Registry
	store    *store.Store
	engine   *broadcast.Engine
	cfg      config.RelayConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewHandler creates the socket handler.
func NewHandler(
	reg *registry.Registry,
	st *store.Store,
	engine *broadcast.Engine,
	cfg config.RelayConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any caller supplying a restaurant id may join that
			// restaurant's relay. There is no origin or tenant
			// authentication yet.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		registry: reg,
		store:    st,
		engine:   engine,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// ServeHTTP handles GET /ws. Identifying parameters arrive as query
// parameters, not as payload fields: device_id, restaurant_id, user_id.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	restaurantID := r.URL.Query().Get("restaurant_id")
	userID := r.URL.Query().Get("user_id")

	if deviceID == "" || restaurantID == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","error_code":"INVALID_REQUEST","message":"device_id and restaurant_id are required"}`))
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newConnection(ws, deviceID, restaurantID, userID, h.cfg.SendBufferSize, h.logger)

	h.registry.Register(c)
	h.store.EnsureTenant(restaurantID)
	h.updateConnectionGauges()

	go c.writeLoop(h.cfg.PingInterval, h.cfg.WriteTimeout)
	h.readLoop(c)
}

// readLoop consumes frames until the transport closes, then unregisters the
// connection. This is the only place a connection leaves the registry.
func (h *Handler) readLoop(c *Connection) {
	defer func() {
		c.Close()
		h.registry.Unregister(c)
		h.updateConnectionGauges()
	}()

	c.ws.SetReadLimit(h.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
		return nil
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("socket read ended",
					zap.String("device_id", c.DeviceID()),
					zap.Error(err),
				)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))

		env, err := protocol.Parse(frame)
		if err != nil {
			// Malformed frames are dropped; the connection stays open.
			h.dropFrame(c, "malformed", zap.Error(err))
			continue
		}

		h.dispatch(c, env)
	}
}

// dispatch runs one protocol step for an inbound frame.
func (h *Handler) dispatch(c *Connection, env *protocol.Envelope) {
	switch {
	case env.Type == protocol.TypeRegister:
		h.handleRegister(c)

	case env.Type == protocol.TypeHeartbeat:
		if c.State() != StateActive {
			h.dropFrame(c, "before_register", zap.String("type", string(env.Type)))
			return
		}
		h.sendEnvelope(c, protocol.NewHeartbeatResponse(c.DeviceID()))

	case env.Type.IsUpdate():
		if c.State() != StateActive {
			h.dropFrame(c, "before_register", zap.String("type", string(env.Type)))
			return
		}
		h.relay(c, env)

	default:
		h.dropFrame(c, "unknown_type", zap.String("type", string(env.Type)))
	}
}

// handleRegister moves a connecting device to Active and acknowledges it.
// A second register is a protocol violation; the client is told but the
// connection stays open.
func (h *Handler) handleRegister(c *Connection) {
	if err := c.transition(StateConnecting, StateActive); err != nil {
		h.dropFrame(c, "duplicate_register")
		h.sendEnvelope(c, protocol.NewError("already registered"))
		return
	}

	h.logger.Info("device active",
		zap.String("restaurant_id", c.RestaurantID()),
		zap.String("device_id", c.DeviceID()),
		zap.String("user_id", c.UserID()),
	)
	h.sendEnvelope(c, protocol.NewRegistered(c.DeviceID(), c.RestaurantID()))
}

// relay fans an update frame out to every other connection of the same
// restaurant as a sync_update. The store is deliberately not consulted.
func (h *Handler) relay(c *Connection, env *protocol.Envelope) {
	change, err := env.Change()
	if err != nil {
		h.dropFrame(c, "malformed", zap.Error(err))
		return
	}

	update := protocol.NewSyncUpdate(c.RestaurantID(), []model.Change{change})
	h.engine.BroadcastToTenant(c.RestaurantID(), update, c)
}

// sendEnvelope serializes and enqueues a server envelope for one connection.
func (h *Handler) sendEnvelope(c *Connection, env interface{}) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("failed to serialize envelope", zap.Error(err))
		return
	}
	if err := c.Send(payload); err != nil {
		h.logger.Warn("failed to send envelope",
			zap.String("device_id", c.DeviceID()),
			zap.Error(err),
		)
	}
}

func (h *Handler) dropFrame(c *Connection, reason string, fields ...zap.Field) {
	fields = append(fields,
		zap.String("reason", reason),
		zap.String("restaurant_id", c.RestaurantID()),
		zap.String("device_id", c.DeviceID()),
	)
	h.logger.Warn("dropped frame", fields...)
	if h.metrics != nil {
		h.metrics.RecordFrameDropped(reason)
	}
}

func (h *Handler) updateConnectionGauges() {
	if h.metrics == nil {
		return
	}
	restaurants, connections := h.registry.Counts()
	h.metrics.SetConnectionCounts(restaurants, connections)
}
