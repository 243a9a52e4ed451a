// Package registry tracks live device connections grouped by restaurant.
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Conn is the transport handle the registry holds for a connected device.
// The socket package provides the concrete implementation.
type Conn interface {
	// ID uniquely identifies this connection instance.
	ID() string
	DeviceID() string
	RestaurantID() string
	UserID() string
	ConnectedAt() time.Time
	// Send enqueues an already serialized message for delivery. It must not
	// block; a connection whose outbound queue is full returns an error.
	Send(payload []byte) error
	// Close tears the transport down. Safe to call more than once.
	Close() error
}

// Registry is the single owner of the connection-by-restaurant mapping.
// It is safe for concurrent use by connection lifecycle events and REST
// requests.
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]map[string]Conn
	onEvict func(restaurantID string)
	logger  *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		tenants: make(map[string]map[string]Conn),
		logger:  logger,
	}
}

// OnEvict installs a hook invoked after a restaurant's last connection is
// removed. The hook runs outside the registry lock.
func (r *Registry) OnEvict(hook func(restaurantID string)) {
	r.onEvict = hook
}

// Register adds a connection to its restaurant's set, creating the set on
// first use.
func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	conns, ok := r.tenants[c.RestaurantID()]
	if !ok {
		conns = make(map[string]Conn)
		r.tenants[c.RestaurantID()] = conns
	}
	conns[c.ID()] = c
	total := len(conns)
	r.mu.Unlock()

	r.logger.Info("device registered",
		zap.String("restaurant_id", c.RestaurantID()),
		zap.String("device_id", c.DeviceID()),
		zap.Int("restaurant_connections", total),
	)
}

// Unregister removes a connection from its restaurant's set. When the set
// becomes empty the registry entry is dropped and the eviction hook fires.
func (r *Registry) Unregister(c Conn) {
	evicted := false

	r.mu.Lock()
	if conns, ok := r.tenants[c.RestaurantID()]; ok {
		if _, present := conns[c.ID()]; present {
			delete(conns, c.ID())
			if len(conns) == 0 {
				delete(r.tenants, c.RestaurantID())
				evicted = true
			}
		}
	}
	r.mu.Unlock()

	r.logger.Info("device unregistered",
		zap.String("restaurant_id", c.RestaurantID()),
		zap.String("device_id", c.DeviceID()),
		zap.Bool("restaurant_evicted", evicted),
	)

	if evicted && r.onEvict != nil {
		r.onEvict(c.RestaurantID())
	}
}

// List returns a snapshot of the restaurant's current connections. The
// returned slice is not a live view; callers may iterate it while the
// registry mutates.
func (r *Registry) List(restaurantID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.tenants[restaurantID]
	out := make([]Conn, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// Counts returns the number of restaurants with at least one connection and
// the total connection count, computed at call time.
func (r *Registry) Counts() (restaurants, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conns := range r.tenants {
		connections += len(conns)
	}
	return len(r.tenants), connections
}

// CloseAll closes every live connection. Used during graceful shutdown; the
// transports' own close signals drive the usual unregister path.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	var all []Conn
	for _, conns := range r.tenants {
		for _, c := range conns {
			all = append(all, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range all {
		if err := c.Close(); err != nil {
			r.logger.Debug("close during shutdown", zap.Error(err),
				zap.String("device_id", c.DeviceID()))
		}
	}
}
