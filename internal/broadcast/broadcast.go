// Package broadcast fans messages out to a restaurant's live connections.
package broadcast

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/varunkan/ai-pos-system-sub011/internal/metrics"
	"github.com/varunkan/ai-pos-system-sub011/internal/registry"
)

// Engine delivers a message to every live connection of a restaurant,
// optionally excluding the sender. Delivery is best effort and at most once
// per connection per call; a failed send is logged but never unregisters the
// connection, whose own transport close signal drives teardown.
type Engine struct {
	registry *registry.Registry
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates a broadcast engine over the given registry.
func New(reg *registry.Registry, m *metrics.Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		registry: reg,
		metrics:  m,
		logger:   logger,
	}
}

// BroadcastToTenant serializes message once and sends it to every connection
// of the restaurant except exclude (which may be nil to reach all of them,
// as the REST sync path does). Returns the number of successful sends.
func (e *Engine) BroadcastToTenant(restaurantID string, message interface{}, exclude registry.Conn) int {
	payload, err := json.Marshal(message)
	if err != nil {
		e.logger.Error("failed to serialize broadcast",
			zap.String("restaurant_id", restaurantID),
			zap.Error(err),
		)
		return 0
	}
	return e.BroadcastRaw(restaurantID, payload, exclude)
}

// BroadcastRaw sends an already serialized payload, preserving per-connection
// ordering through each connection's outbound queue.
func (e *Engine) BroadcastRaw(restaurantID string, payload []byte, exclude registry.Conn) int {
	delivered := 0
	failures := 0

	for _, c := range e.registry.List(restaurantID) {
		if exclude != nil && c.ID() == exclude.ID() {
			continue
		}
		if err := c.Send(payload); err != nil {
			failures++
			e.logger.Warn("broadcast send failed",
				zap.String("restaurant_id", restaurantID),
				zap.String("device_id", c.DeviceID()),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}

	if e.metrics != nil {
		e.metrics.RecordBroadcast(failures)
	}
	e.logger.Debug("broadcast delivered",
		zap.String("restaurant_id", restaurantID),
		zap.Int("recipients", delivered),
		zap.Int("failures", failures),
	)
	return delivered
}
