// Package protocol defines the socket wire format between the relay and
// restaurant devices. Every frame is a JSON object discriminated by its
// "type" field.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/varunkan/ai-pos-system-sub011/internal/model"
)

// MessageType discriminates socket frames.
type MessageType string

// Client to server frame types.
const (
	TypeRegister        MessageType = "register"
	TypeHeartbeat       MessageType = "heartbeat"
	TypeOrderUpdate     MessageType = "order_update"
	TypeMenuUpdate      MessageType = "menu_update"
	TypeInventoryUpdate MessageType = "inventory_update"
	TypeTableUpdate     MessageType = "table_update"
	TypeUserUpdate      MessageType = "user_update"
	TypePrinterUpdate   MessageType = "printer_update"
	TypeDataChange      MessageType = "data_change"
)

// Server to client frame types.
const (
	TypeRegistered        MessageType = "registered"
	TypeHeartbeatResponse MessageType = "heartbeat_response"
	TypeSyncUpdate        MessageType = "sync_update"
	TypeError             MessageType = "error"
)

// updateDataTypes maps each typed update frame to the collection it targets.
// The generic data_change frame names its collection in the payload instead.
var updateDataTypes = map[MessageType]model.DataType{
	TypeOrderUpdate:     model.DataTypeOrders,
	TypeMenuUpdate:      model.DataTypeMenuItems,
	TypeInventoryUpdate: model.DataTypeInventory,
	TypeTableUpdate:     model.DataTypeTables,
	TypeUserUpdate:      model.DataTypeUsers,
	TypePrinterUpdate:   model.DataTypePrinters,
}

// IsUpdate reports whether the frame type is one of the relayed change kinds.
func (t MessageType) IsUpdate() bool {
	if t == TypeDataChange {
		return true
	}
	_, ok := updateDataTypes[t]
	return ok
}

// Envelope is a parsed inbound frame. Raw holds the full frame bytes so a
// relay can forward the payload without re-encoding it.
type Envelope struct {
	Type     MessageType            `json:"type"`
	DataType string                 `json:"data_type,omitempty"`
	Action   string                 `json:"action,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Raw      json.RawMessage        `json:"-"`
}

// Parse decodes an inbound frame. A frame without a type field is an error.
func Parse(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("frame has no type field")
	}
	env.Raw = json.RawMessage(frame)
	return &env, nil
}

// Change converts an update frame into the change it carries. For the typed
// update frames the collection comes from the frame type; data_change names
// it explicitly. The payload is passed through untouched.
func (e *Envelope) Change() (model.Change, error) {
	dataType := e.DataType
	if dt, ok := updateDataTypes[e.Type]; ok {
		dataType = string(dt)
	} else if e.Type != TypeDataChange {
		return model.Change{}, fmt.Errorf("frame type %q is not an update", e.Type)
	}
	return model.Change{
		DataType: dataType,
		Action:   e.Action,
		Data:     e.Data,
	}, nil
}

// Registered acknowledges a device registration.
type Registered struct {
	Type         MessageType `json:"type"`
	DeviceID     string      `json:"device_id"`
	RestaurantID string      `json:"restaurant_id"`
	Timestamp    string      `json:"timestamp"`
}

// HeartbeatResponse answers a client heartbeat.
type HeartbeatResponse struct {
	Type      MessageType `json:"type"`
	DeviceID  string      `json:"device_id"`
	Timestamp string      `json:"timestamp"`
}

// SyncUpdate fans a batch of changes out to a restaurant's devices.
type SyncUpdate struct {
	Type         MessageType    `json:"type"`
	RestaurantID string         `json:"restaurant_id"`
	Changes      []model.Change `json:"changes"`
	Timestamp    string         `json:"timestamp"`
}

// ErrorMessage reports a protocol violation to the offending client.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// NewRegistered builds a registration acknowledgement.
func NewRegistered(deviceID, restaurantID string) Registered {
	return Registered{
		Type:         TypeRegistered,
		DeviceID:     deviceID,
		RestaurantID: restaurantID,
		Timestamp:    now(),
	}
}

// NewHeartbeatResponse builds a heartbeat reply.
func NewHeartbeatResponse(deviceID string) HeartbeatResponse {
	return HeartbeatResponse{
		Type:      TypeHeartbeatResponse,
		DeviceID:  deviceID,
		Timestamp: now(),
	}
}

// NewSyncUpdate builds a sync_update envelope carrying the submitted changes.
func NewSyncUpdate(restaurantID string, changes []model.Change) SyncUpdate {
	return SyncUpdate{
		Type:         TypeSyncUpdate,
		RestaurantID: restaurantID,
		Changes:      changes,
		Timestamp:    now(),
	}
}

// NewError builds an error envelope.
func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
