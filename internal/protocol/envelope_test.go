package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varunkan/ai-pos-system-sub011/internal/model"
)

func TestParse_ValidFrame(t *testing.T) {
	frame := []byte(`{"type":"data_change","data_type":"orders","action":"created","data":{"id":"o1"}}`)

	env, err := Parse(frame)
	require.NoError(t, err)
	assert.Equal(t, TypeDataChange, env.Type)
	assert.Equal(t, "orders", env.DataType)
	assert.Equal(t, "created", env.Action)
	assert.Equal(t, "o1", env.Data["id"])
	assert.JSONEq(t, string(frame), string(env.Raw))
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	assert.Error(t, err)
}

func TestParse_MissingType(t *testing.T) {
	_, err := Parse([]byte(`{"data":{"id":"o1"}}`))
	assert.Error(t, err)
}

func TestMessageType_IsUpdate(t *testing.T) {
	updates := []MessageType{
		TypeOrderUpdate, TypeMenuUpdate, TypeInventoryUpdate,
		TypeTableUpdate, TypeUserUpdate, TypePrinterUpdate, TypeDataChange,
	}
	for _, mt := range updates {
		assert.True(t, mt.IsUpdate(), string(mt))
	}

	assert.False(t, TypeRegister.IsUpdate())
	assert.False(t, TypeHeartbeat.IsUpdate())
	assert.False(t, MessageType("bogus").IsUpdate())
}

func TestEnvelope_Change_TypedUpdate(t *testing.T) {
	tests := []struct {
		frameType MessageType
		dataType  model.DataType
	}{
		{TypeOrderUpdate, model.DataTypeOrders},
		{TypeMenuUpdate, model.DataTypeMenuItems},
		{TypeInventoryUpdate, model.DataTypeInventory},
		{TypeTableUpdate, model.DataTypeTables},
		{TypeUserUpdate, model.DataTypeUsers},
		{TypePrinterUpdate, model.DataTypePrinters},
	}

	for _, tt := range tests {
		t.Run(string(tt.frameType), func(t *testing.T) {
			env := &Envelope{
				Type:   tt.frameType,
				Action: "updated",
				Data:   map[string]interface{}{"id": "x1"},
			}

			change, err := env.Change()
			require.NoError(t, err)
			assert.Equal(t, string(tt.dataType), change.DataType)
			assert.Equal(t, "updated", change.Action)
			assert.Equal(t, "x1", change.Data["id"])
		})
	}
}

func TestEnvelope_Change_DataChangeKeepsExplicitType(t *testing.T) {
	env := &Envelope{
		Type:     TypeDataChange,
		DataType: "orders",
		Action:   "created",
		Data:     map[string]interface{}{"id": "o1"},
	}

	change, err := env.Change()
	require.NoError(t, err)
	assert.Equal(t, "orders", change.DataType)
}

func TestEnvelope_Change_NonUpdateFrame(t *testing.T) {
	env := &Envelope{Type: TypeHeartbeat}

	_, err := env.Change()
	assert.Error(t, err)
}

func TestServerEnvelopes_WireShape(t *testing.T) {
	t.Run("registered", func(t *testing.T) {
		payload, err := json.Marshal(NewRegistered("d1", "r1"))
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, "registered", decoded["type"])
		assert.Equal(t, "d1", decoded["device_id"])
		assert.Equal(t, "r1", decoded["restaurant_id"])
		assert.NotEmpty(t, decoded["timestamp"])
	})

	t.Run("heartbeat_response", func(t *testing.T) {
		payload, err := json.Marshal(NewHeartbeatResponse("d1"))
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, "heartbeat_response", decoded["type"])
		assert.Equal(t, "d1", decoded["device_id"])
		assert.NotEmpty(t, decoded["timestamp"])
	})

	t.Run("sync_update", func(t *testing.T) {
		changes := []model.Change{{
			DataType: "orders",
			Action:   "created",
			Data:     map[string]interface{}{"id": "o1"},
		}}
		payload, err := json.Marshal(NewSyncUpdate("r1", changes))
		require.NoError(t, err)

		var decoded struct {
			Type         string         `json:"type"`
			RestaurantID string         `json:"restaurant_id"`
			Changes      []model.Change `json:"changes"`
			Timestamp    string         `json:"timestamp"`
		}
		require.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, "sync_update", decoded.Type)
		assert.Equal(t, "r1", decoded.RestaurantID)
		require.Len(t, decoded.Changes, 1)
		assert.Equal(t, "orders", decoded.Changes[0].DataType)
		assert.NotEmpty(t, decoded.Timestamp)
	})

	t.Run("error", func(t *testing.T) {
		payload, err := json.Marshal(NewError("boom"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"error","message":"boom"}`, string(payload))
	})
}
