// Package model defines the data types synchronized between restaurant devices.
package model

import (
	"encoding/json"
	"time"
)

// DataType identifies one of the synchronized collections of a restaurant.
type DataType string

const (
	DataTypeOrders    DataType = "orders"
	DataTypeMenuItems DataType = "menu_items"
	DataTypeInventory DataType = "inventory"
	DataTypeTables    DataType = "tables"
	DataTypeUsers     DataType = "users"
	DataTypePrinters  DataType = "printers"
)

// AllDataTypes lists every collection kept per restaurant.
var AllDataTypes = []DataType{
	DataTypeOrders,
	DataTypeMenuItems,
	DataTypeInventory,
	DataTypeTables,
	DataTypeUsers,
	DataTypePrinters,
}

// ParseDataType returns the DataType for tag, or false if tag is not a known
// collection.
func ParseDataType(tag string) (DataType, bool) {
	for _, dt := range AllDataTypes {
		if string(dt) == tag {
			return dt, true
		}
	}
	return "", false
}

// Action describes what a change does to a record. Anything that is not a
// delete is treated as an upsert; "created", "updated" and "upsert" are
// equivalent on the wire.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionUpsert  Action = "upsert"
	ActionDeleted Action = "deleted"
)

// IsDelete reports whether the action removes a record.
func (a Action) IsDelete() bool {
	return a == ActionDeleted
}

// Change is one transient mutation submitted by a device, either over the
// sync endpoint or inside a socket frame.
type Change struct {
	DataType string                 `json:"data_type"`
	Action   string                 `json:"action"`
	Data     map[string]interface{} `json:"data"`
}

// EntityID extracts the record id from the change payload. The empty string
// means the payload carried no usable id.
func (c Change) EntityID() string {
	if c.Data == nil {
		return ""
	}
	id, _ := c.Data["id"].(string)
	return id
}

// Record is the last-known state of one synchronized entity. Payload fields
// are arbitrary; the relay only cares about the id and the sync stamp.
type Record struct {
	ID       string
	Fields   map[string]interface{}
	LastSync time.Time
}

// MarshalJSON flattens the payload fields into the record object so clients
// see the same shape they submitted, plus the last_sync stamp.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	out["last_sync"] = r.LastSync.UTC().Format(time.RFC3339Nano)
	return json.Marshal(out)
}

// Clone returns a copy of the record with its own top-level field map.
func (r Record) Clone() Record {
	fields := make(map[string]interface{}, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Fields: fields, LastSync: r.LastSync}
}
