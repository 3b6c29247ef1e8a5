package model

import (
	"encoding/json"
	"fmt"
)

// Wire field names of a folder record.
const (
	FieldName  = "name"
	FieldOrder = "order"
)

// Folder is a user-ordered container of links.
type Folder struct {
	Key       string `json:"-"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
	Order     *int   `json:"order,omitempty"` // nil in legacy records
}

// HasOrder reports whether the folder carries an order value.
func (f Folder) HasOrder() bool {
	return f.Order != nil
}

// OrderOr returns the order value or def when it is missing.
func (f Folder) OrderOr(def int) int {
	if f.Order == nil {
		return def
	}
	return *f.Order
}

// WithOrder returns a copy of f with the order set.
func (f Folder) WithOrder(order int) Folder {
	f.Order = &order
	return f
}

// Fields returns the record as a field map for a create write.
func (f Folder) Fields() map[string]any {
	fields := map[string]any{
		FieldName:      f.Name,
		FieldTimestamp: f.Timestamp,
	}
	if f.Order != nil {
		fields[FieldOrder] = *f.Order
	}
	return fields
}

// DecodeFolder builds a Folder from a stored field map.
func DecodeFolder(key string, fields map[string]json.RawMessage) (Folder, error) {
	var f Folder
	if err := decodeFields(fields, &f); err != nil {
		return Folder{}, fmt.Errorf("decode folder %s: %w", key, err)
	}
	f.Key = key
	return f, nil
}

// Fixed keys of the folders every empty collection is provisioned with.
const (
	DefaultFolderKey1 = "folder_1"
	DefaultFolderKey2 = "folder_2"
)

// DefaultFolders returns the two folders written into an empty collection.
// Timestamps are sequential so the timestamp fallback order is stable.
func DefaultFolders(names [2]string, nowMillis int64) []Folder {
	return []Folder{
		Folder{Key: DefaultFolderKey1, Name: names[0], Timestamp: nowMillis}.WithOrder(0),
		Folder{Key: DefaultFolderKey2, Name: names[1], Timestamp: nowMillis + 1}.WithOrder(1),
	}
}
