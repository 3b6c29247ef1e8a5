package model

import (
	"time"

	"github.com/google/uuid"
)

// NewKey returns a time-ordered opaque key, so keys created later sort later.
func NewKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewLocalKey returns a key for records created on the device-local store.
func NewLocalKey(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// Millis converts a time to the unix-millisecond timestamps stored on records.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
