// Package backend defines the persistence contract shared by the remote
// (signed-in) and local (anonymous) stores.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Collection names one entity collection of a user namespace.
type Collection string

const (
	Links   Collection = "links"
	Folders Collection = "folders"
)

// Collections lists every collection a backend stores.
var Collections = []Collection{Links, Folders}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	return c == Links || c == Folders
}

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidPath       = errors.New("invalid update path")
)

// Record is one stored entity: field name -> JSON value.
type Record map[string]json.RawMessage

// Snapshot is the full content of one collection: key -> record.
type Snapshot map[string]Record

// Patch is a partial entity update. A nil value removes the field.
type Patch map[string]any

// Path addresses a field of an entity. An empty Field addresses the entity
// itself, which may only be removed (nil value).
type Path struct {
	Collection Collection
	Key        string
	Field      string
}

func (p Path) String() string {
	if p.Field == "" {
		return fmt.Sprintf("%s/%s", p.Collection, p.Key)
	}
	return fmt.Sprintf("%s/%s/%s", p.Collection, p.Key, p.Field)
}

// Updates is a multi-path write.
type Updates map[Path]any

// SnapshotFunc receives the full collection snapshot on every change.
type SnapshotFunc func(Snapshot)

// Subscription is the cancellation handle of Subscribe. Once Unsubscribe
// returns, the callback is never invoked again.
type Subscription interface {
	Unsubscribe()
}

// Backend is a persistence variant.
type Backend interface {
	// Name identifies the variant in logs ("local", "remote").
	Name() string

	// Write creates (key == "") or partially updates an entity and returns its key.
	Write(ctx context.Context, c Collection, key string, patch Patch) (string, error)

	// WriteMany applies a multi-path update as one step.
	WriteMany(ctx context.Context, updates Updates) error

	Delete(ctx context.Context, c Collection, key string) error
	DeleteAll(ctx context.Context, c Collection) error

	// Subscribe delivers the current snapshot immediately and again after every change.
	Subscribe(ctx context.Context, c Collection, fn SnapshotFunc) (Subscription, error)
}

// Validate checks every path of a multi-path update. A path may not address
// a field of an entity the same update removes.
func (u Updates) Validate() error {
	for p, v := range u {
		if !p.Collection.Valid() {
			return fmt.Errorf("%w: %s", ErrUnknownCollection, p.Collection)
		}
		if p.Key == "" {
			return fmt.Errorf("%w: empty key in %s", ErrInvalidPath, p)
		}
		if p.Field == "" && v != nil {
			return fmt.Errorf("%w: entity path %s only accepts removal", ErrInvalidPath, p)
		}
		if p.Field != "" {
			if _, ok := u[Path{Collection: p.Collection, Key: p.Key}]; ok {
				return fmt.Errorf("%w: %s overlaps an entity removal", ErrInvalidPath, p)
			}
		}
	}
	return nil
}

// Sorted returns the paths in a stable order: collection, key, then field.
func (u Updates) Sorted() []Path {
	out := make([]Path, 0, len(u))
	for p := range u {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Field < out[j].Field
	})
	return out
}

// EncodeValue marshals a patch value for storage.
func EncodeValue(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Apply merges a patch into rec and returns the result. Fields absent from
// the patch are kept, nil values remove fields.
func (r Record) Apply(patch Patch) (Record, error) {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	for field, v := range patch {
		if v == nil {
			delete(out, field)
			continue
		}
		raw, err := EncodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", field, err)
		}
		out[field] = raw
	}
	return out, nil
}

// Clone returns a copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of s. The result is never nil.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, rec := range s {
		out[k] = rec.Clone()
	}
	return out
}

// HasValues reports whether a patch sets at least one field.
func (p Patch) HasValues() bool {
	for _, v := range p {
		if v != nil {
			return true
		}
	}
	return false
}
