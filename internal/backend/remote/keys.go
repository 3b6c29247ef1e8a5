package remote

import "github.com/MrSnakeDoc/linkpocket/internal/backend"

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "linkpocket"

// namespace builds the Redis keys of one signed-in user:
//
//	<prefix>:users:<uid>:<collection>             set of entity keys
//	<prefix>:users:<uid>:<collection>:<key>       hash of JSON-encoded fields
//	<prefix>:users:<uid>:<collection>:events      change channel
type namespace string

func newNamespace(prefix, uid string) namespace {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return namespace(prefix + ":users:" + uid)
}

// IndexKey returns the key of the set listing every entity of c.
func (ns namespace) IndexKey(c backend.Collection) string {
	return string(ns) + ":" + string(c)
}

// EntityKey returns the hash key of one entity.
func (ns namespace) EntityKey(c backend.Collection, key string) string {
	return ns.IndexKey(c) + ":" + key
}

// Channel returns the Pub/Sub channel carrying change events for c.
func (ns namespace) Channel(c backend.Collection) string {
	return ns.IndexKey(c) + ":events"
}
