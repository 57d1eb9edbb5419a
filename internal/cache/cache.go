// Package cache provides typed, single-owner cache abstractions backed by
// a concurrent map, so callers never reach for a raw map[string]T guarded
// by ad-hoc locking. Each cache is held as a single field on its parent
// component (the artifact installer's Owner, the content store's LRUs),
// never shared or exposed as a bare map.
package cache

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Owner is a typed cache of values keyed by string, with no cross-key
// atomic check-then-act operations exposed — callers compose Get/Set from
// the outside, and any read-compute-write sequence belongs to the caller,
// not to the cache.
type Owner[V any] struct {
	m *xsync.MapOf[string, V]
}

// NewOwner constructs an empty cache.
func NewOwner[V any]() *Owner[V] {
	return &Owner[V]{m: xsync.NewMapOf[string, V]()}
}

// Get returns the cached value and whether it was present.
func (o *Owner[V]) Get(key string) (V, bool) {
	return o.m.Load(key)
}

// Set stores a value under key, overwriting any existing entry.
func (o *Owner[V]) Set(key string, value V) {
	o.m.Store(key, value)
}

// Delete removes key if present; a no-op otherwise.
func (o *Owner[V]) Delete(key string) {
	o.m.Delete(key)
}

// Clear drops every entry, used when the content artifact is hot-swapped
// and all derived cache entries become stale at once.
func (o *Owner[V]) Clear() {
	o.m.Clear()
}

// Len reports the number of cached entries.
func (o *Owner[V]) Len() int {
	return o.m.Size()
}
