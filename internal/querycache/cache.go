// Package querycache stores results of remote reads keyed by query identity
// and drops them when a mutation makes them stale.
package querycache

import (
	"context"
	"strings"
	"time"
)

// Key identifies a query, most general segment first, e.g.
// {"projects", ownerID, "detail", id}.
type Key []string

func (k Key) String() string {
	return strings.Join(k, ":")
}

// Append returns a new key with extra segments.
func (k Key) Append(segments ...string) Key {
	out := make(Key, 0, len(k)+len(segments))
	out = append(out, k...)
	return append(out, segments...)
}

// HasPrefix reports whether k starts with every segment of prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Cache is the store behind the data-access layer. Values are JSON encoded,
// so Get always decodes into a fresh copy.
type Cache interface {
	// Get decodes the cached value for key into dst and reports whether it was present.
	Get(ctx context.Context, key Key, dst any) (bool, error)
	Set(ctx context.Context, key Key, value any, ttl time.Duration) error
	// Invalidate drops the given keys.
	Invalidate(ctx context.Context, keys ...Key) error
	// InvalidatePrefix drops every key that has prefix as a segment prefix.
	InvalidatePrefix(ctx context.Context, prefix Key) error
}
