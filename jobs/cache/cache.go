// Package cache stores the results of finished jobs so they can
// be replayed to listeners that were detached when they finished.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/nrwiersma/worker/jobs/event"
)

// Descriptor describes the bounds of a cache.
type Descriptor struct {
	// MaxEntries is the maximum number of entries. Zero means unbounded.
	MaxEntries int

	// TTL is how long an entry is kept. Zero means forever.
	TTL time.Duration
}

// Cache stores event records by key.
type Cache interface {
	// Get returns the record with the given key and whether it was found.
	Get(ctx context.Context, key string) (event.Record, bool, error)

	// Put stores a record.
	Put(ctx context.Context, key string, rec event.Record) error

	// Evict removes a record.
	Evict(ctx context.Context, key string) error

	// EvictAll removes all records.
	EvictAll(ctx context.Context) error
}

// Key returns the cache key of a job result.
func Key(tag string, id int) string {
	return tag + ":" + strconv.Itoa(id)
}
