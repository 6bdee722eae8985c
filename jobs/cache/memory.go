package cache

import (
	"context"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nrwiersma/worker/jobs/event"
)

// Memory is an in-memory least recently used cache.
type Memory struct {
	lru *expirable.LRU[string, event.Record]
}

// NewMemory returns an in-memory cache.
func NewMemory(desc Descriptor) *Memory {
	return &Memory{
		lru: expirable.NewLRU[string, event.Record](desc.MaxEntries, nil, desc.TTL),
	}
}

// Get returns the record with the given key.
func (m *Memory) Get(_ context.Context, key string) (event.Record, bool, error) {
	rec, ok := m.lru.Get(key)
	return rec, ok, nil
}

// Put stores a record, evicting the least recently used
// record when the cache is full.
func (m *Memory) Put(_ context.Context, key string, rec event.Record) error {
	m.lru.Add(key, rec)
	return nil
}

// Evict removes a record.
func (m *Memory) Evict(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

// EvictAll removes all records.
func (m *Memory) EvictAll(_ context.Context) error {
	m.lru.Purge()
	return nil
}

// Len returns the number of records, including expired ones
// that have not been cleaned up yet.
func (m *Memory) Len() int {
	return m.lru.Len()
}
