// Package state implements the job registry table.
package state

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-memdb"
)

const tableJobs = "jobs"

// Entry is a registered job.
type Entry struct {
	ID    int
	Group int
	Name  string
	Tags  []string

	// Value holds the registered job.
	Value interface{}
}

// Store is an in-memory job registry.
type Store struct {
	db *memdb.MemDB
}

// New returns a job registry store.
func New() (*Store, error) {
	dbSchema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableJobs: jobsTableSchema(),
		},
	}

	db, err := memdb.NewMemDB(dbSchema)
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func jobsTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: tableJobs,
		Indexes: map[string]*memdb.IndexSchema{
			"id": {
				Name:         "id",
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.IntFieldIndex{
					Field: "ID",
				},
			},
			"group": {
				Name:         "group",
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.IntFieldIndex{
					Field: "Group",
				},
			},
			"tag": {
				Name:         "tag",
				AllowMissing: true,
				Unique:       false,
				Indexer: &memdb.StringSliceFieldIndex{
					Field: "Tags",
				},
			},
		},
	}
}

// Insert inserts an entry, replacing any entry with the same id.
func (s *Store) Insert(e *Entry) error {
	tx := s.db.Txn(true)
	defer tx.Abort()

	if err := tx.Insert(tableJobs, e); err != nil {
		return fmt.Errorf("state: failed inserting job: %w", err)
	}

	tx.Commit()
	return nil
}

// Delete deletes the entry with the given id, returning it
// or nil if there was no such entry.
func (s *Store) Delete(id int) (*Entry, error) {
	tx := s.db.Txn(true)
	defer tx.Abort()

	raw, err := tx.First(tableJobs, "id", id)
	if err != nil {
		return nil, fmt.Errorf("state: job lookup failed: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	if err := tx.Delete(tableJobs, raw); err != nil {
		return nil, err
	}

	tx.Commit()
	return raw.(*Entry), nil
}

// Get returns the entry with the given id or nil.
func (s *Store) Get(id int) (*Entry, error) {
	tx := s.db.Txn(false)
	defer tx.Abort()

	raw, err := tx.First(tableJobs, "id", id)
	if err != nil {
		return nil, fmt.Errorf("state: job lookup failed: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*Entry), nil
}

// All returns all entries ordered by id, adding a watch channel
// to the watch set that is closed when the entries change.
func (s *Store) All(ws memdb.WatchSet) ([]*Entry, error) {
	return s.list(ws, "id")
}

// ByGroup returns the entries in the given group ordered by id.
func (s *Store) ByGroup(group int) ([]*Entry, error) {
	return s.list(nil, "group", group)
}

// ByTag returns the entries with the given tag ordered by id.
func (s *Store) ByTag(tag string) ([]*Entry, error) {
	return s.list(nil, "tag", tag)
}

// Len returns the number of entries, adding a watch channel
// to the watch set that is closed when the entries change.
func (s *Store) Len(ws memdb.WatchSet) (int, error) {
	tx := s.db.Txn(false)
	defer tx.Abort()

	iter, err := tx.Get(tableJobs, "id")
	if err != nil {
		return 0, fmt.Errorf("state: job lookup failed: %w", err)
	}
	ws.Add(iter.WatchCh())

	var n int
	for next := iter.Next(); next != nil; next = iter.Next() {
		n++
	}
	return n, nil
}

func (s *Store) list(ws memdb.WatchSet, index string, args ...interface{}) ([]*Entry, error) {
	tx := s.db.Txn(false)
	defer tx.Abort()

	iter, err := tx.Get(tableJobs, index, args...)
	if err != nil {
		return nil, fmt.Errorf("state: job lookup failed: %w", err)
	}
	ws.Add(iter.WatchCh())

	var entries []*Entry
	for next := iter.Next(); next != nil; next = iter.Next() {
		entries = append(entries, next.(*Entry))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}
