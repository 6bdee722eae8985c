package params

import (
	"sort"
	"sync"
)

// FlagPaused is set while a job is paused.
const FlagPaused = "paused"

// FlagFunc is called when a flag changes.
type FlagFunc func(name string, val bool)

// Flags is a set of named boolean flags that notifies
// listeners on change. It is safe for concurrent use.
type Flags struct {
	mu   sync.RWMutex
	vals map[string]bool

	lnrsMu sync.Mutex
	lnrs   map[int]FlagFunc
	next   int
}

// NewFlags returns an empty set of flags.
func NewFlags() *Flags {
	return &Flags{
		vals: map[string]bool{},
		lnrs: map[int]FlagFunc{},
	}
}

// Set sets a flag, notifying the listeners if the value changed.
func (f *Flags) Set(name string, val bool) {
	f.mu.Lock()
	old, ok := f.vals[name]
	f.vals[name] = val
	f.mu.Unlock()

	if ok && old == val {
		return
	}
	f.notify(name, val)
}

// Unset removes a flag. Listeners see the flag become false.
func (f *Flags) Unset(name string) {
	f.mu.Lock()
	old, ok := f.vals[name]
	delete(f.vals, name)
	f.mu.Unlock()

	if !ok || !old {
		return
	}
	f.notify(name, false)
}

// Get returns the flag value and whether the flag is set.
func (f *Flags) Get(name string) (val, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	val, ok = f.vals[name]
	return val, ok
}

// Value returns the flag value, false when the flag is not set.
func (f *Flags) Value(name string) bool {
	val, _ := f.Get(name)
	return val
}

// Names returns the sorted names of the set flags.
func (f *Flags) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.vals))
	for name := range f.vals {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Snapshot returns a copy of the flags.
func (f *Flags) Snapshot() map[string]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	vals := make(map[string]bool, len(f.vals))
	for k, v := range f.vals {
		vals[k] = v
	}
	return vals
}

// AddListener registers a change listener. The returned
// function removes the listener.
func (f *Flags) AddListener(fn FlagFunc) (remove func()) {
	f.lnrsMu.Lock()
	defer f.lnrsMu.Unlock()

	id := f.next
	f.next++
	f.lnrs[id] = fn

	return func() {
		f.lnrsMu.Lock()
		defer f.lnrsMu.Unlock()

		delete(f.lnrs, id)
	}
}

func (f *Flags) notify(name string, val bool) {
	f.lnrsMu.Lock()
	ids := make([]int, 0, len(f.lnrs))
	for id := range f.lnrs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]FlagFunc, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.lnrs[id])
	}
	f.lnrsMu.Unlock()

	for _, fn := range fns {
		fn(name, val)
	}
}
