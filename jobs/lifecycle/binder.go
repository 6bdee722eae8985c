// Package lifecycle keeps job results for hosts that come and go.
//
// A Binder submits jobs on behalf of a host. While the host is
// detached, the results of its jobs are cached; they are replayed
// when the host attaches again. The binder state can be saved and
// restored so that a recreated host picks up where it left off.
package lifecycle

import (
	"context"
	"sort"
	"sync"

	"github.com/hamba/pkg/log"
	"github.com/nrwiersma/worker/jobs"
	"github.com/nrwiersma/worker/jobs/cache"
	"github.com/nrwiersma/worker/jobs/event"
	"github.com/nrwiersma/worker/jobs/internal/codec"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
)

// Registry represents a job registry.
type Registry interface {
	Submit(job *jobs.Job) (int, error)
	Job(id int) *jobs.Job
}

// State is the saved state of a binder.
type State struct {
	Tag      string
	Pending  []int
	Finished []int
}

// Binder tracks the jobs submitted for a host.
type Binder struct {
	reg   Registry
	cache cache.Cache
	tag   string
	log   log.Logger

	mu       sync.Mutex
	listener jobs.Listener
	subs     map[int]*jobs.Subscription
	pending  map[int]struct{}
	finished map[int]struct{}
}

// New returns a binder with a new tag.
func New(reg Registry, c cache.Cache, logger log.Logger) *Binder {
	return newBinder(reg, c, logger, ksuid.New().String())
}

func newBinder(reg Registry, c cache.Cache, logger log.Logger, tag string) *Binder {
	if logger == nil {
		logger = log.Null
	}

	return &Binder{
		reg:      reg,
		cache:    c,
		tag:      tag,
		log:      logger,
		subs:     map[int]*jobs.Subscription{},
		pending:  map[int]struct{}{},
		finished: map[int]struct{}{},
	}
}

// Restore returns a binder from saved state, re-attaching to the
// jobs that are still registered.
func Restore(ctx context.Context, reg Registry, c cache.Cache, logger log.Logger, data []byte) (*Binder, error) {
	var s State
	if err := codec.Decode(codec.LifecycleStateType, data, &s); err != nil {
		return nil, errors.Wrap(err, "lifecycle: could not decode state")
	}

	b := newBinder(reg, c, logger, s.Tag)
	for _, id := range s.Finished {
		b.finished[id] = struct{}{}
	}
	for _, id := range s.Pending {
		job := reg.Job(id)
		if job == nil {
			// The job finished while no binder was listening.
			b.finished[id] = struct{}{}
			continue
		}

		sub, err := job.Subscribe(ctx, b, jobs.WithTag(b.tag))
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.pending[id] = struct{}{}
		b.subs[id] = sub
		b.mu.Unlock()

		// The job may have finished before the subscription.
		if job.Status().IsFinished() {
			b.mu.Lock()
			delete(b.pending, id)
			delete(b.subs, id)
			b.finished[id] = struct{}{}
			b.mu.Unlock()
			sub.Close()
		}
	}

	return b, nil
}

// Tag returns the binder tag.
func (b *Binder) Tag() string {
	return b.tag
}

// Submit subscribes the binder to the job and submits it.
func (b *Binder) Submit(job *jobs.Job) (int, error) {
	sub, err := job.Subscribe(context.Background(), b, jobs.WithTag(b.tag))
	if err != nil {
		return 0, err
	}

	id, err := b.reg.Submit(job)
	if err != nil {
		sub.Close()
		return id, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !job.Status().IsFinished() {
		b.pending[id] = struct{}{}
		b.subs[id] = sub
	}
	return id, nil
}

// OnJobEvent forwards events to the attached listener, caching
// terminal events while detached.
func (b *Binder) OnJobEvent(ctx context.Context, ev *event.Event) {
	id := ev.JobID()

	b.mu.Lock()
	l := b.listener
	if ev.IsTerminal() {
		delete(b.pending, id)
		if sub, ok := b.subs[id]; ok {
			sub.Close()
			delete(b.subs, id)
		}
		if l == nil {
			b.finished[id] = struct{}{}
		}
	}
	b.mu.Unlock()

	if l != nil {
		l.OnJobEvent(ctx, ev)
		return
	}

	if !ev.IsTerminal() {
		return
	}
	if err := b.cache.Put(ctx, cache.Key(b.tag, id), ev.Record()); err != nil {
		b.log.Error("lifecycle: could not cache result", "job", id, "error", err)
	}
}

// Attach attaches the host listener, replaying the results of
// jobs that finished while detached.
func (b *Binder) Attach(ctx context.Context, l jobs.Listener) {
	b.mu.Lock()
	b.listener = l
	ids := make([]int, 0, len(b.finished))
	for id := range b.finished {
		ids = append(ids, id)
	}
	b.finished = map[int]struct{}{}
	b.mu.Unlock()

	sort.Ints(ids)
	for _, id := range ids {
		key := cache.Key(b.tag, id)
		rec, ok, err := b.cache.Get(ctx, key)
		if err != nil {
			b.log.Error("lifecycle: could not read result", "job", id, "error", err)
			continue
		}
		if !ok {
			continue
		}

		l.OnJobEvent(ctx, event.FromRecord(rec))

		if err = b.cache.Evict(ctx, key); err != nil {
			b.log.Error("lifecycle: could not evict result", "job", id, "error", err)
		}
	}
}

// Detach detaches the host listener.
func (b *Binder) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listener = nil
}

// Pending returns the ids of the jobs that have not finished.
func (b *Binder) Pending() []int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return sortedIDs(b.pending)
}

// Save returns the encoded binder state.
func (b *Binder) Save() ([]byte, error) {
	b.mu.Lock()
	s := State{
		Tag:      b.tag,
		Pending:  sortedIDs(b.pending),
		Finished: sortedIDs(b.finished),
	}
	b.mu.Unlock()

	return codec.Encode(codec.LifecycleStateType, s)
}

// Close stops tracking the pending jobs.
func (b *Binder) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		sub.Close()
		delete(b.subs, id)
	}
	b.listener = nil
}

func sortedIDs(m map[int]struct{}) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
