package jobs

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hamba/pkg/log"
	"github.com/hashicorp/go-memdb"
	"github.com/nrwiersma/worker/jobs/event"
	"github.com/nrwiersma/worker/jobs/params"
	"github.com/nrwiersma/worker/jobs/state"
	"github.com/pkg/errors"
)

const registryTag = "jobs.registry"

// registration relays the events of a registered job.
type registration struct {
	m   *Manager
	job *Job
	sub atomic.Pointer[Subscription]
}

func (r *registration) OnJobEvent(ctx context.Context, ev *event.Event) {
	if ev.IsTerminal() {
		if _, err := r.m.store.Delete(ev.JobID()); err != nil {
			r.m.log.Error("manager: could not remove job", "job", ev.JobID(), "error", err)
		}
		r.close()
	}

	if err := r.m.events.Notify(ctx, ev); err != nil {
		r.m.log.Debug("manager: event not relayed", "job", ev.JobID(), "error", err)
	}
}

func (r *registration) close() {
	if sub := r.sub.Load(); sub != nil {
		sub.Close()
	}
}

// Manager is the registry of submitted jobs.
//
// It assigns job ids, hands jobs to its scheduler and relays the
// events of all registered jobs to its own listeners. Jobs are
// removed from the registry once they finish.
type Manager struct {
	store  *state.Store
	sched  *Scheduler
	events *Observable
	nextID atomic.Int64

	log log.Logger

	shutdownMu sync.Mutex
	shutdown   bool
}

// NewManager returns a manager.
func NewManager(cfg *Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := state.New()
	if err != nil {
		return nil, errors.Wrap(err, "manager: could not create store")
	}

	return &Manager{
		store:  store,
		sched:  NewScheduler(cfg),
		events: NewObservable(),
		log:    cfg.logger(),
	}, nil
}

// Scheduler returns the manager's scheduler.
func (m *Manager) Scheduler() *Scheduler {
	return m.sched
}

func (m *Manager) mintID() int {
	return int(m.nextID.Add(1))
}

func (m *Manager) isClosed() bool {
	m.shutdownMu.Lock()
	defer m.shutdownMu.Unlock()

	return m.shutdown
}

// Submit registers and schedules a configured, pending job,
// returning its id.
func (m *Manager) Submit(job *Job) (int, error) {
	if m.isClosed() {
		return params.IDUnspecified, ErrManagerClosed
	}

	p := job.Params()
	if p == nil {
		return params.IDUnspecified, ErrParamsNotDefined
	}
	if job.Status() != event.StatusPending || p.ID() != params.IDUnspecified {
		return params.IDUnspecified, ErrAlreadySubmitted
	}

	id := m.mintID()
	if err := p.AssignID(id); err != nil {
		return params.IDUnspecified, ErrAlreadySubmitted
	}
	job.bind(m)

	reg := &registration{m: m, job: job}
	sub, err := job.Subscribe(context.Background(), reg, WithTag(registryTag))
	if err != nil {
		return params.IDUnspecified, err
	}
	reg.sub.Store(sub)

	entry := &state.Entry{
		ID:    id,
		Group: p.Group(),
		Name:  job.Name(),
		Tags:  p.Tags(),
		Value: reg,
	}
	if err = m.store.Insert(entry); err != nil {
		sub.Close()
		return params.IDUnspecified, errors.Wrap(err, "manager: could not register job")
	}

	if err = m.sched.Submit(job); err != nil {
		_, _ = m.store.Delete(id)
		sub.Close()
		return params.IDUnspecified, err
	}

	m.log.Debug("manager: job submitted", "job", id, "name", job.Name(), "group", p.Group())

	return id, nil
}

// FindJob returns the registered job with the lowest id that
// matches the selector, or nil.
func (m *Manager) FindJob(sel *Selector) *Job {
	jobs := m.find(sel, 1)
	if len(jobs) == 0 {
		return nil
	}
	return jobs[0]
}

// FindAll returns the registered jobs matching the selector,
// ordered by id.
func (m *Manager) FindAll(sel *Selector) []*Job {
	return m.find(sel, 0)
}

func (m *Manager) find(sel *Selector, limit int) []*Job {
	if sel == nil {
		sel = Select()
	}

	var (
		entries []*state.Entry
		err     error
	)
	if tags := sel.requiredTags(); len(tags) > 0 {
		entries, err = m.store.ByTag(tags[0])
	} else {
		entries, err = m.store.All(nil)
	}
	if err != nil {
		m.log.Error("manager: could not list jobs", "error", err)
		return nil
	}

	var jobs []*Job
	for _, e := range entries {
		job := e.Value.(*registration).job
		if !sel.Match(job) {
			continue
		}
		jobs = append(jobs, job)
		if limit > 0 && len(jobs) == limit {
			break
		}
	}
	return jobs
}

// Job returns the registered job with the given id, or nil.
func (m *Manager) Job(id int) *Job {
	e, err := m.store.Get(id)
	if err != nil || e == nil {
		return nil
	}
	return e.Value.(*registration).job
}

// CancelJob cancels the job with the given id. It returns true
// only if the job was registered and not already cancelled.
func (m *Manager) CancelJob(id int) bool {
	job := m.Job(id)
	if job == nil {
		return false
	}
	return m.cancel(job)
}

// CancelAll cancels the jobs matching the selector, returning the
// number of jobs that were cancelled.
func (m *Manager) CancelAll(sel *Selector) int {
	var n int
	for _, job := range m.FindAll(sel) {
		if m.cancel(job) {
			n++
		}
	}
	return n
}

func (m *Manager) cancel(job *Job) bool {
	if !job.Cancel() {
		return false
	}

	// A queued job never reaches an executor, finish it here.
	if m.sched.Remove(job) {
		job.finish(context.Background(), event.Cancelled())
	}

	m.log.Debug("manager: job cancelled", "job", job.ID())
	return true
}

// DiscardJob removes the job from the registry without touching
// its execution. Its events are no longer relayed.
func (m *Manager) DiscardJob(id int) bool {
	e, err := m.store.Delete(id)
	if err != nil {
		m.log.Error("manager: could not discard job", "job", id, "error", err)
		return false
	}
	if e == nil {
		return false
	}

	e.Value.(*registration).close()
	return true
}

// Subscribe registers a listener for the events of all registered jobs.
func (m *Manager) Subscribe(ctx context.Context, l Listener, opts ...SubscribeOption) (*Subscription, error) {
	return m.events.Subscribe(ctx, l, opts...)
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(ctx context.Context, sub *Subscription) error {
	return m.events.Unsubscribe(ctx, sub)
}

// Len returns the number of registered jobs.
func (m *Manager) Len() int {
	n, err := m.store.Len(nil)
	if err != nil {
		return 0
	}
	return n
}

// Wait blocks until no jobs are registered or the context is done.
func (m *Manager) Wait(ctx context.Context) error {
	for {
		ws := memdb.NewWatchSet()
		n, err := m.store.Len(ws)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		if err = ws.WatchCtx(ctx); err != nil {
			return err
		}
	}
}

// Close stops the scheduler. Queued jobs are cancelled and new
// submissions are rejected.
func (m *Manager) Close() error {
	m.shutdownMu.Lock()
	if m.shutdown {
		m.shutdownMu.Unlock()
		return nil
	}
	m.shutdown = true
	m.shutdownMu.Unlock()

	m.sched.Stop()
	return nil
}
