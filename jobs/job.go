// Package jobs implements an in-process job execution engine.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hamba/pkg/log"
	"github.com/nrwiersma/worker/jobs/event"
	"github.com/nrwiersma/worker/jobs/params"
)

// Handler runs the body of a job.
//
// The returned event must be terminal. Returning an error
// fails the job with that error.
type Handler interface {
	Run(ctx context.Context, job *Job) (*event.Event, error)
}

// HandlerFunc is a function handler.
type HandlerFunc func(ctx context.Context, job *Job) (*event.Event, error)

// Run calls the function.
func (fn HandlerFunc) Run(ctx context.Context, job *Job) (*event.Event, error) {
	return fn(ctx, job)
}

// PreconditionChecker is implemented by handlers that check
// preconditions before running. A non-OK result aborts the job.
type PreconditionChecker interface {
	CheckPreconditions(ctx context.Context, job *Job) *event.Event
}

// PostExecutor is implemented by handlers that need to act on
// the result of a run.
type PostExecutor interface {
	OnPostExecute(ctx context.Context, job *Job, ev *event.Event)
}

// CancelHandler is implemented by handlers that want to know
// when their job is cancelled. It is called at most once.
type CancelHandler interface {
	OnCancelled(job *Job)
}

// ErrorHandler is implemented by handlers that want to see
// errors of a run. It cannot change the outcome.
type ErrorHandler interface {
	OnError(job *Job, err error)
}

// JobID is a snapshot of a job's identity.
type JobID struct {
	ID       int
	Group    int
	Priority int
	Type     string
}

// String returns a readable identity.
func (id JobID) String() string {
	return fmt.Sprintf("%s(%d)@%d", id.Type, id.ID, id.Group)
}

// StatusLock holds off status transitions of a job until released.
type StatusLock struct {
	once sync.Once
	mu   *sync.RWMutex
}

// Release releases the lock. It is safe to call more than once.
func (l *StatusLock) Release() {
	l.once.Do(l.mu.RUnlock)
}

// Job is a unit of work.
//
// A job is created with New, configured with Configure and then
// either submitted to a Manager or executed directly. A finished
// job must be Reset before it can be used again.
type Job struct {
	name    string
	handler Handler

	status   atomic.Int32
	statusMu sync.RWMutex

	mu        sync.Mutex
	params    *params.Params
	unwatch   func()
	pauses    int
	pauseCh   chan struct{}
	cancelled bool
	cancelCh  chan struct{}
	manager   *Manager
	path      []JobID
	forks     map[*Job]*future
	log       log.Logger

	events *Observable

	outMu      sync.Mutex
	outbox     []outgoing
	delivering bool
	notified   event.Status
}

type outgoing struct {
	ctx context.Context
	ev  *event.Event
}

// New returns an unconfigured job.
func New(name string, h Handler) *Job {
	return &Job{
		name:     name,
		handler:  h,
		cancelCh: make(chan struct{}),
		log:      log.Null,
		events:   NewObservable(),
	}
}

// Name returns the job name.
func (j *Job) Name() string {
	return j.name
}

// Handler returns the job handler.
func (j *Job) Handler() Handler {
	return j.handler
}

// Configure sets the job params. A job can only be configured
// while it is pending and has no id.
func (j *Job) Configure(opts ...params.Option) error {
	return j.setParams(params.New(opts...))
}

func (j *Job) setParams(p *params.Params) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.Status() != event.StatusPending || (j.params != nil && j.params.ID() != params.IDUnspecified) {
		return ErrAlreadySubmitted
	}

	if j.unwatch != nil {
		j.unwatch()
	}
	j.params = p
	j.unwatch = p.Flags().AddListener(j.onFlag)

	return nil
}

// Params returns the job params or nil if the job is not configured.
func (j *Job) Params() *params.Params {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.params
}

// ID returns the job id or params.IDUnspecified.
func (j *Job) ID() int {
	p := j.Params()
	if p == nil {
		return params.IDUnspecified
	}
	return p.ID()
}

// Snapshot returns the identity of the job.
func (j *Job) Snapshot() JobID {
	id := JobID{ID: params.IDUnspecified, Type: j.name}
	if p := j.Params(); p != nil {
		id.ID = p.ID()
		id.Group = p.Group()
		id.Priority = p.Priority()
	}
	return id
}

// Path returns the ancestry of a forked job, oldest first.
func (j *Job) Path() []JobID {
	j.mu.Lock()
	defer j.mu.Unlock()

	return append([]JobID(nil), j.path...)
}

// Status returns the job status.
func (j *Job) Status() event.Status {
	return event.Status(j.status.Load())
}

// AcquireStatusLock returns a lock that holds off status transitions
// until released. The job goroutine blocks on its next transition
// while any lock is held.
func (j *Job) AcquireStatusLock() *StatusLock {
	j.statusMu.RLock()
	return &StatusLock{mu: &j.statusMu}
}

// Subscribe registers a listener for the job's events.
func (j *Job) Subscribe(ctx context.Context, l Listener, opts ...SubscribeOption) (*Subscription, error) {
	return j.events.Subscribe(ctx, l, opts...)
}

// Unsubscribe removes a subscription from the job's events.
func (j *Job) Unsubscribe(ctx context.Context, sub *Subscription) error {
	return j.events.Unsubscribe(ctx, sub)
}

// Execute runs the job on the calling goroutine and returns its
// terminal event.
//
// Executing a job that is in progress or finished panics.
func (j *Job) Execute(ctx context.Context) *event.Event {
	if !j.transition(event.StatusInProgress) {
		panic(fmt.Sprintf("jobs: job %q cannot execute with status %s", j.name, j.Status()))
	}
	j.notifyStatus(ctx, event.StatusInProgress)

	ev := j.execute(ctx)
	if j.IsCancelled() && ev.Code() != event.CodeCancelled {
		ev = event.Cancelled()
	}

	res, _ := j.finish(ctx, ev)
	return res
}

func (j *Job) execute(ctx context.Context) *event.Event {
	if j.IsCancelled() || ctx.Err() != nil {
		return event.Cancelled()
	}
	if j.Params() == nil {
		return event.Failed(msgParamsNotDefined, ErrParamsNotDefined)
	}

	ctx, cancel := j.runContext(ctx)
	defer cancel()

	if err := j.waitUnpaused(ctx); err != nil {
		return event.Cancelled()
	}

	if pc, ok := j.handler.(PreconditionChecker); ok {
		if ev := pc.CheckPreconditions(ctx, j); ev != nil && ev.Code() != event.CodeOK {
			if ev.Validate() != nil || !ev.IsTerminal() {
				return event.Failed(msgInvalidResult, ErrInvalidResult)
			}
			return ev
		}
	}

	if err := j.waitUnpaused(ctx); err != nil {
		return event.Cancelled()
	}

	ev := j.run(ctx)

	if err := j.waitUnpaused(ctx); err != nil {
		return event.Cancelled()
	}

	if pe, ok := j.handler.(PostExecutor); ok {
		pe.OnPostExecute(ctx, j, ev)
	}

	return ev
}

func (j *Job) run(ctx context.Context) (ev *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			ev = j.fail(fmt.Errorf("jobs: job panicked: %v", r))
		}
	}()

	res, err := j.handler.Run(ctx, j)
	if err != nil {
		return j.fail(err)
	}

	if res == nil || res.Validate() != nil || !res.IsTerminal() {
		return event.Failed(msgInvalidResult, ErrInvalidResult)
	}
	return res
}

func (j *Job) fail(err error) *event.Event {
	if h, ok := j.handler.(ErrorHandler); ok {
		h.OnError(j, err)
	}

	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		if execErr.Event == nil || execErr.Event.Validate() != nil || !execErr.Event.IsTerminal() {
			return event.Failed(msgInvalidEvent, ErrInvalidEvent)
		}
		return execErr.Event
	}

	return event.Failed(err.Error(), err)
}

func (j *Job) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	j.mu.Lock()
	ch := j.cancelCh
	j.mu.Unlock()

	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Cancel cancels the job. It returns true only if the job was
// not already cancelled or finished.
func (j *Job) Cancel() bool {
	if j.Status().IsFinished() {
		return false
	}

	j.mu.Lock()
	if j.cancelled {
		j.mu.Unlock()
		return false
	}
	j.cancelled = true
	close(j.cancelCh)

	var children []*Job
	for child, f := range j.forks {
		if !f.isDone() {
			children = append(children, child)
		}
	}
	mgr := j.manager
	j.mu.Unlock()

	if h, ok := j.handler.(CancelHandler); ok {
		h.OnCancelled(j)
	}

	for _, child := range children {
		if mgr != nil {
			mgr.cancel(child)
			continue
		}
		child.Cancel()
	}

	return true
}

// IsCancelled determines if the job has been cancelled.
func (j *Job) IsCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.cancelled
}

// Pause pauses the job at its next pause point and returns the
// number of outstanding pauses.
func (j *Job) Pause() int {
	j.mu.Lock()
	j.pauses++
	n := j.pauses
	if n == 1 {
		j.pauseCh = make(chan struct{})
	}
	p := j.params
	j.mu.Unlock()

	if n == 1 && p != nil {
		p.Flags().Set(params.FlagPaused, true)
	}
	return n
}

// Unpause removes one pause and returns the number of outstanding
// pauses. The job resumes once no pauses are left.
func (j *Job) Unpause() int {
	j.mu.Lock()
	if j.pauses == 0 {
		j.mu.Unlock()
		return 0
	}
	j.pauses--
	n := j.pauses
	if n == 0 {
		close(j.pauseCh)
		j.pauseCh = nil
	}
	p := j.params
	j.mu.Unlock()

	if n == 0 && p != nil {
		p.Flags().Set(params.FlagPaused, false)
	}
	return n
}

// UnpauseAll removes all pauses.
func (j *Job) UnpauseAll() {
	j.mu.Lock()
	if j.pauses == 0 {
		j.mu.Unlock()
		return
	}
	j.pauses = 0
	close(j.pauseCh)
	j.pauseCh = nil
	p := j.params
	j.mu.Unlock()

	if p != nil {
		p.Flags().Set(params.FlagPaused, false)
	}
}

// PauseCount returns the number of outstanding pauses.
func (j *Job) PauseCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.pauses
}

// IsPaused determines if the job is paused.
func (j *Job) IsPaused() bool {
	return j.PauseCount() > 0
}

func (j *Job) waitUnpaused(ctx context.Context) error {
	for {
		j.mu.Lock()
		ch := j.pauseCh
		j.mu.Unlock()

		if ch == nil {
			return nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SetProgress publishes a progress update.
func (j *Job) SetProgress(ctx context.Context, progress int) {
	j.emit(ctx, event.Update(event.ExtraProgressUpdate, j.Status(), progress))
}

// SetMessage publishes a message update.
func (j *Job) SetMessage(ctx context.Context, msg string) {
	ev := event.Update(event.ExtraMessageChanged, j.Status(), msg)
	j.emit(ctx, ev)
}

// Publish publishes an update with the given payload.
func (j *Job) Publish(ctx context.Context, payload interface{}) {
	j.emit(ctx, event.Update(event.ExtraNone, j.Status(), payload))
}

// Reset returns a pending or finished job to its initial state,
// clearing its params. Resetting a job that is running panics.
func (j *Job) Reset() {
	st := j.Status()
	if st != event.StatusPending && !st.IsFinished() {
		panic(fmt.Sprintf("jobs: job %q cannot be reset with status %s", j.name, st))
	}

	j.statusMu.Lock()
	j.status.Store(int32(event.StatusPending))
	j.statusMu.Unlock()

	j.outMu.Lock()
	j.notified = event.StatusPending
	j.outMu.Unlock()

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.unwatch != nil {
		j.unwatch()
		j.unwatch = nil
	}
	j.params = nil
	if j.pauseCh != nil {
		close(j.pauseCh)
	}
	j.pauses = 0
	j.pauseCh = nil
	j.cancelled = false
	j.cancelCh = make(chan struct{})
	j.manager = nil
	j.path = nil
	j.forks = nil
	j.log = log.Null
}

func (j *Job) bind(m *Manager) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.manager = m
	j.log = m.log
}

func (j *Job) logger() log.Logger {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.log
}

func (j *Job) onFlag(name string, val bool) {
	j.emit(context.Background(), event.Update(event.ExtraFlagChanged, j.Status(), event.FlagChange{Name: name, Value: val}))
}

// transition moves the job to the given status, waiting for
// outstanding status locks.
func (j *Job) transition(to event.Status) bool {
	j.statusMu.Lock()
	defer j.statusMu.Unlock()

	from := event.Status(j.status.Load())
	if !from.CanTransition(to) {
		return false
	}
	j.status.Store(int32(to))
	return true
}

// notifyStatus emits a status change unless the job has
// already moved on.
func (j *Job) notifyStatus(ctx context.Context, st event.Status) {
	j.post(ctx, event.Update(event.ExtraStatusChanged, st, nil), true)
}

// finish ends the job with the given terminal event.
func (j *Job) finish(ctx context.Context, ev *event.Event) (*event.Event, bool) {
	if !j.transition(ev.Status()) {
		return ev, false
	}
	return j.post(ctx, ev, true), true
}

// emit binds the event to the job and notifies the listeners.
func (j *Job) emit(ctx context.Context, ev *event.Event) *event.Event {
	return j.post(ctx, ev, false)
}

// post binds the event to the job and queues it for delivery.
// Events of jobs without an id are not delivered.
//
// Events of a job are delivered one at a time in the order they
// were posted. The goroutine that finds the outbox idle delivers
// until it is empty, others return once their event is queued.
// A status event is dropped when the job no longer has that
// status or a later status was already posted.
func (j *Job) post(ctx context.Context, ev *event.Event, status bool) *event.Event {
	p := j.Params()
	if p == nil {
		return ev
	}

	ev = ev.WithSource(j.name, p)
	if p.ID() == params.IDUnspecified {
		return ev
	}

	j.outMu.Lock()
	if status {
		st := ev.Status()
		if j.Status() != st || st <= j.notified {
			j.outMu.Unlock()
			return ev
		}
		j.notified = st
	}
	j.outbox = append(j.outbox, outgoing{ctx: ctx, ev: ev})
	if j.delivering {
		j.outMu.Unlock()
		return ev
	}
	j.delivering = true
	j.outMu.Unlock()

	j.deliver()
	return ev
}

func (j *Job) deliver() {
	done := false
	defer func() {
		if done {
			return
		}
		// A listener panicked.
		j.outMu.Lock()
		j.outbox = nil
		j.delivering = false
		j.outMu.Unlock()
	}()

	for {
		j.outMu.Lock()
		if len(j.outbox) == 0 {
			j.delivering = false
			j.outMu.Unlock()
			done = true
			return
		}
		out := j.outbox[0]
		j.outbox[0] = outgoing{}
		j.outbox = j.outbox[1:]
		j.outMu.Unlock()

		if err := j.events.Notify(out.ctx, out.ev); err != nil {
			j.logger().Debug("job: event not delivered", "job", out.ev.JobID(), "event", out.ev.String(), "error", err)
		}
	}
}
