package jobs

import (
	"context"
	"sync"

	"github.com/nrwiersma/worker/jobs/event"
	"github.com/nrwiersma/worker/jobs/params"
	"github.com/pkg/errors"
)

type forkOptions struct {
	group    int
	hasGroup bool
	forward  bool
}

// ForkOption configures a fork.
type ForkOption func(*forkOptions)

// InGroup runs the forked job in the given group.
func InGroup(group int) ForkOption {
	return func(o *forkOptions) {
		o.group = group
		o.hasGroup = true
	}
}

// ForwardEvents republishes the updates of the forked job as
// updates of the parent. Status changes and progress are not
// forwarded.
func ForwardEvents() ForkOption {
	return func(o *forkOptions) {
		o.forward = true
	}
}

type future struct {
	once sync.Once
	done chan struct{}
	ev   *event.Event
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) resolve(ev *event.Event) {
	f.once.Do(func() {
		f.ev = ev
		close(f.done)
	})
}

func (f *future) isDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

type forkListener struct {
	parent  *Job
	fut     *future
	forward bool
}

func (l *forkListener) OnJobEvent(ctx context.Context, ev *event.Event) {
	if ev.IsTerminal() {
		l.fut.resolve(ev)
		return
	}

	if !l.forward {
		return
	}
	switch ev.Extra() {
	case event.ExtraStatusChanged, event.ExtraProgressUpdate:
		return
	}
	l.parent.forward(ctx, ev)
}

// Fork starts a child job and records it for Join.
//
// A child in the default group inherits the parent's group. A child
// in the parent's group runs synchronously on the calling goroutine.
// Other children are submitted to the parent's manager and Fork
// returns once the child has been dispatched or queued.
//
// Forking into a group held by an ancestor other than the immediate
// parent fails with ErrForkDeadlock. A unique child that cannot get a
// goroutine fails with an execution error wrapping ErrForkRejected.
func (j *Job) Fork(ctx context.Context, child *Job, opts ...ForkOption) error {
	o := forkOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	p := j.Params()
	if p == nil {
		return ErrParamsNotDefined
	}

	j.mu.Lock()
	mgr := j.manager
	j.mu.Unlock()
	if mgr == nil {
		return ErrNotRegistered
	}

	cp := child.Params()
	if cp == nil {
		cp = params.New()
	}
	group := cp.Group()
	if o.hasGroup {
		group = o.group
	}
	if group == params.GroupDefault {
		group = p.Group()
	}

	path := append(j.Path(), j.Snapshot())
	if err := checkAncestry(path, group); err != nil {
		return err
	}

	if err := child.setParams(cp.With(params.WithGroup(group))); err != nil {
		return err
	}
	child.bind(mgr)
	child.mu.Lock()
	child.path = path
	child.mu.Unlock()

	fut := newFuture()
	j.mu.Lock()
	if j.forks == nil {
		j.forks = map[*Job]*future{}
	}
	j.forks[child] = fut
	j.mu.Unlock()

	if group == p.Group() && group != params.GroupUnique && group != params.GroupDedicated {
		return j.forkSync(ctx, mgr, child, fut, o.forward)
	}
	return j.forkAsync(ctx, mgr, child, fut, group, o.forward)
}

func (j *Job) forkSync(ctx context.Context, mgr *Manager, child *Job, fut *future, forward bool) error {
	if err := child.Params().AssignID(mgr.mintID()); err != nil {
		j.dropFork(child)
		return errors.Wrap(err, "jobs: could not assign forked job id")
	}

	if forward {
		sub, err := child.Subscribe(ctx, &forkListener{parent: j, fut: fut, forward: true})
		if err != nil {
			j.dropFork(child)
			return err
		}
		defer sub.Close()
	}

	fut.resolve(child.Execute(ctx))
	return nil
}

func (j *Job) forkAsync(ctx context.Context, mgr *Manager, child *Job, fut *future, group int, forward bool) error {
	l := &forkListener{
		parent:  j,
		fut:     fut,
		forward: forward,
	}
	sub, err := child.Subscribe(ctx, l)
	if err != nil {
		j.dropFork(child)
		return err
	}

	id, err := mgr.Submit(child)
	if err != nil {
		sub.Close()
		j.dropFork(child)
		return errors.Wrap(err, "jobs: could not submit forked job")
	}

	// Submit leaves the child enqueued or dispatched.
	if group != params.GroupUnique || child.Status() != event.StatusEnqueued {
		return nil
	}

	// The child would wait for a goroutine that the parent may be holding.
	if !mgr.sched.Remove(child) {
		return nil
	}
	sub.Close()
	j.dropFork(child)
	mgr.DiscardJob(id)
	child.Cancel()
	child.finish(ctx, event.Cancelled())

	mgr.log.Debug("manager: unique fork rejected", "job", j.ID(), "child", id)

	return NewExecutionError(event.Failed(msgForkRejected, ErrForkRejected), ErrForkRejected)
}

// Join waits for a forked child to finish and returns its
// terminal event.
func (j *Job) Join(ctx context.Context, child *Job) (*event.Event, error) {
	j.mu.Lock()
	f, ok := j.forks[child]
	j.mu.Unlock()
	if !ok {
		return nil, ErrNotForked
	}

	select {
	case <-f.done:
		return f.ev, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "jobs: join interrupted")
	}
}

func (j *Job) dropFork(child *Job) {
	j.mu.Lock()
	defer j.mu.Unlock()

	delete(j.forks, child)
}

func (j *Job) forward(ctx context.Context, ev *event.Event) {
	fwd, err := event.New(event.CodeUpdate, j.Status(),
		event.WithExtra(ev.Extra()),
		event.WithPayload(ev.Payload()),
		event.WithMessage(ev.Message()),
	)
	if err != nil {
		return
	}
	j.emit(ctx, fwd)
}

// checkAncestry rejects a group held by an ancestor, unless the
// immediate parent holds it too.
func checkAncestry(path []JobID, group int) error {
	if len(path) == 0 || path[len(path)-1].Group == group {
		return nil
	}

	for _, id := range path[:len(path)-1] {
		if id.Group == group {
			return errors.Wrapf(ErrForkDeadlock, "group %d is held by %s", group, id)
		}
	}
	return nil
}
