package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nrwiersma/worker/jobs"
	"github.com/nrwiersma/worker/jobs/event"
	"github.com/nrwiersma/worker/jobs/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type forkResult struct {
	forkErr error
	status  event.Status
	ev      *event.Event
	joinErr error
}

// forkingHandler forks the child with the given options and joins it.
func forkingHandler(child *jobs.Job, res chan<- forkResult, opts ...jobs.ForkOption) jobs.Handler {
	return jobs.HandlerFunc(func(ctx context.Context, j *jobs.Job) (*event.Event, error) {
		var r forkResult
		defer func() { res <- r }()

		if r.forkErr = j.Fork(ctx, child, opts...); r.forkErr != nil {
			return nil, r.forkErr
		}
		r.status = child.Status()
		r.ev, r.joinErr = j.Join(ctx, child)
		return event.OK(nil), nil
	})
}

func waitResult(t *testing.T, res <-chan forkResult) forkResult {
	t.Helper()

	select {
	case r := <-res:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("fork did not complete")
		return forkResult{}
	}
}

func TestJob_ForkSameGroupRunsSynchronously(t *testing.T) {
	m := newManager(t)
	child := jobs.New("child", okHandler())
	require.NoError(t, child.Configure())
	res := make(chan forkResult, 1)

	parent := newJob(t, "parent", forkingHandler(child, res), params.WithGroup(3))
	_, err := m.Submit(parent)
	require.NoError(t, err)

	r := waitResult(t, res)
	require.NoError(t, r.forkErr)
	require.NoError(t, r.joinErr)
	assert.Equal(t, event.StatusOK, r.status)
	assert.Equal(t, event.CodeOK, r.ev.Code())
	assert.Equal(t, 3, child.Params().Group())
	assert.Greater(t, child.ID(), 0)
	assert.Equal(t, []jobs.JobID{parent.Snapshot()}, child.Path())
	assert.Nil(t, m.Job(child.ID()))

	waitIdle(t, m)
}

func TestJob_ForkNestedSameGroup(t *testing.T) {
	m := newManager(t)
	grandchild := newJob(t, "grandchild", okHandler())
	inner := make(chan forkResult, 1)
	child := newJob(t, "child", forkingHandler(grandchild, inner, jobs.InGroup(1)))
	outer := make(chan forkResult, 1)

	_, err := m.Submit(newJob(t, "parent", forkingHandler(child, outer), params.WithGroup(1)))
	require.NoError(t, err)

	r := waitResult(t, inner)
	require.NoError(t, r.forkErr)
	assert.Equal(t, event.CodeOK, r.ev.Code())
	r = waitResult(t, outer)
	require.NoError(t, r.forkErr)
	assert.Equal(t, event.CodeOK, r.ev.Code())
	assert.Len(t, grandchild.Path(), 2)

	waitIdle(t, m)
}

func TestJob_ForkOtherGroup(t *testing.T) {
	m := newManager(t)
	child := jobs.New("child", jobs.HandlerFunc(func(context.Context, *jobs.Job) (*event.Event, error) {
		return event.OK("result"), nil
	}))
	require.NoError(t, child.Configure())
	res := make(chan forkResult, 1)

	_, err := m.Submit(newJob(t, "parent", forkingHandler(child, res, jobs.InGroup(4)), params.WithGroup(3)))
	require.NoError(t, err)

	r := waitResult(t, res)
	require.NoError(t, r.forkErr)
	require.NoError(t, r.joinErr)
	assert.Equal(t, event.CodeOK, r.ev.Code())
	assert.Equal(t, "result", r.ev.Payload())
	assert.Equal(t, 4, child.Params().Group())
	assert.NotEqual(t, event.StatusPending, r.status)

	waitIdle(t, m)
}

func TestJob_ForkRejectsDeadlock(t *testing.T) {
	m := newManager(t)
	grandchild := newJob(t, "grandchild", okHandler())
	inner := make(chan forkResult, 1)
	child := newJob(t, "child", forkingHandler(grandchild, inner, jobs.InGroup(1)))
	outer := make(chan forkResult, 1)

	_, err := m.Submit(newJob(t, "parent", forkingHandler(child, outer, jobs.InGroup(2)), params.WithGroup(1)))
	require.NoError(t, err)

	r := waitResult(t, inner)
	assert.True(t, errors.Is(r.forkErr, jobs.ErrForkDeadlock))
	assert.Equal(t, event.StatusPending, grandchild.Status())

	r = waitResult(t, outer)
	require.NoError(t, r.forkErr)
	assert.Equal(t, event.CodeFailed, r.ev.Code())

	waitIdle(t, m)
}

func TestJob_ForkUniqueWhilePoolIsSaturated(t *testing.T) {
	m := newManager(t, func(cfg *jobs.Config) {
		cfg.Concurrency = 1
	})
	child := newJob(t, "child", okHandler(), params.WithGroup(params.GroupUnique))
	childRec := &recorder{}
	_, err := child.Subscribe(context.Background(), childRec)
	require.NoError(t, err)
	parentRec := &recorder{}
	_, err = m.Subscribe(context.Background(), parentRec, jobs.WithFilter(jobs.Filter{Names: []string{"parent"}}))
	require.NoError(t, err)

	var joinErr error
	res := make(chan forkResult, 1)
	parent := newJob(t, "parent", jobs.HandlerFunc(func(ctx context.Context, j *jobs.Job) (*event.Event, error) {
		err := j.Fork(ctx, child)
		_, joinErr = j.Join(ctx, child)
		res <- forkResult{forkErr: err}
		return nil, err
	}), params.WithGroup(params.GroupUnique))
	_, err = m.Submit(parent)
	require.NoError(t, err)

	r := waitResult(t, res)
	waitIdle(t, m)

	require.Error(t, r.forkErr)
	assert.True(t, errors.Is(r.forkErr, jobs.ErrForkRejected))
	var execErr *jobs.ExecutionError
	assert.True(t, errors.As(r.forkErr, &execErr))
	assert.Equal(t, jobs.ErrNotForked, joinErr)

	assert.Equal(t, event.StatusCancelled, child.Status())
	assert.NotContains(t, childRec.Statuses(), event.StatusInProgress)

	terms := parentRec.Terminal()
	require.Len(t, terms, 1)
	assert.Equal(t, event.CodeFailed, terms[0].Code())
	assert.Equal(t, "forked job could not be started", terms[0].Message())
}

func TestJob_ForkWithoutManager(t *testing.T) {
	parent := newBoundJob(t, "parent", 1, okHandler())

	err := parent.Fork(context.Background(), newJob(t, "child", okHandler()))

	assert.Equal(t, jobs.ErrNotRegistered, err)
}

func TestJob_ForkChildWithIDFails(t *testing.T) {
	m := newManager(t)
	child := newBoundJob(t, "child", 99, okHandler())

	res := make(chan forkResult, 1)
	_, err := m.Submit(newJob(t, "parent", forkingHandler(child, res), params.WithGroup(3)))
	require.NoError(t, err)

	r := waitResult(t, res)
	assert.Equal(t, jobs.ErrAlreadySubmitted, r.forkErr)
	waitIdle(t, m)
	assert.Equal(t, event.StatusPending, child.Status())
	_, err = jobs.New("other", okHandler()).Join(context.Background(), child)
	assert.Equal(t, jobs.ErrNotForked, err)
}

func TestJob_JoinUnknownChild(t *testing.T) {
	parent := newBoundJob(t, "parent", 1, okHandler())

	_, err := parent.Join(context.Background(), newJob(t, "child", okHandler()))

	assert.Equal(t, jobs.ErrNotForked, err)
}

func TestJob_JoinHonoursContext(t *testing.T) {
	m := newManager(t)
	release := make(chan struct{})
	child := newJob(t, "child", blockingHandler(nil, release))

	res := make(chan forkResult, 1)
	_, err := m.Submit(newJob(t, "parent", jobs.HandlerFunc(func(ctx context.Context, j *jobs.Job) (*event.Event, error) {
		var r forkResult
		r.forkErr = j.Fork(ctx, child, jobs.InGroup(2))

		joinCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, r.joinErr = j.Join(joinCtx, child)
		close(release)
		r.ev, _ = j.Join(ctx, child)

		res <- r
		return event.OK(nil), nil
	}), params.WithGroup(1)))
	require.NoError(t, err)

	r := waitResult(t, res)
	require.NoError(t, r.forkErr)
	assert.True(t, errors.Is(r.joinErr, context.DeadlineExceeded))
	assert.Equal(t, event.CodeOK, r.ev.Code())

	waitIdle(t, m)
}

func TestJob_CancelCancelsForkedChildren(t *testing.T) {
	m := newManager(t)
	started := make(chan struct{}, 1)
	child := newJob(t, "child", blockingHandler(started, nil))
	res := make(chan forkResult, 1)

	parent := newJob(t, "parent", forkingHandler(child, res, jobs.InGroup(2)), params.WithGroup(1))
	id, err := m.Submit(parent)
	require.NoError(t, err)
	waitStarted(t, started)

	assert.True(t, m.CancelJob(id))
	waitResult(t, res)
	waitIdle(t, m)

	assert.Equal(t, event.StatusCancelled, child.Status())
	assert.Equal(t, event.StatusCancelled, parent.Status())
}

func TestJob_ForkForwardsEvents(t *testing.T) {
	m := newManager(t)
	rec := &recorder{}
	_, err := m.Subscribe(context.Background(), rec, jobs.WithFilter(jobs.Filter{
		Names:  []string{"parent"},
		Extras: []event.ExtraCode{event.ExtraProgressUpdate, event.ExtraMessageChanged},
	}))
	require.NoError(t, err)

	child := newJob(t, "child", jobs.HandlerFunc(func(ctx context.Context, j *jobs.Job) (*event.Event, error) {
		j.SetProgress(ctx, 10)
		j.SetMessage(ctx, "hello")
		return event.OK(nil), nil
	}))
	res := make(chan forkResult, 1)

	_, err = m.Submit(newJob(t, "parent", forkingHandler(child, res, jobs.InGroup(2), jobs.ForwardEvents()), params.WithGroup(1)))
	require.NoError(t, err)

	waitResult(t, res)
	waitIdle(t, m)

	evs := rec.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, event.ExtraMessageChanged, evs[0].Extra())
	assert.Equal(t, "hello", evs[0].Payload())
	assert.Equal(t, event.StatusInProgress, evs[0].Status())
}
