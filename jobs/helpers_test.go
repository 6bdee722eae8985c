package jobs_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nrwiersma/worker/jobs"
	"github.com/nrwiersma/worker/jobs/event"
	"github.com/nrwiersma/worker/jobs/params"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recorder) OnJobEvent(_ context.Context, ev *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
}

func (r *recorder) Events() []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*event.Event(nil), r.events...)
}

// Statuses returns the statuses announced by status changes and
// terminal events.
func (r *recorder) Statuses() []event.Status {
	var sts []event.Status
	for _, ev := range r.Events() {
		if ev.IsTerminal() || ev.Extra() == event.ExtraStatusChanged {
			sts = append(sts, ev.Status())
		}
	}
	return sts
}

func (r *recorder) Terminal() []*event.Event {
	var evs []*event.Event
	for _, ev := range r.Events() {
		if ev.IsTerminal() {
			evs = append(evs, ev)
		}
	}
	return evs
}

func okHandler() jobs.Handler {
	return jobs.HandlerFunc(func(context.Context, *jobs.Job) (*event.Event, error) {
		return event.OK(nil), nil
	})
}

// blockingHandler blocks until release is closed or the job is cancelled.
func blockingHandler(started chan<- struct{}, release <-chan struct{}) jobs.Handler {
	return jobs.HandlerFunc(func(ctx context.Context, _ *jobs.Job) (*event.Event, error) {
		if started != nil {
			started <- struct{}{}
		}

		select {
		case <-release:
			return event.OK(nil), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func newJob(t *testing.T, name string, h jobs.Handler, opts ...params.Option) *jobs.Job {
	t.Helper()

	j := jobs.New(name, h)
	require.NoError(t, j.Configure(opts...))
	return j
}

// newBoundJob returns a configured job with an id, so its events are delivered.
func newBoundJob(t *testing.T, name string, id int, h jobs.Handler, opts ...params.Option) *jobs.Job {
	t.Helper()

	j := newJob(t, name, h, opts...)
	require.NoError(t, j.Params().AssignID(id))
	return j
}

func newManager(t *testing.T, fns ...func(cfg *jobs.Config)) *jobs.Manager {
	t.Helper()

	cfg := jobs.NewConfig()
	for _, fn := range fns {
		fn(cfg)
	}

	m, err := jobs.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return m
}

func waitIdle(t *testing.T, m *jobs.Manager) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, m.Wait(ctx))
}

func waitStarted(t *testing.T, ch <-chan struct{}) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}
}
