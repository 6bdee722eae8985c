package jobs_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nrwiersma/worker/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_LimitsConcurrency(t *testing.T) {
	p := jobs.NewPool(2, 0)

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := p.Execute(func() {
			defer wg.Done()

			n := active.Add(1)
			for {
				cur := peak.Load()
				if n <= cur || peak.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_SetMaxDrainsBacklog(t *testing.T) {
	p := jobs.NewPool(1, 0)
	release := make(chan struct{})
	defer close(release)

	started := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		err := p.Execute(func() {
			started <- struct{}{}
			<-release
		})
		require.NoError(t, err)
	}
	<-started

	assert.Never(t, func() bool { return len(started) > 0 }, 20*time.Millisecond, 5*time.Millisecond)

	p.SetMax(2)
	p.SetMax(1)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("backlog was not drained")
	}
	assert.Equal(t, 2, p.Max())
}

func TestPool_RejectsWhenBacklogIsFull(t *testing.T) {
	p := jobs.NewPool(1, 1)
	release := make(chan struct{})
	defer close(release)

	require.NoError(t, p.Execute(func() { <-release }))
	require.NoError(t, p.Execute(func() {}))

	err := p.Execute(func() {})

	assert.Equal(t, jobs.ErrRejected, err)
}

func TestPool_Shutdown(t *testing.T) {
	p := jobs.NewPool(1, 0)
	release := make(chan struct{})
	var ran atomic.Bool

	require.NoError(t, p.Execute(func() { <-release }))
	require.NoError(t, p.Execute(func() { ran.Store(true) }))

	p.Shutdown()
	p.Shutdown()

	assert.Equal(t, jobs.ErrRejected, p.Execute(func() {}))
	select {
	case <-p.Done():
		t.Fatal("pool done with a running task")
	default:
	}

	close(release)

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pool did not finish")
	}
	assert.False(t, ran.Load())
}

func TestPool_ShutdownIdle(t *testing.T) {
	p := jobs.NewPool(1, 0)

	p.Shutdown()

	select {
	case <-p.Done():
	default:
		t.Fatal("idle pool not done")
	}
}
