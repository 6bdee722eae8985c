package jobs

import (
	"sync"
)

// Pool runs tasks on a bounded, growable set of goroutines.
//
// Tasks that arrive while all goroutines are busy wait in a
// backlog. Goroutines exit when the backlog is empty.
type Pool struct {
	mu         sync.Mutex
	max        int
	maxBacklog int
	workers    int
	backlog    []func()
	shutdown   bool
	done       chan struct{}
}

// NewPool returns a pool with the given maximum number of goroutines.
// A zero maxBacklog allows an unbounded backlog.
func NewPool(max, maxBacklog int) *Pool {
	if max < 1 {
		max = 1
	}

	return &Pool{
		max:        max,
		maxBacklog: maxBacklog,
		done:       make(chan struct{}),
	}
}

// Max returns the maximum number of goroutines.
func (p *Pool) Max() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.max
}

// SetMax raises the maximum number of goroutines. The maximum
// never shrinks.
func (p *Pool) SetMax(max int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if max <= p.max {
		return
	}
	p.max = max

	for p.workers < p.max && len(p.backlog) > 0 && !p.shutdown {
		task := p.backlog[0]
		p.backlog = p.backlog[1:]
		p.workers++
		go p.work(task)
	}
}

// Execute runs the task. It returns ErrRejected once the pool
// is shut down or the backlog is full.
func (p *Pool) Execute(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return ErrRejected
	}

	if p.workers < p.max {
		p.workers++
		go p.work(task)
		return nil
	}

	if p.maxBacklog > 0 && len(p.backlog) >= p.maxBacklog {
		return ErrRejected
	}
	p.backlog = append(p.backlog, task)
	return nil
}

func (p *Pool) work(task func()) {
	for task != nil {
		task()

		p.mu.Lock()
		task = nil
		if len(p.backlog) > 0 && !p.shutdown {
			task = p.backlog[0]
			p.backlog = p.backlog[1:]
		}
		if task == nil {
			p.workers--
			if p.shutdown && p.workers == 0 {
				p.closeDone()
			}
		}
		p.mu.Unlock()
	}
}

// Shutdown stops accepting tasks and drops the backlog. Running
// tasks are left to finish.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return
	}
	p.shutdown = true
	p.backlog = nil

	if p.workers == 0 {
		p.closeDone()
	}
}

// Done returns a channel that is closed once the pool is shut
// down and all running tasks have finished.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

func (p *Pool) closeDone() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}
