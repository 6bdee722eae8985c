package jobs

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/hamba/pkg/log"
	"github.com/hamba/pkg/stats"
	"github.com/nrwiersma/worker/jobs/event"
	"github.com/nrwiersma/worker/jobs/params"
	"golang.org/x/sync/errgroup"
)

type placement struct {
	job    *Job
	group  int
	exec   *Pool
	pooled bool
}

// Scheduler dispatches jobs to executors according to their group.
//
// Jobs of a regular group run one at a time, in priority order.
// Unique jobs run in parallel as long as the shared pool has room.
// Dedicated jobs always get their own goroutine. Allocated groups
// run on their own serial executor instead of the shared pool.
type Scheduler struct {
	mu        sync.Mutex
	pool      *Pool
	serial    map[int]*Pool
	dedicated *Pool
	queues    map[int]*jobQueue
	running   map[int]int
	pooled    int
	seq       uint64
	stopped   bool

	log     log.Logger
	statter stats.Statter
}

// NewScheduler returns a scheduler.
func NewScheduler(cfg *Config) *Scheduler {
	s := &Scheduler{
		pool:      NewPool(cfg.Concurrency, 0),
		serial:    map[int]*Pool{},
		dedicated: NewPool(math.MaxInt32, 0),
		queues:    map[int]*jobQueue{},
		running:   map[int]int{},
		log:       cfg.logger(),
		statter:   cfg.statter(),
	}

	for _, g := range cfg.AllocatedGroups {
		s.serial[g] = NewPool(1, 0)
	}

	return s
}

// Submit schedules a pending job.
//
// A job whose group is busy, or a unique job while the shared
// pool is full, is queued with status enqueued. Other jobs are
// dispatched with status submitted.
func (s *Scheduler) Submit(job *Job) error {
	p := job.Params()
	if p == nil {
		return ErrParamsNotDefined
	}
	group := p.Group()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}

	if s.mustQueue(group) {
		if !job.transition(event.StatusEnqueued) {
			s.mu.Unlock()
			return ErrAlreadySubmitted
		}

		q := s.queue(group)
		s.seq++
		q.push(&queued{job: job, priority: p.Priority(), seq: s.seq})
		s.mu.Unlock()

		s.log.Debug("scheduler: job enqueued", "job", p.ID(), "group", group)
		s.statter.Inc("jobs.enqueued", 1, 1.0, "group", strconv.Itoa(group))

		job.notifyStatus(context.Background(), event.StatusEnqueued)
		return nil
	}

	pl, ok := s.reserve(job, group)
	s.mu.Unlock()
	if !ok {
		return ErrAlreadySubmitted
	}

	s.dispatch(pl)
	return nil
}

// mustQueue determines if a job of the group has to wait.
// The caller must hold the lock.
func (s *Scheduler) mustQueue(group int) bool {
	if group == params.GroupDedicated {
		return false
	}
	return !s.canDispatch(group) || s.queue(group).Len() > 0
}

// canDispatch determines if a job of the group can occupy a
// goroutine now. The caller must hold the lock.
func (s *Scheduler) canDispatch(group int) bool {
	switch group {
	case params.GroupDedicated:
		return true
	case params.GroupUnique:
		return s.pooled < s.pool.Max()
	default:
		return s.running[group] == 0
	}
}

// reserve marks the job as occupying a goroutine and picks its
// executor. The caller must hold the lock.
func (s *Scheduler) reserve(job *Job, group int) (placement, bool) {
	if !job.transition(event.StatusSubmitted) {
		return placement{}, false
	}

	pl := placement{job: job, group: group}
	switch {
	case group == params.GroupDedicated:
		pl.exec = s.dedicated
	case s.serial[group] != nil:
		pl.exec = s.serial[group]
	default:
		pl.exec = s.pool
		pl.pooled = true
	}

	s.running[group]++
	if pl.pooled {
		s.pooled++
		if s.pooled > s.pool.Max() {
			s.pool.SetMax(s.pooled)
			s.log.Debug("scheduler: pool grown", "size", s.pooled)
			s.statter.Gauge("pool.size", float64(s.pooled), 1.0)
		}
	}

	return pl, true
}

func (s *Scheduler) dispatch(pl placement) {
	ctx := context.Background()

	s.statter.Inc("jobs.submitted", 1, 1.0, "group", strconv.Itoa(pl.group))
	pl.job.notifyStatus(ctx, event.StatusSubmitted)

	err := pl.exec.Execute(func() { s.run(pl) })
	if err == nil {
		return
	}

	s.log.Error("scheduler: job rejected", "job", pl.job.ID(), "group", pl.group, "error", err)
	s.statter.Inc("jobs.rejected", 1, 1.0, "group", strconv.Itoa(pl.group))

	pl.job.finish(ctx, event.Failed(err.Error(), err))
	s.complete(pl)
}

func (s *Scheduler) run(pl placement) {
	defer s.complete(pl)

	start := time.Now()
	pl.job.Execute(context.Background())

	s.statter.Timing("jobs.duration", time.Since(start), 1.0, "group", strconv.Itoa(pl.group))
	s.statter.Inc("jobs.completed", 1, 1.0, "group", strconv.Itoa(pl.group))
}

// complete frees the goroutine held by the job and dispatches
// the jobs that can now run, the job's own group first.
func (s *Scheduler) complete(pl placement) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}

	s.running[pl.group]--
	if s.running[pl.group] <= 0 {
		delete(s.running, pl.group)
	}
	if pl.pooled {
		s.pooled--
	}

	var next []placement
	if item := s.next(pl.group); item != nil {
		if n, ok := s.reserve(item.job, pl.group); ok {
			next = append(next, n)
		}
	}
	for {
		group, item := s.oldest()
		if item == nil {
			break
		}
		if n, ok := s.reserve(item.job, group); ok {
			next = append(next, n)
		}
	}
	s.mu.Unlock()

	for _, n := range next {
		s.dispatch(n)
	}
}

// next pops the head of the group's queue if it can run.
// The caller must hold the lock.
func (s *Scheduler) next(group int) *queued {
	q, ok := s.queues[group]
	if !ok || q.Len() == 0 || !s.canDispatch(group) {
		return nil
	}
	return q.pop()
}

// oldest pops the earliest queued head that can run.
// The caller must hold the lock.
func (s *Scheduler) oldest() (int, *queued) {
	var (
		group int
		found *queued
	)
	for g, q := range s.queues {
		head := q.peek()
		if head == nil || !s.canDispatch(g) {
			continue
		}
		if found == nil || head.seq < found.seq {
			group, found = g, head
		}
	}
	if found == nil {
		return 0, nil
	}
	return group, s.queues[group].pop()
}

func (s *Scheduler) queue(group int) *jobQueue {
	q, ok := s.queues[group]
	if !ok {
		q = &jobQueue{}
		s.queues[group] = q
	}
	return q
}

// Remove removes a queued job. It returns false if the job
// is not queued.
func (s *Scheduler) Remove(job *Job) bool {
	p := job.Params()
	if p == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[p.Group()]
	if !ok {
		return false
	}
	return q.remove(job)
}

// Queued returns the number of queued jobs in the group.
func (s *Scheduler) Queued(group int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[group]
	if !ok {
		return 0
	}
	return q.Len()
}

// Running returns the number of jobs of the group occupying a goroutine.
func (s *Scheduler) Running(group int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running[group]
}

// PoolSize returns the current maximum size of the shared pool.
func (s *Scheduler) PoolSize() int {
	return s.pool.Max()
}

// Stop stops the scheduler. Queued jobs are cancelled and running
// jobs are left to finish. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true

	var dropped []*Job
	for g, q := range s.queues {
		for item := q.pop(); item != nil; item = q.pop() {
			dropped = append(dropped, item.job)
		}
		delete(s.queues, g)
	}
	s.mu.Unlock()

	s.log.Info("scheduler: stopping", "dropped", len(dropped))

	ctx := context.Background()
	for _, job := range dropped {
		job.Cancel()
		job.finish(ctx, event.Cancelled())
	}

	for _, p := range s.executors() {
		p.Shutdown()
	}
}

// IsStopped determines if the scheduler has been stopped.
func (s *Scheduler) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopped
}

// Wait waits for all executors to finish after Stop.
func (s *Scheduler) Wait(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range s.executors() {
		p := p
		g.Go(func() error {
			select {
			case <-p.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

func (s *Scheduler) executors() []*Pool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pools := []*Pool{s.pool, s.dedicated}
	for _, p := range s.serial {
		pools = append(pools, p)
	}
	return pools
}
