// Package schedule submits jobs on cron schedules.
package schedule

import (
	"context"
	"sort"
	"sync"

	"github.com/hamba/pkg/log"
	"github.com/nrwiersma/worker/jobs"
	xlog "github.com/nrwiersma/worker/pkg/log"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Submitter submits jobs.
type Submitter interface {
	Submit(job *jobs.Job) (int, error)
}

// Factory creates a configured job for each run of a schedule.
type Factory func() (*jobs.Job, error)

// Scheduler submits jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	sub  Submitter
	log  log.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New returns a scheduler submitting to sub.
func New(sub Submitter, logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Null
	}

	cronLog := xlog.NewCron(logger, "schedule: ")

	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog))),
		sub:     sub,
		log:     logger,
		entries: map[string]cron.EntryID{},
	}
}

// Add adds a named schedule, replacing any schedule with the same name.
func (s *Scheduler) Add(name, spec string, fn Factory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.submit(name, fn) })
	if err != nil {
		return errors.Wrapf(err, "schedule: invalid spec for %q", name)
	}

	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old)
	}
	s.entries[name] = id

	return nil
}

// Remove removes a named schedule.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, name)

	return true
}

// Names returns the sorted schedule names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (s *Scheduler) submit(name string, fn Factory) {
	job, err := fn()
	if err != nil {
		s.log.Error("schedule: could not create job", "schedule", name, "error", err)
		return
	}

	id, err := s.sub.Submit(job)
	if err != nil {
		s.log.Error("schedule: could not submit job", "schedule", name, "error", err)
		return
	}

	s.log.Debug("schedule: job submitted", "schedule", name, "job", id)
}

// Start starts the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler, waiting for running submissions
// to finish or the context to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
