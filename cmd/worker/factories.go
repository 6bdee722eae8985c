package main

import (
	"context"
	"os"
	"time"

	"github.com/hamba/cmd"
	"github.com/nrwiersma/worker"
	"github.com/nrwiersma/worker/jobs"
	"github.com/nrwiersma/worker/jobs/cache"
	"github.com/nrwiersma/worker/jobs/event"
	"github.com/nrwiersma/worker/jobs/lifecycle"
	"github.com/nrwiersma/worker/jobs/schedule"
	xlog "github.com/nrwiersma/worker/pkg/log"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Application =============================

func newApplication(c *cmd.Context, mgr *jobs.Manager) (*worker.Application, error) {
	return worker.NewApplication(worker.Config{
		Registry:       mgr,
		ReportInterval: c.Duration(flagReportInterval),
		Logger:         c.Logger(),
		Statter:        c.Statter(),
	})
}

// Manager =================================

func newManager(c *cmd.Context) (*jobs.Manager, error) {
	cfg := jobs.NewConfig()
	cfg.Concurrency = c.Int(flagConcurrency)
	cfg.AllocatedGroups = c.IntSlice(flagAllocatedGroups)
	cfg.Logger = c.Logger()
	cfg.Statter = c.Statter()

	return jobs.NewManager(cfg)
}

// Results =================================

func newCache(c *cmd.Context) (cache.Cache, error) {
	desc := cache.Descriptor{
		MaxEntries: 1000,
		TTL:        c.Duration(flagResultTTL),
	}

	addr := c.String(flagRedisAddr)
	if addr == "" {
		return cache.NewMemory(desc), nil
	}

	redis.SetLogger(xlog.NewPrinter(c.Logger(), xlog.Error, "redis: "))
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "cache: could not connect to redis")
	}

	return cache.NewRedis(client, cache.DefaultPrefix, desc), nil
}

func newBinder(c *cmd.Context, mgr *jobs.Manager, results cache.Cache) (*lifecycle.Binder, error) {
	var b *lifecycle.Binder
	data, err := os.ReadFile(c.String(flagStateFile))
	switch {
	case err == nil:
		b, err = lifecycle.Restore(context.Background(), mgr, results, c.Logger(), data)
		if err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		b = lifecycle.New(mgr, results, c.Logger())
	default:
		return nil, errors.Wrap(err, "lifecycle: could not read state")
	}

	logger := c.Logger()
	b.Attach(context.Background(), jobs.NewRouter().
		Handle(jobs.Filter{Codes: []event.Code{event.CodeOK}}, func(_ context.Context, ev *event.Event) {
			logger.Info("Sweep result", "job", ev.JobID(), "name", ev.Name(), "result", ev.Payload())
		}).
		Handle(jobs.Filter{Extras: []event.ExtraCode{event.ExtraMessageChanged}}, func(_ context.Context, ev *event.Event) {
			logger.Debug("Sweep message", "job", ev.JobID(), "message", ev.Payload())
		}),
	)

	return b, nil
}

func saveBinder(c *cmd.Context, b *lifecycle.Binder) error {
	b.Detach()

	data, err := b.Save()
	if err != nil {
		return err
	}

	if err = os.WriteFile(c.String(flagStateFile), data, 0o600); err != nil {
		return errors.Wrap(err, "lifecycle: could not write state")
	}
	return nil
}

// Schedule ================================

func newSchedule(c *cmd.Context, sub schedule.Submitter) (*schedule.Scheduler, error) {
	s := schedule.New(sub, c.Logger())

	if err := s.Add("sweep", c.String(flagSchedule), newSweepJob); err != nil {
		return nil, err
	}

	return s, nil
}
