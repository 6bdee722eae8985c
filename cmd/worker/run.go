package main

import (
	"context"
	"time"

	"github.com/hamba/cmd"
	"gopkg.in/urfave/cli.v2"
)

func runWorker(c *cli.Context) error {
	ctx, err := cmd.NewContext(c)
	if err != nil {
		return err
	}

	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer mgr.Close()

	app, err := newApplication(ctx, mgr)
	if err != nil {
		return err
	}
	defer app.Close()

	results, err := newCache(ctx)
	if err != nil {
		return err
	}

	binder, err := newBinder(ctx, mgr, results)
	if err != nil {
		return err
	}
	defer binder.Close()

	sched, err := newSchedule(ctx, binder)
	if err != nil {
		return err
	}
	sched.Start()

	<-cmd.WaitForSignals()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = sched.Stop(stopCtx); err != nil {
		ctx.Logger().Error("Could not stop schedules", "error", err)
	}
	if err = mgr.Wait(stopCtx); err != nil {
		ctx.Logger().Error("Jobs still running at shutdown", "jobs", mgr.Len())
	}

	return saveBinder(ctx, binder)
}
