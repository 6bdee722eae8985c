package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/nrwiersma/worker/jobs"
	"github.com/nrwiersma/worker/jobs/event"
	"github.com/nrwiersma/worker/jobs/params"
	"github.com/pkg/errors"
)

const (
	groupSweep = 1
	checks     = 4
)

type sweep struct{}

func newSweepJob() (*jobs.Job, error) {
	j := jobs.New("sweep", sweep{})
	if err := j.Configure(params.WithGroup(groupSweep), params.WithTags("demo")); err != nil {
		return nil, err
	}
	return j, nil
}

// Run forks a unique check per slot and sums their results.
func (sweep) Run(ctx context.Context, j *jobs.Job) (*event.Event, error) {
	children := make([]*jobs.Job, 0, checks)
	for i := 0; i < checks; i++ {
		child := jobs.New("check", jobs.HandlerFunc(check))
		if err := child.Configure(params.WithTags("demo"), params.WithExtra("slot", i)); err != nil {
			return nil, err
		}

		if err := j.Fork(ctx, child, jobs.InGroup(params.GroupUnique), jobs.ForwardEvents()); err != nil {
			if !errors.Is(err, jobs.ErrForkRejected) {
				return nil, err
			}
			j.SetMessage(ctx, "pool saturated, skipping check")
			continue
		}
		children = append(children, child)
	}

	var total int
	for i, child := range children {
		ev, err := j.Join(ctx, child)
		if err != nil {
			return nil, err
		}
		if ev.Code() == event.CodeOK {
			if n, ok := ev.Payload().(int); ok {
				total += n
			}
		}
		j.SetProgress(ctx, (i+1)*100/len(children))
	}

	return event.OK(total), nil
}

func check(ctx context.Context, j *jobs.Job) (*event.Event, error) {
	select {
	case <-time.After(time.Duration(rand.Intn(500)) * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	slot, _ := j.Params().Extra("slot")
	j.SetMessage(ctx, "checked")
	return event.OK(slot), nil
}
