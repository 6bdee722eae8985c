// Package worker runs a job manager as an application.
package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/hamba/pkg/log"
	"github.com/hamba/pkg/stats"
	"github.com/nrwiersma/worker/jobs"
	"github.com/nrwiersma/worker/jobs/event"
	"github.com/nrwiersma/worker/jobs/rpc"
	"github.com/nrwiersma/worker/jobs/server"
	"github.com/pkg/errors"
)

const resultsTag = "app.results"

// Registry represents a job registry.
type Registry interface {
	server.Registry

	Subscribe(ctx context.Context, l jobs.Listener, opts ...jobs.SubscribeOption) (*jobs.Subscription, error)
}

// Config configures an application.
type Config struct {
	Registry Registry

	// ReportInterval is the interval between job reports.
	// Reporting is disabled when it is zero.
	ReportInterval time.Duration

	// Out is where the job reports are written. It defaults to stdout.
	Out io.Writer

	Logger  log.Logger
	Statter stats.Statter
}

// Application represents the application.
type Application struct {
	reg      Registry
	srv      *server.Server
	routines *RoutineManager
	sub      *jobs.Subscription

	interval time.Duration
	out      io.Writer

	shutdownMu sync.Mutex
	shutdown   bool

	logger  log.Logger
	statter stats.Statter
}

// NewApplication creates an instance of Application.
func NewApplication(cfg Config) (*Application, error) {
	if cfg.Registry == nil {
		return nil, errors.New("worker: registry is required")
	}

	app := &Application{
		reg:      cfg.Registry,
		srv:      server.New(cfg.Registry),
		routines: &RoutineManager{},
		interval: cfg.ReportInterval,
		out:      cfg.Out,
		logger:   cfg.Logger,
		statter:  cfg.Statter,
	}
	if app.out == nil {
		app.out = os.Stdout
	}
	if app.logger == nil {
		app.logger = log.Null
	}
	if app.statter == nil {
		app.statter = stats.Null
	}

	sub, err := app.reg.Subscribe(context.Background(), jobs.ListenerFunc(app.onResult),
		jobs.WithTag(resultsTag),
		jobs.WithFilter(jobs.Terminal()),
	)
	if err != nil {
		return nil, err
	}
	app.sub = sub

	if app.interval > 0 {
		app.routines.Register(app.reportJobs)
	}
	app.routines.Start()

	return app, nil
}

func (a *Application) onResult(_ context.Context, ev *event.Event) {
	a.statter.Inc("app.results", 1, 1.0, "code", ev.Code().String())

	if ev.Code() == event.CodeFailed {
		a.logger.Error("Job failed", "job", ev.JobID(), "name", ev.Name(), "error", ev.Message())
		return
	}
	a.logger.Info("Job finished", "job", ev.JobID(), "name", ev.Name(), "code", ev.Code().String())
}

func (a *Application) reportJobs(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := a.Report(""); err != nil {
				a.logger.Error("Error reporting jobs", "error", err)
			}
		}
	}
}

// Report writes a table of the registered jobs matching the filter.
func (a *Application) Report(filter string) error {
	req := rpc.ListRequest{Filter: filter}
	var resp rpc.ListResponse
	if err := a.Call("Jobs.List", &req, &resp); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 10, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "")
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", "ID", "Name", "Group", "Priority", "Status", "Tags")
	for _, job := range resp.Jobs {
		status := job.Status
		if job.Paused {
			status += " (paused)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\n", job.ID, job.Name, job.Group, job.Priority, status, strings.Join(job.Tags, ","))
	}
	fmt.Fprintln(tw, "")
	return tw.Flush()
}

// Call makes an in memory call to the control server.
func (a *Application) Call(method string, req, resp interface{}) error {
	return a.srv.Call(method, req, resp)
}

// Close closes the application.
func (a *Application) Close() error {
	a.shutdownMu.Lock()
	defer a.shutdownMu.Unlock()

	if a.shutdown {
		return nil
	}
	a.shutdown = true

	a.routines.Stop()
	a.sub.Close()
	return nil
}
