package jobs

import (
	"context"

	"github.com/nrwiersma/worker/jobs/event"
)

// Filter matches events. Empty criteria match every event.
type Filter struct {
	// IDs matches events of the given jobs.
	IDs []int

	// Names matches events of jobs with the given names.
	Names []string

	// Statuses matches events with the given statuses.
	Statuses []event.Status

	// Codes matches events with the given codes.
	Codes []event.Code

	// Extras matches events with the given extra codes.
	Extras []event.ExtraCode

	// Tags matches events of jobs that have all the given tags.
	Tags []string
}

// Terminal returns a filter matching terminal events.
func Terminal() Filter {
	return Filter{Codes: []event.Code{event.CodeOK, event.CodeFailed, event.CodeCancelled}}
}

// Match determines if the event matches the filter.
func (f Filter) Match(ev *event.Event) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, ev.JobID()) {
		return false
	}
	if len(f.Names) > 0 && !contains(f.Names, ev.Name()) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, ev.Status()) {
		return false
	}
	if len(f.Codes) > 0 && !contains(f.Codes, ev.Code()) {
		return false
	}
	if len(f.Extras) > 0 && !contains(f.Extras, ev.Extra()) {
		return false
	}
	if len(f.Tags) > 0 && (ev.Params() == nil || !ev.Params().HasTags(f.Tags...)) {
		return false
	}
	return true
}

func contains[T comparable](s []T, v T) bool {
	for _, el := range s {
		if el == v {
			return true
		}
	}
	return false
}

type route struct {
	filter Filter
	fn     ListenerFunc
}

// Router is a listener that dispatches events to the
// callbacks whose filter matches.
//
// Routes are matched in the order they were added and every
// matching route is called.
type Router struct {
	routes []route
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Handle adds a route.
func (r *Router) Handle(f Filter, fn ListenerFunc) *Router {
	r.routes = append(r.routes, route{filter: f, fn: fn})
	return r
}

// OnJobEvent dispatches the event.
func (r *Router) OnJobEvent(ctx context.Context, ev *event.Event) {
	for _, rt := range r.routes {
		if !rt.filter.Match(ev) {
			continue
		}
		rt.fn(ctx, ev)
	}
}
