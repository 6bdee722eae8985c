package jobs

import (
	"fmt"
	"reflect"

	"github.com/hashicorp/go-bexpr"
	"github.com/nrwiersma/worker/jobs/event"
	"github.com/nrwiersma/worker/jobs/params"
	"github.com/pkg/errors"
)

// Info is a point-in-time view of a job.
type Info struct {
	ID        int
	Name      string
	Group     int
	Priority  int
	Status    string
	Tags      []string
	Flags     map[string]bool
	Extras    map[string]string
	Paused    bool
	Cancelled bool
}

// Info returns a view of the job.
func (j *Job) Info() Info {
	info := Info{
		ID:        j.ID(),
		Name:      j.name,
		Status:    j.Status().String(),
		Flags:     map[string]bool{},
		Extras:    map[string]string{},
		Paused:    j.IsPaused(),
		Cancelled: j.IsCancelled(),
	}

	if p := j.Params(); p != nil {
		info.Group = p.Group()
		info.Priority = p.Priority()
		info.Tags = p.Tags()
		info.Flags = p.Flags().Snapshot()
		for k, v := range p.Extras() {
			info.Extras[k] = fmt.Sprint(v)
		}
	}

	return info
}

// Selector matches jobs. All given criteria must hold, except
// flag criteria in any-flag mode where one is enough.
type Selector struct {
	ids      map[int]struct{}
	statuses []event.Status
	tags     []string
	anyTags  []string
	flags    map[string]*bool
	anyFlag  bool
	extras   map[string]interface{}
	eval     *bexpr.Evaluator
	err      error
}

// Select returns a selector matching every job.
func Select() *Selector {
	return &Selector{
		ids:    map[int]struct{}{},
		flags:  map[string]*bool{},
		extras: map[string]interface{}{},
	}
}

// IDs matches jobs with one of the given ids.
func (s *Selector) IDs(ids ...int) *Selector {
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Statuses matches jobs with one of the given statuses.
func (s *Selector) Statuses(statuses ...event.Status) *Selector {
	s.statuses = append(s.statuses, statuses...)
	return s
}

// Tags matches jobs that have all the given tags.
func (s *Selector) Tags(tags ...string) *Selector {
	s.tags = append(s.tags, tags...)
	return s
}

// AnyTag matches jobs that have at least one of the given tags.
func (s *Selector) AnyTag(tags ...string) *Selector {
	s.anyTags = append(s.anyTags, tags...)
	return s
}

// Flag matches jobs that have the flag set, whatever its value.
func (s *Selector) Flag(name string) *Selector {
	s.flags[name] = nil
	return s
}

// FlagValue matches jobs that have the flag set to the given value.
func (s *Selector) FlagValue(name string, val bool) *Selector {
	s.flags[name] = &val
	return s
}

// AnyFlag switches the flag criteria to match when at least one
// of them holds. The given names are added as flags that only need
// to be set.
func (s *Selector) AnyFlag(names ...string) *Selector {
	for _, name := range names {
		if _, ok := s.flags[name]; !ok {
			s.flags[name] = nil
		}
	}
	s.anyFlag = true
	return s
}

// Extra matches jobs with an extra deeply equal to the given value.
func (s *Selector) Extra(key string, val interface{}) *Selector {
	s.extras[key] = val
	return s
}

// Expr matches jobs whose Info satisfies the boolean expression.
func (s *Selector) Expr(expr string) *Selector {
	eval, err := bexpr.CreateEvaluator(expr, nil)
	if err != nil {
		s.err = errors.Wrap(err, "jobs: invalid selector expression")
		return s
	}
	s.eval = eval
	return s
}

// Err returns the first error encountered while building the selector.
func (s *Selector) Err() error {
	return s.err
}

// Match determines if the job matches the selector.
func (s *Selector) Match(j *Job) bool {
	if s.err != nil {
		return false
	}

	if len(s.ids) > 0 {
		if _, ok := s.ids[j.ID()]; !ok {
			return false
		}
	}
	if len(s.statuses) > 0 && !contains(s.statuses, j.Status()) {
		return false
	}

	p := j.Params()
	if p == nil {
		return len(s.tags) == 0 && len(s.anyTags) == 0 && len(s.flags) == 0 &&
			len(s.extras) == 0 && s.eval == nil
	}

	if !p.HasTags(s.tags...) {
		return false
	}
	if len(s.anyTags) > 0 && !p.HasAnyTag(s.anyTags...) {
		return false
	}

	if len(s.flags) > 0 && !s.matchFlags(p.Flags()) {
		return false
	}

	for key, want := range s.extras {
		val, ok := p.Extra(key)
		if !ok || !reflect.DeepEqual(val, want) {
			return false
		}
	}

	if s.eval != nil {
		ok, err := s.eval.Evaluate(j.Info())
		if err != nil || !ok {
			return false
		}
	}

	return true
}

func (s *Selector) matchFlags(flags *params.Flags) bool {
	for name, want := range s.flags {
		val, ok := flags.Get(name)
		held := ok && (want == nil || val == *want)
		if s.anyFlag && held {
			return true
		}
		if !s.anyFlag && !held {
			return false
		}
	}
	return !s.anyFlag
}

func (s *Selector) requiredTags() []string {
	return s.tags
}
