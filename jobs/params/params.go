// Package params implements the job configuration value.
package params

import (
	"errors"
	"sort"
	"sync/atomic"
)

// Reserved group ids.
const (
	// GroupDefault is the default group. Jobs in it run one at a time.
	GroupDefault = 0

	// GroupUnique runs jobs in parallel, capped by the pool size.
	GroupUnique = -1

	// GroupDedicated runs every job on its own goroutine.
	GroupDedicated = -2
)

// IDUnspecified is the id of a job that has not been submitted.
const IDUnspecified = -1

// ErrIDAssigned is returned when assigning an id to params that already have one.
var ErrIDAssigned = errors.New("params: job id already assigned")

// Option configures params.
type Option func(*Params)

// WithGroup sets the job group.
func WithGroup(group int) Option {
	return func(p *Params) {
		p.group = group
	}
}

// WithPriority sets the job priority. Higher priorities run first.
func WithPriority(priority int) Option {
	return func(p *Params) {
		p.priority = priority
	}
}

// WithTags adds tags to the job.
func WithTags(tags ...string) Option {
	return func(p *Params) {
		for _, tag := range tags {
			p.tags[tag] = struct{}{}
		}
	}
}

// WithExtra sets an extra value on the job.
func WithExtra(key string, val interface{}) Option {
	return func(p *Params) {
		p.extras[key] = val
	}
}

// WithFlag sets the initial value of a flag.
func WithFlag(name string, val bool) Option {
	return func(p *Params) {
		p.flags.Set(name, val)
	}
}

// WithFlags shares the given flags with the params.
func WithFlags(f *Flags) Option {
	return func(p *Params) {
		if f != nil {
			p.flags = f
		}
	}
}

// Params holds the configuration of a job.
//
// Params are immutable once built, with the exception of the
// job id, which can be assigned once, and the flags.
type Params struct {
	id       atomic.Int64
	group    int
	priority int
	tags     map[string]struct{}
	extras   map[string]interface{}
	flags    *Flags
}

// New returns params with the given options applied.
func New(opts ...Option) *Params {
	p := &Params{
		group:  GroupDefault,
		tags:   map[string]struct{}{},
		extras: map[string]interface{}{},
		flags:  NewFlags(),
	}
	p.id.Store(IDUnspecified)

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// With returns a copy of the params with the options applied.
// The copy shares the flags of the original and has no id.
func (p *Params) With(opts ...Option) *Params {
	cp := &Params{
		group:    p.group,
		priority: p.priority,
		tags:     make(map[string]struct{}, len(p.tags)),
		extras:   make(map[string]interface{}, len(p.extras)),
		flags:    p.flags,
	}
	cp.id.Store(IDUnspecified)
	for tag := range p.tags {
		cp.tags[tag] = struct{}{}
	}
	for k, v := range p.extras {
		cp.extras[k] = v
	}

	for _, opt := range opts {
		opt(cp)
	}

	return cp
}

// ID returns the job id or IDUnspecified.
func (p *Params) ID() int {
	return int(p.id.Load())
}

// AssignID sets the job id. An id can only be assigned once.
func (p *Params) AssignID(id int) error {
	if id < 0 {
		return errors.New("params: job id must be positive")
	}

	if !p.id.CompareAndSwap(IDUnspecified, int64(id)) {
		return ErrIDAssigned
	}
	return nil
}

// Group returns the job group.
func (p *Params) Group() int {
	return p.group
}

// Priority returns the job priority.
func (p *Params) Priority() int {
	return p.priority
}

// Tags returns the sorted job tags.
func (p *Params) Tags() []string {
	tags := make([]string, 0, len(p.tags))
	for tag := range p.tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	return tags
}

// HasTag determines if the job has the given tag.
func (p *Params) HasTag(tag string) bool {
	_, ok := p.tags[tag]
	return ok
}

// HasTags determines if the job has all the given tags.
func (p *Params) HasTags(tags ...string) bool {
	for _, tag := range tags {
		if !p.HasTag(tag) {
			return false
		}
	}
	return true
}

// HasAnyTag determines if the job has at least one of the given tags.
func (p *Params) HasAnyTag(tags ...string) bool {
	for _, tag := range tags {
		if p.HasTag(tag) {
			return true
		}
	}
	return false
}

// Extra returns the extra value with the given key.
func (p *Params) Extra(key string) (interface{}, bool) {
	v, ok := p.extras[key]
	return v, ok
}

// Extras returns a copy of the extras.
func (p *Params) Extras() map[string]interface{} {
	extras := make(map[string]interface{}, len(p.extras))
	for k, v := range p.extras {
		extras[k] = v
	}
	return extras
}

// Flags returns the job flags.
func (p *Params) Flags() *Flags {
	return p.flags
}
