// Package event implements the events emitted by jobs.
package event

import (
	"errors"
	"fmt"

	"github.com/nrwiersma/worker/jobs/params"
)

// Event errors.
var (
	ErrMismatchedStatus = errors.New("event: code does not match status")
	ErrUnknownCode      = errors.New("event: unknown code")
)

// FlagChange is the payload of a flag changed event.
type FlagChange struct {
	Name  string
	Value bool
}

// Option configures an event.
type Option func(*Event)

// WithExtra sets the extra code.
func WithExtra(extra ExtraCode) Option {
	return func(e *Event) {
		e.extra = extra
	}
}

// WithPayload sets the payload.
func WithPayload(payload interface{}) Option {
	return func(e *Event) {
		e.payload = payload
	}
}

// WithError sets the captured error.
func WithError(err error) Option {
	return func(e *Event) {
		e.err = err
	}
}

// WithMessage sets the message.
func WithMessage(msg string) Option {
	return func(e *Event) {
		e.message = msg
	}
}

// Event is an immutable notification about a job.
//
// The code of a terminal event always matches its status.
// Update events carry a non-terminal status.
type Event struct {
	code    Code
	extra   ExtraCode
	status  Status
	payload interface{}
	err     error
	message string

	name   string
	params *params.Params
}

// New returns an event, validating the code and status pair.
func New(code Code, status Status, opts ...Option) (*Event, error) {
	e := newEvent(code, status, opts...)
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func newEvent(code Code, status Status, opts ...Option) *Event {
	e := &Event{
		code:   code,
		status: status,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OK returns a successful terminal event.
func OK(payload interface{}) *Event {
	return newEvent(CodeOK, StatusOK, WithPayload(payload))
}

// Failed returns a failed terminal event.
func Failed(msg string, err error) *Event {
	return newEvent(CodeFailed, StatusFailed, WithMessage(msg), WithError(err))
}

// FailedWith returns a failed terminal event carrying a payload.
func FailedWith(payload interface{}) *Event {
	return newEvent(CodeFailed, StatusFailed, WithPayload(payload))
}

// Cancelled returns a cancelled terminal event.
func Cancelled() *Event {
	return newEvent(CodeCancelled, StatusCancelled)
}

// Update returns an update event. An update with a
// terminal status is not valid.
func Update(extra ExtraCode, status Status, payload interface{}) *Event {
	return newEvent(CodeUpdate, status, WithExtra(extra), WithPayload(payload))
}

// WithSource returns a copy of the event bound to the given job.
func (e *Event) WithSource(name string, p *params.Params) *Event {
	cp := *e
	cp.name = name
	cp.params = p
	return &cp
}

// WithStatus returns a copy of an update event with the given status.
func (e *Event) WithStatus(status Status) *Event {
	cp := *e
	cp.status = status
	return &cp
}

// Code returns the event code.
func (e *Event) Code() Code {
	return e.code
}

// Extra returns the extra code.
func (e *Event) Extra() ExtraCode {
	return e.extra
}

// Status returns the job status at emission.
func (e *Event) Status() Status {
	return e.status
}

// Payload returns the event payload.
func (e *Event) Payload() interface{} {
	return e.payload
}

// Err returns the captured error.
func (e *Event) Err() error {
	return e.err
}

// Message returns the event message.
func (e *Event) Message() string {
	return e.message
}

// Name returns the name of the job that emitted the event.
func (e *Event) Name() string {
	return e.name
}

// Params returns the params of the job that emitted the event.
func (e *Event) Params() *params.Params {
	return e.params
}

// JobID returns the id of the job that emitted the event.
func (e *Event) JobID() int {
	if e.params == nil {
		return params.IDUnspecified
	}
	return e.params.ID()
}

// IsTerminal determines if the event finishes a job.
func (e *Event) IsTerminal() bool {
	return e.code != CodeUpdate
}

// Validate checks that the code and status agree.
func (e *Event) Validate() error {
	var want Status
	switch e.code {
	case CodeOK:
		want = StatusOK
	case CodeFailed:
		want = StatusFailed
	case CodeCancelled:
		want = StatusCancelled
	case CodeUpdate:
		if e.status.IsFinished() || e.status > StatusCancelled || e.status < StatusPending {
			return fmt.Errorf("%w: update with status %s", ErrMismatchedStatus, e.status)
		}
		return nil
	default:
		return ErrUnknownCode
	}

	if e.status != want {
		return fmt.Errorf("%w: %s with status %s", ErrMismatchedStatus, e.code, e.status)
	}
	return nil
}

// String returns a readable representation of the event.
func (e *Event) String() string {
	if e.code == CodeUpdate {
		return fmt.Sprintf("%s(%d) %s/%s %s", e.name, e.JobID(), e.code, e.extra, e.status)
	}
	return fmt.Sprintf("%s(%d) %s", e.name, e.JobID(), e.code)
}
