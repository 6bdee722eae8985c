package jobs

import (
	"errors"

	"github.com/nrwiersma/worker/jobs/event"
)

// Job errors.
var (
	ErrParamsNotDefined = errors.New("jobs: job params are not defined")
	ErrAlreadySubmitted = errors.New("jobs: job already submitted")
	ErrInvalidResult    = errors.New("jobs: invalid job result")
	ErrNotRegistered    = errors.New("jobs: job is not registered with a manager")
	ErrManagerClosed    = errors.New("jobs: manager is closed")
	ErrSchedulerStopped = errors.New("jobs: scheduler is stopped")
	ErrRejected         = errors.New("jobs: task rejected")
	ErrInvalidEvent     = errors.New("jobs: invalid job event")
	ErrListenerMutation = errors.New("jobs: listeners cannot be changed during delivery")
	ErrForkDeadlock     = errors.New("jobs: fork would deadlock")
	ErrForkRejected     = errors.New("jobs: forked job could not be started")
	ErrNotForked        = errors.New("jobs: job was not forked")
)

const (
	msgParamsNotDefined = "job params are not defined"
	msgInvalidResult    = "invalid job result"
	msgInvalidEvent     = "invalid job event"
	msgForkRejected     = "forked job could not be started"
)

// ExecutionError ends a job with a specific event.
//
// The event must be a valid terminal event, otherwise the
// job fails with a generic error.
type ExecutionError struct {
	Event *event.Event
	Err   error
}

// NewExecutionError returns an execution error carrying the given event.
func NewExecutionError(ev *event.Event, err error) *ExecutionError {
	return &ExecutionError{Event: ev, Err: err}
}

// Error returns the error message.
func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return "jobs: execution error: " + e.Err.Error()
	}
	if e.Event != nil && e.Event.Message() != "" {
		return "jobs: execution error: " + e.Event.Message()
	}
	return "jobs: execution error"
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
