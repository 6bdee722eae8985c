package event

import (
	"errors"

	"github.com/nrwiersma/worker/jobs/params"
)

// Record is a flat, serialisable snapshot of an event.
type Record struct {
	JobID   int
	Name    string
	Group   int
	Tags    []string
	Code    Code
	Extra   ExtraCode
	Status  Status
	Message string
	Error   string
	Payload interface{}
}

// Record returns the event snapshot.
func (e *Event) Record() Record {
	r := Record{
		JobID:   e.JobID(),
		Name:    e.name,
		Code:    e.code,
		Extra:   e.extra,
		Status:  e.status,
		Message: e.message,
		Payload: e.payload,
	}
	if e.params != nil {
		r.Group = e.params.Group()
		r.Tags = e.params.Tags()
	}
	if e.err != nil {
		r.Error = e.err.Error()
	}
	return r
}

// FromRecord rebuilds an event from a snapshot. The event params
// only carry the id, group and tags of the original job.
func FromRecord(r Record) *Event {
	e := newEvent(r.Code, r.Status,
		WithExtra(r.Extra),
		WithMessage(r.Message),
		WithPayload(r.Payload),
	)
	if r.Error != "" {
		e.err = errors.New(r.Error)
	}

	p := params.New(params.WithGroup(r.Group), params.WithTags(r.Tags...))
	if r.JobID >= 0 {
		_ = p.AssignID(r.JobID)
	}

	return e.WithSource(r.Name, p)
}
