// Package rpc contains the control RPC messages.
package rpc

// ListRequest is used to list the registered jobs.
type ListRequest struct {
	// Filter is a go-bexpr filter expression to filter the
	// jobs by before returning.
	Filter string
}

// ListResponse are the jobs returned from a list request.
type ListResponse struct {
	Jobs []Job
}

// CancelRequest is used to cancel jobs.
type CancelRequest struct {
	// ID is the job to cancel. It is ignored when a filter is given.
	ID int

	// Filter is a go-bexpr filter expression selecting the
	// jobs to cancel.
	Filter string
}

// CancelResponse is the result of a cancel request.
type CancelResponse struct {
	Cancelled int
}

// Job is a registered job.
type Job struct {
	ID       int
	Name     string
	Group    int
	Priority int
	Status   string
	Tags     []string
	Flags    map[string]bool
	Paused   bool
}
