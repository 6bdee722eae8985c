package event

// Status is the lifecycle status of a job.
type Status int8

// Status constants, in lifecycle order.
const (
	StatusPending Status = iota
	StatusEnqueued
	StatusSubmitted
	StatusInProgress
	StatusOK
	StatusFailed
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusPending:    "pending",
	StatusEnqueued:   "enqueued",
	StatusSubmitted:  "submitted",
	StatusInProgress: "in_progress",
	StatusOK:         "ok",
	StatusFailed:     "failed",
	StatusCancelled:  "cancelled",
}

// String returns the status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsFinished determines if the status is terminal.
func (s Status) IsFinished() bool {
	return s == StatusOK || s == StatusFailed || s == StatusCancelled
}

// CanTransition determines if a job can move from s to the given status.
// Statuses only move forward and nothing leaves a terminal status.
func (s Status) CanTransition(to Status) bool {
	if s.IsFinished() || to > StatusCancelled {
		return false
	}
	return to > s
}

// Code is the code of an event.
type Code int8

// Code constants.
const (
	CodeOK Code = iota
	CodeFailed
	CodeCancelled
	CodeUpdate
)

// String returns the code name.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeFailed:
		return "failed"
	case CodeCancelled:
		return "cancelled"
	case CodeUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// ExtraCode qualifies an update event.
type ExtraCode int8

// ExtraCode constants.
const (
	ExtraNone ExtraCode = iota
	ExtraStatusChanged
	ExtraProgressUpdate
	ExtraMessageChanged
	ExtraFlagChanged
)

// String returns the extra code name.
func (c ExtraCode) String() string {
	switch c {
	case ExtraNone:
		return "none"
	case ExtraStatusChanged:
		return "status_changed"
	case ExtraProgressUpdate:
		return "progress"
	case ExtraMessageChanged:
		return "message"
	case ExtraFlagChanged:
		return "flag_changed"
	default:
		return "unknown"
	}
}
