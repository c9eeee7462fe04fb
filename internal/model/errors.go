package model

import "errors"

var (
	// ErrInvalidEvent reports a missing or empty required field.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrInvalidTimeRange reports EndTime <= StartTime.
	ErrInvalidTimeRange = errors.New("invalid time range")
	// ErrInvalidRecurrence reports an unrecognized recurrence period.
	ErrInvalidRecurrence = errors.New("invalid recurrence")
	// ErrNotFound reports an operation on a nonexistent event or forum.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument reports an unknown RSVP status, filter or window.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Code returns a machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidEvent):
		return "INVALID_EVENT"
	case errors.Is(err, ErrInvalidTimeRange):
		return "INVALID_TIME_RANGE"
	case errors.Is(err, ErrInvalidRecurrence):
		return "INVALID_RECURRENCE"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	default:
		return "UNKNOWN"
	}
}
