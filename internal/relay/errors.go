package relay

import (
	"errors"
	"fmt"
)

// Kind classifies a relay failure so callers can branch without looking at
// message text.
type Kind string

const (
	// KindTransient marks failures that are retried internally. It only
	// escapes inside the cause chain of a KindRetriesExhausted error.
	KindTransient Kind = "transient"
	// KindFatal marks failures that are never retried: an unexpected
	// upstream status or an origin that does not support resume.
	KindFatal Kind = "fatal"
	// KindRetriesExhausted marks a stream that hit the retry bound.
	KindRetriesExhausted Kind = "retries_exhausted"
)

// Error carries the failure classification plus the context a caller needs:
// the upstream status (if any), the resume offset and the attempt counter at
// the time of failure.
type Error struct {
	Kind    Kind
	Status  int
	Offset  int64
	Attempt int
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("relay %s at offset %d (http %d): %v", e.Kind, e.Offset, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("relay %s at offset %d: %v", e.Kind, e.Offset, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("relay %s at offset %d: http %d", e.Kind, e.Offset, e.Status)
	default:
		return fmt.Sprintf("relay %s at offset %d", e.Kind, e.Offset)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from err, or "" when err is not a
// relay error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
