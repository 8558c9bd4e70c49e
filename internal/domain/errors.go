package domain

import "errors"

var (
	// ErrNotActive is returned for operations against a call that has no live
	// session: never started, already terminated, or a redelivered terminal event.
	ErrNotActive = errors.New("call is not active")

	// ErrNotFound is returned when a session or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyActive is returned by strict stores when a session already exists.
	ErrAlreadyActive = errors.New("call already active")
)

// ErrCalendarNotConnected is returned by calendar collaborators that have no
// authorized account.
var ErrCalendarNotConnected = errors.New("calendar not connected")
