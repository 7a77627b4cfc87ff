package attendance

import "errors"

var (
	// ErrSessionNotActive is returned for sessions that exist but have not started.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrSessionCompleted is returned when a completed session is used again.
	ErrSessionCompleted = errors.New("session is completed")

	// ErrInvalidWindows wraps window lengths violating 0 < present < late.
	ErrInvalidWindows = errors.New("invalid attendance windows")

	// ErrInvalidStatus is returned for statuses a write path does not accept.
	ErrInvalidStatus = errors.New("invalid attendance status")
)
