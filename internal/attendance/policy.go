// Package attendance decides which status a detection earns and writes at
// most one attendance fact per student and session.
package attendance

import (
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

// Window is where a moment falls relative to a session's attendance windows.
type Window int

const (
	WindowPresent Window = iota
	WindowLate
	WindowOutside
)

func (w Window) String() string {
	switch w {
	case WindowPresent:
		return "present"
	case WindowLate:
		return "late"
	default:
		return "outside"
	}
}

// Status returns the record status for the window. Outside has none.
func (w Window) Status() (database.AttendanceStatus, bool) {
	switch w {
	case WindowPresent:
		return database.StatusPresent, true
	case WindowLate:
		return database.StatusLate, true
	}
	return "", false
}

// Classify places now into the session's windows. The present window runs
// from the start time; the late window follows it. Both bounds are inclusive.
func Classify(s *database.Session, now time.Time) Window {
	elapsed := now.Sub(s.StartTime)
	present := time.Duration(s.PresentWindowMinutes) * time.Minute
	late := time.Duration(s.LateWindowMinutes) * time.Minute

	switch {
	case elapsed <= present:
		return WindowPresent
	case elapsed <= present+late:
		return WindowLate
	default:
		return WindowOutside
	}
}
