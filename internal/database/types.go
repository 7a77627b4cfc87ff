package database

import (
	"time"
)

// SessionStatus is the lifecycle state of an attendance session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "SCHEDULED"
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
)

// AttendanceStatus is the status stored on an attendance record.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "PRESENT"
	StatusLate    AttendanceStatus = "LATE"
	StatusAbsent  AttendanceStatus = "ABSENT"
)

// Valid reports whether s is one of the known attendance statuses.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent:
		return true
	}
	return false
}

// Session represents a class session that attendance is taken for
type Session struct {
	ID                   int64
	ClassID              string
	SessionDate          time.Time
	StartTime            time.Time
	EndTime              *time.Time // nil until the session is completed
	Status               SessionStatus
	PresentWindowMinutes int
	LateWindowMinutes    int
	CreatedAt            time.Time
}

// Record is the single attendance fact stored per (session, student) pair
type Record struct {
	ID              int64
	SessionID       int64
	StudentID       string
	Status          AttendanceStatus
	DetectedAt      time.Time
	ConfidenceScore float64
	LivenessScore   float64
	ManualOverride  bool
	OverrideBy      string // empty unless ManualOverride
	OverrideReason  string
	UpdatedAt       time.Time
}

// StoredIdentity is a known face as mirrored into the database
type StoredIdentity struct {
	StudentID string
	Name      string
	Embedding []float32
	Dim       int
	Metadata  map[string]string
	CreatedAt time.Time
}
