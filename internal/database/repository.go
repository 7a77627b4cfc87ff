package database

import (
	"context"
	"time"
)

// SessionReader provides read-only access to attendance sessions
type SessionReader interface {
	// GetSession retrieves a session by ID, returns nil if not found
	GetSession(ctx context.Context, id int64) (*Session, error)
	// ListSessions returns the most recent sessions first, at most limit rows
	ListSessions(ctx context.Context, limit int) ([]Session, error)
}

// SessionWriter provides write access to attendance sessions
type SessionWriter interface {
	SessionReader

	// CreateSession inserts a session and sets its ID and CreatedAt
	CreateSession(ctx context.Context, s *Session) error

	// ActivateSession moves a SCHEDULED session to ACTIVE and sets its start time.
	// Returns ErrNotFound if no scheduled session has the given ID.
	ActivateSession(ctx context.Context, id int64, startedAt time.Time) error

	// CompleteSession marks a session COMPLETED and sets its end time.
	// Returns ErrNotFound if no open session has the given ID.
	CompleteSession(ctx context.Context, id int64, endedAt time.Time) error
}

// RecordReader provides read-only access to attendance records
type RecordReader interface {
	// GetRecord retrieves the record for a (session, student) pair, returns nil if not found
	GetRecord(ctx context.Context, sessionID int64, studentID string) (*Record, error)
	// ListRecords returns all records of a session ordered by detection time
	ListRecords(ctx context.Context, sessionID int64) ([]Record, error)
}

// RecordWriter provides write access to attendance records
type RecordWriter interface {
	RecordReader

	// InsertRecord stores a new automatic record. The (session, student) pair is
	// unique at the storage level; a conflicting insert returns ErrDuplicateRecord
	// and leaves the existing row untouched.
	InsertRecord(ctx context.Context, r *Record) error

	// UpsertOverride writes a manual override, creating the record if needed or
	// replacing the status of an existing one.
	UpsertOverride(ctx context.Context, r *Record) error
}

// IdentityStore mirrors the known face database into persistent storage
type IdentityStore interface {
	// ListIdentities returns all mirrored identities ordered by creation
	ListIdentities(ctx context.Context) ([]StoredIdentity, error)
	// ReplaceIdentities atomically replaces the whole mirror
	ReplaceIdentities(ctx context.Context, identities []StoredIdentity) error
	// CountIdentities returns the number of mirrored identities
	CountIdentities(ctx context.Context) (int, error)
}

// Backend bundles the repositories the attendance core needs
type Backend interface {
	SessionWriter
	RecordWriter
	Close() error
}
