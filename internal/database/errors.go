package database

import "errors"

var (
	// ErrNotFound is returned when an update targets a row that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateRecord is returned by InsertRecord when a record for the same
	// (session, student) pair already exists. Backends map their native
	// unique-violation errors to it.
	ErrDuplicateRecord = errors.New("attendance record already exists")
)
