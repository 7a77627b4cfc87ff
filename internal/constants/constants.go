// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Upload limits
const (
	// MaxFrameSize is the maximum size of a single submitted frame (16MB)
	MaxFrameSize = 16 << 20

	// MaxEnrollUploadSize is the maximum size of an enrollment upload (32MB)
	MaxEnrollUploadSize = 32 << 20
)

// Enrollment constants
const (
	// EnrollWorkers is the number of parallel feature extractions during bulk enrollment
	EnrollWorkers = 4

	// EnrollSaveInterval is the number of enrolled samples between face database saves
	EnrollSaveInterval = 50
)

// Tracking constants
const (
	// SweepInterval is how often idle tracking caches are looked for
	SweepInterval = time.Minute
)

// Listing constants
const (
	// MaxSessionPageSize caps the limit query parameter
	MaxSessionPageSize = 500
)
