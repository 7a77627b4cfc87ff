package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

// Outcome of an automatic record attempt.
type Outcome string

const (
	OutcomeCreated         Outcome = "created"
	OutcomeAlreadyRecorded Outcome = "already_recorded"
)

// RecordResult reports what Record did and the status now on file.
type RecordResult struct {
	Outcome Outcome
	Status  database.AttendanceStatus
}

// Recorder writes attendance records. Storage is the authority on
// uniqueness; the recorder keeps a per-session memo of students already on
// file so repeated detections do not hit storage on every frame.
type Recorder struct {
	repo database.RecordWriter
	now  func() time.Time

	mu        sync.Mutex
	memo      map[int64]map[string]database.AttendanceStatus
	forgotten map[int64]struct{} // completed sessions, refused for automatic records
}

// NewRecorder creates a recorder on top of repo.
func NewRecorder(repo database.RecordWriter) *Recorder {
	return &Recorder{
		repo:      repo,
		now:       time.Now,
		memo:      make(map[int64]map[string]database.AttendanceStatus),
		forgotten: make(map[int64]struct{}),
	}
}

func (r *Recorder) isForgotten(sessionID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.forgotten[sessionID]
	return ok
}

func (r *Recorder) remembered(sessionID int64, studentID string) (database.AttendanceStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.memo[sessionID][studentID]
	return status, ok
}

func (r *Recorder) remember(sessionID int64, studentID string, status database.AttendanceStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, gone := r.forgotten[sessionID]; gone {
		return
	}
	students, ok := r.memo[sessionID]
	if !ok {
		students = make(map[string]database.AttendanceStatus)
		r.memo[sessionID] = students
	}
	students[studentID] = status
}

// Record stores an automatic PRESENT or LATE record unless one already
// exists, in which case the existing status is returned untouched. Sessions
// passed to Forget fail with ErrSessionCompleted.
func (r *Recorder) Record(ctx context.Context, sessionID int64, studentID string, status database.AttendanceStatus, confidence, liveness float64) (RecordResult, error) {
	if status != database.StatusPresent && status != database.StatusLate {
		return RecordResult{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if r.isForgotten(sessionID) {
		return RecordResult{}, ErrSessionCompleted
	}
	if existing, ok := r.remembered(sessionID, studentID); ok {
		return RecordResult{Outcome: OutcomeAlreadyRecorded, Status: existing}, nil
	}

	existing, err := r.repo.GetRecord(ctx, sessionID, studentID)
	if err != nil {
		return RecordResult{}, fmt.Errorf("getting record: %w", err)
	}
	if existing != nil {
		r.remember(sessionID, studentID, existing.Status)
		return RecordResult{Outcome: OutcomeAlreadyRecorded, Status: existing.Status}, nil
	}

	rec := &database.Record{
		SessionID:       sessionID,
		StudentID:       studentID,
		Status:          status,
		DetectedAt:      r.now(),
		ConfidenceScore: confidence,
		LivenessScore:   liveness,
	}
	err = r.repo.InsertRecord(ctx, rec)
	if errors.Is(err, database.ErrDuplicateRecord) {
		// Lost the race against a concurrent writer.
		winner, getErr := r.repo.GetRecord(ctx, sessionID, studentID)
		if getErr != nil {
			return RecordResult{}, fmt.Errorf("getting conflicting record: %w", getErr)
		}
		if winner == nil {
			return RecordResult{}, fmt.Errorf("record for %s vanished after conflict", studentID)
		}
		r.remember(sessionID, studentID, winner.Status)
		return RecordResult{Outcome: OutcomeAlreadyRecorded, Status: winner.Status}, nil
	}
	if err != nil {
		return RecordResult{}, fmt.Errorf("inserting record: %w", err)
	}

	r.remember(sessionID, studentID, status)
	return RecordResult{Outcome: OutcomeCreated, Status: status}, nil
}

// Override sets a student's status by hand, creating the record if needed.
// Overridden records are never touched by automatic detection again.
func (r *Recorder) Override(ctx context.Context, sessionID int64, studentID string, status database.AttendanceStatus, by, reason string) (*database.Record, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	rec := &database.Record{
		SessionID:      sessionID,
		StudentID:      studentID,
		Status:         status,
		DetectedAt:     r.now(),
		ManualOverride: true,
		OverrideBy:     by,
		OverrideReason: reason,
	}
	if err := r.repo.UpsertOverride(ctx, rec); err != nil {
		return nil, fmt.Errorf("writing override: %w", err)
	}
	r.remember(sessionID, studentID, rec.Status)
	return rec, nil
}

// Forget drops the memo of a completed session. Frames still in flight for
// it can no longer record or repopulate the memo.
func (r *Recorder) Forget(sessionID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.memo, sessionID)
	r.forgotten[sessionID] = struct{}{}
}

// memoLen returns how many sessions have a memo.
func (r *Recorder) memoLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.memo)
}
