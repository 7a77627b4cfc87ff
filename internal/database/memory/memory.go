// Package memory provides an in-process implementation of the attendance
// repositories. It backs the service when no database is configured and
// serves as the fake in unit tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

type recordKey struct {
	sessionID int64
	studentID string
}

// Backend is a mutex-guarded implementation of database.Backend
type Backend struct {
	mu       sync.RWMutex
	sessions map[int64]*database.Session
	records  map[recordKey]*database.Record
	nextID   int64
	nextRec  int64

	// Error injection
	GetSessionError   error
	CreateSessionErr  error
	GetRecordError    error
	InsertRecordError error
	UpsertError       error

	// Counters for assertions in tests
	GetRecordCalls    int
	InsertRecordCalls int
}

var _ database.Backend = (*Backend)(nil)

// New creates an empty in-memory backend
func New() *Backend {
	return &Backend{
		sessions: make(map[int64]*database.Session),
		records:  make(map[recordKey]*database.Record),
	}
}

// AddSession stores a session as-is, assigning an ID when it has none
func (m *Backend) AddSession(s database.Session) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		m.nextID++
		s.ID = m.nextID
	} else if s.ID > m.nextID {
		m.nextID = s.ID
	}
	m.sessions[s.ID] = &s
	return s.ID
}

// CreateSession stores a new session and fills in its ID
func (m *Backend) CreateSession(ctx context.Context, s *database.Session) error {
	if m.CreateSessionErr != nil {
		return m.CreateSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	stored := *s
	m.sessions[s.ID] = &stored
	return nil
}

// GetSession retrieves a session by ID, returns nil if not found
func (m *Backend) GetSession(ctx context.Context, id int64) (*database.Session, error) {
	if m.GetSessionError != nil {
		return nil, m.GetSessionError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

// ListSessions returns the most recent sessions first
func (m *Backend) ListSessions(ctx context.Context, limit int) ([]database.Session, error) {
	if limit <= 0 {
		limit = database.DefaultSessionListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ActivateSession moves a scheduled session to ACTIVE
func (m *Backend) ActivateSession(ctx context.Context, id int64, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != database.SessionScheduled {
		return database.ErrNotFound
	}
	s.Status = database.SessionActive
	s.StartTime = startedAt
	return nil
}

// CompleteSession marks an open session as completed
func (m *Backend) CompleteSession(ctx context.Context, id int64, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status == database.SessionCompleted {
		return database.ErrNotFound
	}
	s.Status = database.SessionCompleted
	s.EndTime = &endedAt
	return nil
}

// GetRecord retrieves the record for a (session, student) pair, returns nil if not found
func (m *Backend) GetRecord(ctx context.Context, sessionID int64, studentID string) (*database.Record, error) {
	if m.GetRecordError != nil {
		return nil, m.GetRecordError
	}
	m.mu.Lock()
	m.GetRecordCalls++
	rec, ok := m.records[recordKey{sessionID, studentID}]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

// ListRecords returns all records of a session ordered by detection time
func (m *Backend) ListRecords(ctx context.Context, sessionID int64) ([]database.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Record
	for key, rec := range m.records {
		if key.sessionID == sessionID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.Before(out[j].DetectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// InsertRecord stores a new automatic record. The check and the insert happen
// under one lock, so concurrent callers see exactly one winner.
func (m *Backend) InsertRecord(ctx context.Context, rec *database.Record) error {
	if m.InsertRecordError != nil {
		return m.InsertRecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertRecordCalls++
	key := recordKey{rec.SessionID, rec.StudentID}
	if _, exists := m.records[key]; exists {
		return database.ErrDuplicateRecord
	}
	m.nextRec++
	rec.ID = m.nextRec
	rec.ManualOverride = false
	rec.UpdatedAt = time.Now()
	stored := *rec
	m.records[key] = &stored
	return nil
}

// UpsertOverride writes a manual override, keeping the detection evidence of an existing record
func (m *Backend) UpsertOverride(ctx context.Context, rec *database.Record) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey{rec.SessionID, rec.StudentID}
	existing, ok := m.records[key]
	if !ok {
		m.nextRec++
		existing = &database.Record{
			ID:         m.nextRec,
			SessionID:  rec.SessionID,
			StudentID:  rec.StudentID,
			DetectedAt: rec.DetectedAt,
		}
		m.records[key] = existing
	}
	existing.Status = rec.Status
	existing.ManualOverride = true
	existing.OverrideBy = rec.OverrideBy
	existing.OverrideReason = rec.OverrideReason
	existing.UpdatedAt = time.Now()
	*rec = *existing
	return nil
}

// RecordCount returns the number of stored records across all sessions
func (m *Backend) RecordCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op
func (m *Backend) Close() error {
	return nil
}
