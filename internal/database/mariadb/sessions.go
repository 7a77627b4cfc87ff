package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

const sessionColumns = `id, class_id, session_date, start_time, end_time, status,
	present_window_minutes, late_window_minutes, created_at`

func scanSession(scanner interface{ Scan(...any) error }) (database.Session, error) {
	var s database.Session
	var endTime sql.NullTime
	var status string
	if err := scanner.Scan(&s.ID, &s.ClassID, &s.SessionDate, &s.StartTime, &endTime, &status,
		&s.PresentWindowMinutes, &s.LateWindowMinutes, &s.CreatedAt); err != nil {
		return s, err
	}
	s.Status = database.SessionStatus(status)
	if endTime.Valid {
		t := endTime.Time
		s.EndTime = &t
	}
	return s, nil
}

// CreateSession stores a new session and fills in its ID
func (b *Backend) CreateSession(ctx context.Context, s *database.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	result, err := b.pool.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (class_id, session_date, start_time, status,
			present_window_minutes, late_window_minutes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ClassID, s.SessionDate, s.StartTime, string(s.Status),
		s.PresentWindowMinutes, s.LateWindowMinutes, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting session id: %w", err)
	}
	s.ID = id
	return nil
}

// GetSession retrieves a session by ID, returns nil if not found
func (b *Backend) GetSession(ctx context.Context, id int64) (*database.Session, error) {
	row := b.pool.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// ListSessions returns the most recent sessions first
func (b *Backend) ListSessions(ctx context.Context, limit int) ([]database.Session, error) {
	if limit <= 0 {
		limit = database.DefaultSessionListLimit
	}
	rows, err := b.pool.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM attendance_sessions ORDER BY start_time DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []database.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ActivateSession moves a scheduled session to ACTIVE
func (b *Backend) ActivateSession(ctx context.Context, id int64, startedAt time.Time) error {
	result, err := b.pool.db.ExecContext(ctx,
		`UPDATE attendance_sessions SET status = 'ACTIVE', start_time = ? WHERE id = ? AND status = 'SCHEDULED'`,
		startedAt, id)
	if err != nil {
		return fmt.Errorf("activate session: %w", err)
	}
	return expectOneRow(result)
}

// CompleteSession marks an open session as completed
func (b *Backend) CompleteSession(ctx context.Context, id int64, endedAt time.Time) error {
	result, err := b.pool.db.ExecContext(ctx,
		`UPDATE attendance_sessions SET status = 'COMPLETED', end_time = ? WHERE id = ? AND status <> 'COMPLETED'`,
		endedAt, id)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return expectOneRow(result)
}

// expectOneRow relies on the status predicate: a matching row always changes,
// so zero affected rows means no open session with that ID.
func expectOneRow(result sql.Result) error {
	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if count == 0 {
		return database.ErrNotFound
	}
	return nil
}
