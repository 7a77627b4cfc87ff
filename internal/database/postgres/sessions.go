package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

// SessionRepository provides PostgreSQL-backed attendance session storage
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, class_id, session_date, start_time, end_time, status,
	present_window_minutes, late_window_minutes, created_at`

func scanSession(scanner interface{ Scan(...any) error }) (database.Session, error) {
	var s database.Session
	var endTime sql.NullTime
	var status string
	if err := scanner.Scan(
		&s.ID,
		&s.ClassID,
		&s.SessionDate,
		&s.StartTime,
		&endTime,
		&status,
		&s.PresentWindowMinutes,
		&s.LateWindowMinutes,
		&s.CreatedAt,
	); err != nil {
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
func (r *SessionRepository) CreateSession(ctx context.Context, s *database.Session) error {
	query := `
		INSERT INTO attendance_sessions (class_id, session_date, start_time, status,
			present_window_minutes, late_window_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		s.ClassID,
		s.SessionDate,
		s.StartTime,
		string(s.Status),
		s.PresentWindowMinutes,
		s.LateWindowMinutes,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID, returns nil if not found
func (r *SessionRepository) GetSession(ctx context.Context, id int64) (*database.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// ListSessions returns the most recent sessions first
func (r *SessionRepository) ListSessions(ctx context.Context, limit int) ([]database.Session, error) {
	if limit <= 0 {
		limit = database.DefaultSessionListLimit
	}
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions ORDER BY start_time DESC, id DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
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
func (r *SessionRepository) ActivateSession(ctx context.Context, id int64, startedAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE attendance_sessions SET status = 'ACTIVE', start_time = $2
		WHERE id = $1 AND status = 'SCHEDULED'
	`, id, startedAt)
	if err != nil {
		return fmt.Errorf("activate session: %w", err)
	}
	return expectOneRow(result)
}

// CompleteSession marks an open session as completed
func (r *SessionRepository) CompleteSession(ctx context.Context, id int64, endedAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE attendance_sessions SET status = 'COMPLETED', end_time = $2
		WHERE id = $1 AND status <> 'COMPLETED'
	`, id, endedAt)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return expectOneRow(result)
}

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
