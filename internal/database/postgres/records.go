package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/database"
)

// RecordRepository provides PostgreSQL-backed attendance record storage
type RecordRepository struct {
	pool *Pool
}

// NewRecordRepository creates a new PostgreSQL record repository
func NewRecordRepository(pool *Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

const recordColumns = `id, session_id, student_id, status, detected_at, confidence_score,
	liveness_score, manual_override, override_by, override_reason, updated_at`

func scanRecord(scanner interface{ Scan(...any) error }) (database.Record, error) {
	var rec database.Record
	var status string
	var overrideBy, overrideReason sql.NullString
	if err := scanner.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.StudentID,
		&status,
		&rec.DetectedAt,
		&rec.ConfidenceScore,
		&rec.LivenessScore,
		&rec.ManualOverride,
		&overrideBy,
		&overrideReason,
		&rec.UpdatedAt,
	); err != nil {
		return rec, err
	}
	rec.Status = database.AttendanceStatus(status)
	rec.OverrideBy = overrideBy.String
	rec.OverrideReason = overrideReason.String
	return rec, nil
}

// GetRecord retrieves the record for a (session, student) pair, returns nil if not found
func (r *RecordRepository) GetRecord(ctx context.Context, sessionID int64, studentID string) (*database.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE session_id = $1 AND student_id = $2`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, sessionID, studentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

// ListRecords returns all records of a session ordered by detection time
func (r *RecordRepository) ListRecords(ctx context.Context, sessionID int64) ([]database.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE session_id = $1 ORDER BY detected_at, id`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []database.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// InsertRecord stores a new automatic record. The unique constraint on
// (session_id, student_id) decides concurrent inserts; the loser gets ErrDuplicateRecord.
func (r *RecordRepository) InsertRecord(ctx context.Context, rec *database.Record) error {
	query := `
		INSERT INTO attendance_records (session_id, student_id, status, detected_at,
			confidence_score, liveness_score, manual_override)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING id, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		rec.SessionID,
		rec.StudentID,
		string(rec.Status),
		rec.DetectedAt,
		rec.ConfidenceScore,
		rec.LivenessScore,
	).Scan(&rec.ID, &rec.UpdatedAt)
	if isUniqueViolation(err) {
		return database.ErrDuplicateRecord
	}
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// UpsertOverride writes a manual override. Detection time and scores of an
// existing record are kept so the automatic evidence stays auditable.
func (r *RecordRepository) UpsertOverride(ctx context.Context, rec *database.Record) error {
	query := `
		INSERT INTO attendance_records (session_id, student_id, status, detected_at,
			confidence_score, liveness_score, manual_override, override_by, override_reason)
		VALUES ($1, $2, $3, $4, 0, 0, TRUE, $5, $6)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = EXCLUDED.status,
			manual_override = TRUE,
			override_by = EXCLUDED.override_by,
			override_reason = EXCLUDED.override_reason,
			updated_at = NOW()
		RETURNING ` + recordColumns

	saved, err := scanRecord(r.pool.QueryRow(ctx, query,
		rec.SessionID,
		rec.StudentID,
		string(rec.Status),
		rec.DetectedAt,
		rec.OverrideBy,
		rec.OverrideReason,
	))
	if err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}
	*rec = saved
	return nil
}
