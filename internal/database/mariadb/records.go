package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

const recordColumns = `id, session_id, student_id, status, detected_at, confidence_score,
	liveness_score, manual_override, override_by, override_reason, updated_at`

func scanRecord(scanner interface{ Scan(...any) error }) (database.Record, error) {
	var rec database.Record
	var status string
	var overrideBy, overrideReason sql.NullString
	if err := scanner.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &status, &rec.DetectedAt,
		&rec.ConfidenceScore, &rec.LivenessScore, &rec.ManualOverride,
		&overrideBy, &overrideReason, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	rec.Status = database.AttendanceStatus(status)
	rec.OverrideBy = overrideBy.String
	rec.OverrideReason = overrideReason.String
	return rec, nil
}

// GetRecord retrieves the record for a (session, student) pair, returns nil if not found
func (b *Backend) GetRecord(ctx context.Context, sessionID int64, studentID string) (*database.Record, error) {
	row := b.pool.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM attendance_records WHERE session_id = ? AND student_id = ?`,
		sessionID, studentID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

// ListRecords returns all records of a session ordered by detection time
func (b *Backend) ListRecords(ctx context.Context, sessionID int64) ([]database.Record, error) {
	rows, err := b.pool.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM attendance_records WHERE session_id = ? ORDER BY detected_at, id`,
		sessionID)
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

// InsertRecord stores a new automatic record; a duplicate key becomes ErrDuplicateRecord.
func (b *Backend) InsertRecord(ctx context.Context, rec *database.Record) error {
	now := time.Now().UTC()
	result, err := b.pool.db.ExecContext(ctx, `
		INSERT INTO attendance_records (session_id, student_id, status, detected_at,
			confidence_score, liveness_score, manual_override, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, FALSE, ?)`,
		rec.SessionID, rec.StudentID, string(rec.Status), rec.DetectedAt,
		rec.ConfidenceScore, rec.LivenessScore, now,
	)
	if isDuplicateEntry(err) {
		return database.ErrDuplicateRecord
	}
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	if rec.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("getting record id: %w", err)
	}
	rec.UpdatedAt = now
	return nil
}

// UpsertOverride writes a manual override, keeping the detection evidence of an existing row.
func (b *Backend) UpsertOverride(ctx context.Context, rec *database.Record) error {
	tx, err := b.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_records (session_id, student_id, status, detected_at,
			confidence_score, liveness_score, manual_override, override_by, override_reason)
		VALUES (?, ?, ?, ?, 0, 0, TRUE, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			manual_override = TRUE,
			override_by = VALUES(override_by),
			override_reason = VALUES(override_reason)`,
		rec.SessionID, rec.StudentID, string(rec.Status), rec.DetectedAt,
		rec.OverrideBy, rec.OverrideReason,
	)
	if err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM attendance_records WHERE session_id = ? AND student_id = ?`,
		rec.SessionID, rec.StudentID)
	saved, err := scanRecord(row)
	if err != nil {
		return fmt.Errorf("reload override: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit override: %w", err)
	}
	*rec = saved
	return nil
}
