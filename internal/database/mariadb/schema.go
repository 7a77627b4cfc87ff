package mariadb

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS attendance_sessions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		class_id VARCHAR(255) NOT NULL,
		session_date DATE NOT NULL,
		start_time DATETIME(6) NOT NULL,
		end_time DATETIME(6) NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'SCHEDULED',
		present_window_minutes INT NOT NULL,
		late_window_minutes INT NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		CONSTRAINT chk_windows CHECK (present_window_minutes > 0 AND present_window_minutes < late_window_minutes),
		INDEX idx_attendance_sessions_class (class_id, session_date)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		session_id BIGINT NOT NULL,
		student_id VARCHAR(255) NOT NULL,
		status VARCHAR(16) NOT NULL,
		detected_at DATETIME(6) NOT NULL,
		confidence_score DOUBLE NOT NULL DEFAULT 0,
		liveness_score DOUBLE NOT NULL DEFAULT 0,
		manual_override BOOLEAN NOT NULL DEFAULT FALSE,
		override_by VARCHAR(255) NULL,
		override_reason TEXT NULL,
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_attendance_records_session_student (session_id, student_id),
		CONSTRAINT fk_attendance_records_session FOREIGN KEY (session_id)
			REFERENCES attendance_sessions(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
}

// EnsureSchema creates the attendance tables if they do not exist yet.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
