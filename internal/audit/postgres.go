// Package audit keeps a PostgreSQL trail of committed interview transitions.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jobchaja-interviews/internal/models"

	"github.com/google/uuid"
)

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS interview_audit_log (
		id             UUID PRIMARY KEY,
		application_id TEXT NOT NULL,
		job_id         TEXT NOT NULL,
		operation      TEXT NOT NULL,
		from_status    TEXT NOT NULL,
		to_status      TEXT NOT NULL,
		interview_note TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL
	)`

const createIndexSQL = `
	CREATE INDEX IF NOT EXISTS idx_interview_audit_log_application
		ON interview_audit_log (application_id, created_at)`

// Entry is one row of the audit trail.
type Entry struct {
	ID            string                 `json:"id"`
	ApplicationID string                 `json:"applicationId"`
	JobID         string                 `json:"jobId"`
	Operation     string                 `json:"operation"`
	From          models.InterviewStatus `json:"from"`
	To            models.InterviewStatus `json:"to"`
	InterviewNote string                 `json:"interviewNote"`
	CreatedAt     time.Time              `json:"createdAt"`
}

type Writer struct {
	db    *sql.DB
	newID func() string
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db, newID: uuid.NewString}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create interview_audit_log: %w", err)
	}
	if _, err := w.db.ExecContext(ctx, createIndexSQL); err != nil {
		return fmt.Errorf("failed to create interview_audit_log index: %w", err)
	}
	return nil
}

func (w *Writer) RecordTransition(ctx context.Context, ev models.TransitionEvent) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO interview_audit_log
			(id, application_id, job_id, operation, from_status, to_status, interview_note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.newID(),
		ev.ApplicationID,
		ev.JobID,
		ev.Operation,
		string(ev.From),
		string(ev.To),
		ev.NoteText,
		ev.At,
	)
	if err != nil {
		return fmt.Errorf("audit insert failed for application %s: %w", ev.ApplicationID, err)
	}
	return nil
}

// History returns the transitions of one application, oldest first.
func (w *Writer) History(ctx context.Context, applicationID string) ([]Entry, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT id, application_id, job_id, operation, from_status, to_status, interview_note, created_at
		FROM interview_audit_log
		WHERE application_id = $1
		ORDER BY created_at ASC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("audit history query failed: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var from, to string
		if err := rows.Scan(&e.ID, &e.ApplicationID, &e.JobID, &e.Operation, &from, &to, &e.InterviewNote, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		e.From = models.InterviewStatus(from)
		e.To = models.InterviewStatus(to)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit history rows: %w", err)
	}
	return entries, nil
}
