package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack/campus-api/internal/models"
)

// AttendanceRepository persists the raw attendance ledger and the derived
// participation summaries.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert inserts or overwrites the record for the (session_id, user_id) pair.
// Last write wins; no mark history is retained.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO attendance_records (id, session_id, user_id, status, marked_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id, user_id)
DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at
RETURNING id, session_id, user_id, status, marked_by, created_at, updated_at`
	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.SessionID, record.UserID, record.Status, record.MarkedBy, record.CreatedAt, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance record: %w", err)
	}
	return &stored, nil
}

// Tally derives the ledger counts for one (batch, user) pair straight from
// durable state, so a recompute is safe to re-run at any time.
func (r *AttendanceRepository) Tally(ctx context.Context, batchID, userID string) (*models.AttendanceTally, error) {
	const query = `SELECT
COUNT(*) FILTER (WHERE ar.status = 'PRESENT') AS present,
COUNT(*) FILTER (WHERE ar.status = 'LATE') AS late,
MAX(s.session_date) FILTER (WHERE ar.status = 'PRESENT') AS last_attended_at
FROM attendance_records ar
JOIN sessions s ON s.id = ar.session_id
WHERE s.batch_id = $1 AND ar.user_id = $2`
	var tally models.AttendanceTally
	if err := r.db.GetContext(ctx, &tally, query, batchID, userID); err != nil {
		return nil, fmt.Errorf("tally attendance: %w", err)
	}
	return &tally, nil
}

// UpsertSummary writes the recomputed summary for the pair.
func (r *AttendanceRepository) UpsertSummary(ctx context.Context, summary *models.ParticipationSummary) error {
	summary.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO participation_summaries (batch_id, user_id, total_sessions, sessions_attended, attendance_percentage, last_attended_at, engagement_score, updated_at)
VALUES (:batch_id, :user_id, :total_sessions, :sessions_attended, :attendance_percentage, :last_attended_at, :engagement_score, :updated_at)
ON CONFLICT (batch_id, user_id)
DO UPDATE SET total_sessions = EXCLUDED.total_sessions, sessions_attended = EXCLUDED.sessions_attended,
attendance_percentage = EXCLUDED.attendance_percentage, last_attended_at = EXCLUDED.last_attended_at,
engagement_score = EXCLUDED.engagement_score, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, summary); err != nil {
		return fmt.Errorf("upsert participation summary: %w", err)
	}
	return nil
}

// GetSummary returns the stored summary for the pair.
func (r *AttendanceRepository) GetSummary(ctx context.Context, batchID, userID string) (*models.ParticipationSummary, error) {
	const query = `SELECT batch_id, user_id, total_sessions, sessions_attended, attendance_percentage, last_attended_at, engagement_score, updated_at
FROM participation_summaries WHERE batch_id = $1 AND user_id = $2`
	var summary models.ParticipationSummary
	if err := r.db.GetContext(ctx, &summary, query, batchID, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get participation summary: %w", err)
	}
	return &summary, nil
}

// ListSummariesByBatch returns all summaries for a batch, for reports.
func (r *AttendanceRepository) ListSummariesByBatch(ctx context.Context, batchID string) ([]models.ParticipationSummary, error) {
	const query = `SELECT batch_id, user_id, total_sessions, sessions_attended, attendance_percentage, last_attended_at, engagement_score, updated_at
FROM participation_summaries WHERE batch_id = $1 ORDER BY user_id ASC`
	var summaries []models.ParticipationSummary
	if err := r.db.SelectContext(ctx, &summaries, query, batchID); err != nil {
		return nil, fmt.Errorf("list participation summaries: %w", err)
	}
	return summaries, nil
}
