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

// EnrollmentRepository persists batch enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateIdempotent inserts the enrollment unless the (batch_id, user_id) pair
// already exists. Returns whether a row was actually inserted; a duplicate is
// not an error.
func (r *EnrollmentRepository) CreateIdempotent(ctx context.Context, enrollment *models.BatchEnrollment) (bool, error) {
	now := time.Now().UTC()
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO batch_enrollments (id, batch_id, user_id, status, phone, guardian_name, joined_whatsapp, created_at, updated_at)
VALUES (:id, :batch_id, :user_id, :status, :phone, :guardian_name, :joined_whatsapp, :created_at, :updated_at)
ON CONFLICT (batch_id, user_id) DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, enrollment)
	if err != nil {
		return false, fmt.Errorf("create enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check inserted enrollment rows: %w", err)
	}
	return affected == 1, nil
}

// FindByBatchAndUser returns the enrollment for the pair.
func (r *EnrollmentRepository) FindByBatchAndUser(ctx context.Context, batchID, userID string) (*models.BatchEnrollment, error) {
	const query = `SELECT id, batch_id, user_id, status, phone, guardian_name, joined_whatsapp, created_at, updated_at
FROM batch_enrollments WHERE batch_id = $1 AND user_id = $2`
	var enrollment models.BatchEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, batchID, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// SetJoinedWhatsApp flips the flag on the user's own enrollment.
func (r *EnrollmentRepository) SetJoinedWhatsApp(ctx context.Context, batchID, userID string, joined bool) error {
	const query = `UPDATE batch_enrollments SET joined_whatsapp = $3, updated_at = $4 WHERE batch_id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, batchID, userID, joined, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set joined whatsapp: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated enrollment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByBatch returns all enrollments in a batch.
func (r *EnrollmentRepository) ListByBatch(ctx context.Context, batchID string) ([]models.BatchEnrollment, error) {
	const query = `SELECT id, batch_id, user_id, status, phone, guardian_name, joined_whatsapp, created_at, updated_at
FROM batch_enrollments WHERE batch_id = $1 ORDER BY created_at ASC`
	var enrollments []models.BatchEnrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch enrollments: %w", err)
	}
	return enrollments, nil
}
