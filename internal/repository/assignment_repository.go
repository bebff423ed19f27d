package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edustack/campus-api/internal/models"
)

// ErrDuplicate signals a uniqueness violation on insert. The database
// constraint is the arbiter under concurrent writes, not a prior existence
// check.
var ErrDuplicate = errors.New("duplicate row")

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// AssignmentRepository persists module-teacher assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts a new assignment. A duplicate (module_id, user_id) pair
// returns ErrDuplicate.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.ModuleTeacherAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO module_teacher_assignments (id, module_id, user_id, created_at)
		VALUES (:id, :module_id, :user_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create module teacher assignment: %w", err)
	}
	return nil
}

// Delete removes the assignment for the pair.
func (r *AssignmentRepository) Delete(ctx context.Context, moduleID, userID string) error {
	const query = `DELETE FROM module_teacher_assignments WHERE module_id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, moduleID, userID)
	if err != nil {
		return fmt.Errorf("delete module teacher assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted assignment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByModule returns the number of teachers assigned to a module.
func (r *AssignmentRepository) CountByModule(ctx context.Context, moduleID string) (int, error) {
	const query = `SELECT COUNT(*) FROM module_teacher_assignments WHERE module_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, moduleID); err != nil {
		return 0, fmt.Errorf("count module teacher assignments: %w", err)
	}
	return count, nil
}

// Exists checks whether the teacher is assigned to the module.
func (r *AssignmentRepository) Exists(ctx context.Context, moduleID, userID string) (bool, error) {
	const query = `SELECT 1 FROM module_teacher_assignments WHERE module_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, moduleID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check module teacher assignment: %w", err)
	}
	return true, nil
}

// ListTeacherIDsByModule returns the user ids assigned to a module, resolved
// at call time so role and assignment changes are reflected immediately.
func (r *AssignmentRepository) ListTeacherIDsByModule(ctx context.Context, moduleID string) ([]string, error) {
	const query = `SELECT user_id FROM module_teacher_assignments WHERE module_id = $1 ORDER BY created_at ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, moduleID); err != nil {
		return nil, fmt.Errorf("list module teachers: %w", err)
	}
	return ids, nil
}
