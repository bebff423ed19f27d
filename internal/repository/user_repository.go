package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edustack/campus-api/internal/models"
)

// UserRepository is the role store accessor: it owns reads and writes of a
// user's role set and pending-request marker.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID loads one account.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.UserAccount, error) {
	const query = `SELECT id, email, password_hash, full_name, roles, pending_role_request, active, created_at, updated_at
FROM users WHERE id = $1`
	var user models.UserAccount
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByEmail loads one account by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.UserAccount, error) {
	const query = `SELECT id, email, password_hash, full_name, roles, pending_role_request, active, created_at, updated_at
FROM users WHERE email = $1`
	var user models.UserAccount
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// Create inserts a new account.
func (r *UserRepository) Create(ctx context.Context, user *models.UserAccount) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	const query = `INSERT INTO users (id, email, password_hash, full_name, roles, pending_role_request, active, created_at, updated_at)
VALUES (:id, :email, :password_hash, :full_name, :roles, :pending_role_request, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// ReplaceRoles atomically swaps the account's role set.
func (r *UserRepository) ReplaceRoles(ctx context.Context, userID string, roles []models.Role) error {
	const query = `UPDATE users SET roles = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, userID, models.RoleStrings(roles), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("replace roles: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check replaced role rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GrantRoleAndClearPending adds a role to the set and clears the pending
// marker in one statement, so approval cannot leave a half-applied state.
func (r *UserRepository) GrantRoleAndClearPending(ctx context.Context, userID string, role models.Role) error {
	const query = `UPDATE users
SET roles = array_append(roles, $2), pending_role_request = NULL, updated_at = $3
WHERE id = $1 AND NOT (roles @> ARRAY[$2])`
	if _, err := r.db.ExecContext(ctx, query, userID, string(role), time.Now().UTC()); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	// The role may already be present; clearing the marker must still happen.
	return r.ClearPendingRoleRequest(ctx, userID)
}

// SetPendingRoleRequest records the user's own role request marker.
func (r *UserRepository) SetPendingRoleRequest(ctx context.Context, userID string, role models.Role) error {
	const query = `UPDATE users SET pending_role_request = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, string(role), time.Now().UTC()); err != nil {
		return fmt.Errorf("set pending role request: %w", err)
	}
	return nil
}

// ClearPendingRoleRequest unconditionally clears the marker. Clearing an
// already-empty marker is a no-op, which keeps rejection idempotent.
func (r *UserRepository) ClearPendingRoleRequest(ctx context.Context, userID string) error {
	const query = `UPDATE users SET pending_role_request = NULL, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear pending role request: %w", err)
	}
	return nil
}

// CountDirectors returns how many active accounts hold the director role.
// The director floor invariant is re-derived from durable state on every call.
func (r *UserRepository) CountDirectors(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM users WHERE roles @> ARRAY[$1] AND active = TRUE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, string(models.RoleDirector)); err != nil {
		return 0, fmt.Errorf("count directors: %w", err)
	}
	return count, nil
}

// ListIDsByAnyRole returns ids of active accounts holding at least one of the
// given roles. Used for call-time notification fan-out.
func (r *UserRepository) ListIDsByAnyRole(ctx context.Context, roles ...models.Role) ([]string, error) {
	const query = `SELECT id FROM users WHERE roles && $1 AND active = TRUE`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, models.RoleStrings(roles)); err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	return ids, nil
}

// FindRoles returns just the role set for an active account. Retired
// accounts keep their rows but carry no authority.
func (r *UserRepository) FindRoles(ctx context.Context, userID string) ([]models.Role, error) {
	const query = `SELECT roles FROM users WHERE id = $1 AND active = TRUE`
	var roles pq.StringArray
	if err := r.db.GetContext(ctx, &roles, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user roles: %w", err)
	}
	out := make([]models.Role, len(roles))
	for i, role := range roles {
		out[i] = models.Role(role)
	}
	return out, nil
}
