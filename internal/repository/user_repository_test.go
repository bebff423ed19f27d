package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/campus-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestUserRepositoryGrantRoleAndClearPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("UPDATE users").
		WithArgs("u1", "TEACHER", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET pending_role_request = NULL").
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.GrantRoleAndClearPending(context.Background(), "u1", models.RoleTeacher)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryReplaceRolesMissingUser(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("UPDATE users SET roles").
		WithArgs("ghost", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ReplaceRoles(context.Background(), "ghost", []models.Role{models.RoleStudent})
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestUserRepositoryCountDirectors(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users")).
		WithArgs("DIRECTOR").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountDirectors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUserRepositoryFindRolesParsesArray(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT roles FROM users WHERE id = $1 AND active = TRUE")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"roles"}).AddRow([]byte("{STUDENT,TEACHER}")))

	roles, err := repo.FindRoles(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleStudent, models.RoleTeacher}, roles)
}

func TestUserRepositoryFindRolesSkipsInactive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT roles FROM users WHERE id = $1 AND active = TRUE")).
		WithArgs("retired").
		WillReturnRows(sqlmock.NewRows([]string{"roles"}))

	_, err := repo.FindRoles(context.Background(), "retired")
	assert.Equal(t, sql.ErrNoRows, err)
}
