package repository

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/campus-api/internal/models"
)

func TestEnrollmentRepositoryCreateIdempotentInserts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO batch_enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.BatchEnrollment{BatchID: "b1", UserID: "s1"}
	inserted, err := repo.CreateIdempotent(context.Background(), enrollment)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
}

func TestEnrollmentRepositoryCreateIdempotentReplay(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// ON CONFLICT DO NOTHING reports zero affected rows for the replay.
	mock.ExpectExec("INSERT INTO batch_enrollments").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.CreateIdempotent(context.Background(), &models.BatchEnrollment{BatchID: "b1", UserID: "s1"})
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestEnrollmentRepositorySetJoinedWhatsAppMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("UPDATE batch_enrollments").
		WithArgs("b1", "ghost", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetJoinedWhatsApp(context.Background(), "b1", "ghost", true)
	assert.Equal(t, sql.ErrNoRows, err)
}
