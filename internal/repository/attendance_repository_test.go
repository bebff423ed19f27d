package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/campus-api/internal/models"
)

func TestAttendanceRepositoryUpsertReturnsStoredRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "session_id", "user_id", "status", "marked_by", "created_at", "updated_at"}).
		AddRow("rec-1", "sess1", "s1", "PRESENT", "t1", now, now)
	mock.ExpectQuery("INSERT INTO attendance_records").
		WillReturnRows(rows)

	stored, err := repo.Upsert(context.Background(), &models.AttendanceRecord{
		SessionID: "sess1", UserID: "s1", Status: models.AttendanceStatusPresent, MarkedBy: "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", stored.ID)
	assert.Equal(t, models.AttendanceStatusPresent, stored.Status)
}

func TestAttendanceRepositoryTally(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	last := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"present", "late", "last_attended_at"}).AddRow(4, 1, last)
	mock.ExpectQuery("SELECT").
		WithArgs("b1", "s1").
		WillReturnRows(rows)

	tally, err := repo.Tally(context.Background(), "b1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, tally.Present)
	assert.Equal(t, 1, tally.Late)
	require.NotNil(t, tally.LastAttendedAt)
	assert.Equal(t, last, *tally.LastAttendedAt)
}

func TestAttendanceRepositoryTallyEmptyLedger(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"present", "late", "last_attended_at"}).AddRow(0, 0, nil)
	mock.ExpectQuery("SELECT").
		WithArgs("b1", "s1").
		WillReturnRows(rows)

	tally, err := repo.Tally(context.Background(), "b1", "s1")
	require.NoError(t, err)
	assert.Zero(t, tally.Present)
	assert.Nil(t, tally.LastAttendedAt)
}

func TestAttendanceRepositoryGetSummaryMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM participation_summaries").
		WithArgs("b1", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"batch_id"}))

	_, err := repo.GetSummary(context.Background(), "b1", "ghost")
	assert.Equal(t, sql.ErrNoRows, err)
}
