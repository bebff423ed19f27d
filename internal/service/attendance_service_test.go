package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack/campus-api/internal/models"
	appErrors "github.com/edustack/campus-api/pkg/errors"
)

type mockAttendanceStore struct {
	records   map[string]*models.AttendanceRecord
	summaries map[string]*models.ParticipationSummary
	upserts   int
}

func recordKey(sessionID, userID string) string { return sessionID + "/" + userID }

func (m *mockAttendanceStore) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if m.records == nil {
		m.records = make(map[string]*models.AttendanceRecord)
	}
	m.upserts++
	key := recordKey(record.SessionID, record.UserID)
	if existing, ok := m.records[key]; ok {
		existing.Status = record.Status
		existing.MarkedBy = record.MarkedBy
		return existing, nil
	}
	m.records[key] = record
	return record, nil
}

func (m *mockAttendanceStore) Tally(ctx context.Context, batchID, userID string) (*models.AttendanceTally, error) {
	tally := &models.AttendanceTally{}
	for _, r := range m.records {
		if r.UserID != userID {
			continue
		}
		switch r.Status {
		case models.AttendanceStatusPresent:
			tally.Present++
		case models.AttendanceStatusLate:
			tally.Late++
		}
	}
	return tally, nil
}

func (m *mockAttendanceStore) UpsertSummary(ctx context.Context, summary *models.ParticipationSummary) error {
	if m.summaries == nil {
		m.summaries = make(map[string]*models.ParticipationSummary)
	}
	m.summaries[recordKey(summary.BatchID, summary.UserID)] = summary
	return nil
}

func (m *mockAttendanceStore) GetSummary(ctx context.Context, batchID, userID string) (*models.ParticipationSummary, error) {
	if s, ok := m.summaries[recordKey(batchID, userID)]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceStore) ListSummariesByBatch(ctx context.Context, batchID string) ([]models.ParticipationSummary, error) {
	var list []models.ParticipationSummary
	for _, s := range m.summaries {
		if s.BatchID == batchID {
			list = append(list, *s)
		}
	}
	return list, nil
}

type mockCatalog struct {
	sessions     map[string]*models.Session
	batches      map[string]*models.Batch
	sessionCount int
}

func (m *mockCatalog) FindSessionByID(ctx context.Context, id string) (*models.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalog) FindBatchByID(ctx context.Context, id string) (*models.Batch, error) {
	if b, ok := m.batches[id]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalog) CountSessionsByBatch(ctx context.Context, batchID string) (int, error) {
	return m.sessionCount, nil
}

type mockAssignChecker struct {
	assigned map[string]bool
}

func (m *mockAssignChecker) Exists(ctx context.Context, moduleID, userID string) (bool, error) {
	return m.assigned[moduleID+"/"+userID], nil
}

type mockRoles struct {
	roles map[string][]models.Role
}

func (m *mockRoles) FindRoles(ctx context.Context, userID string) ([]models.Role, error) {
	if r, ok := m.roles[userID]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

func attendanceFixture(sessionCount int) (*mockAttendanceStore, *mockCatalog, *mockAssignChecker, *mockRoles) {
	store := &mockAttendanceStore{}
	catalog := &mockCatalog{
		sessions:     map[string]*models.Session{"sess1": {ID: "sess1", BatchID: "b1"}},
		batches:      map[string]*models.Batch{"b1": {ID: "b1", ModuleID: "m1", Name: "Cohort 7"}},
		sessionCount: sessionCount,
	}
	assignments := &mockAssignChecker{assigned: map[string]bool{"m1/t1": true}}
	roles := &mockRoles{roles: map[string][]models.Role{
		"t1":    {models.RoleTeacher},
		"admin": {models.RoleAdmin},
		"s1":    {models.RoleStudent},
	}}
	return store, catalog, assignments, roles
}

func newAttendance(store *mockAttendanceStore, catalog *mockCatalog, assignments *mockAssignChecker, roles *mockRoles, audit *mockAudit, notify *mockNotify, threshold int) *AttendanceService {
	return NewAttendanceService(store, catalog, assignments, roles, audit, notify, nil, 0, time.Minute, threshold, zap.NewNop())
}

func TestMarkByAssignedTeacherRecomputesSummary(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(2)
	audit := &mockAudit{}
	svc := newAttendance(store, catalog, assignments, roles, audit, &mockNotify{}, 50)

	summary, err := svc.Mark(context.Background(), "t1", "sess1", "s1", models.AttendanceStatusPresent)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.TotalSessions)
	assert.Equal(t, 1, summary.SessionsAttended)
	assert.Equal(t, 50, summary.AttendancePercentage)
	assert.Equal(t, 50, summary.EngagementScore)
	assert.Equal(t, models.AuditActionMarkAttendance, audit.lastAction())
}

func TestMarkReplayConverges(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(2)
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, &mockNotify{}, 0)

	first, err := svc.Mark(context.Background(), "t1", "sess1", "s1", models.AttendanceStatusPresent)
	require.NoError(t, err)
	second, err := svc.Mark(context.Background(), "t1", "sess1", "s1", models.AttendanceStatusPresent)
	require.NoError(t, err)

	assert.Equal(t, first.AttendancePercentage, second.AttendancePercentage)
	assert.Len(t, store.records, 1)
	assert.Equal(t, 2, store.upserts)
}

func TestMarkLastWriteWins(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(1)
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, &mockNotify{}, 0)

	_, err := svc.Mark(context.Background(), "t1", "sess1", "s1", models.AttendanceStatusPresent)
	require.NoError(t, err)
	summary, err := svc.Mark(context.Background(), "t1", "sess1", "s1", models.AttendanceStatusAbsent)
	require.NoError(t, err)

	assert.Equal(t, models.AttendanceStatusAbsent, store.records[recordKey("sess1", "s1")].Status)
	assert.Equal(t, 0, summary.SessionsAttended)
}

func TestMarkUnassignedTeacherDenied(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(1)
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, &mockNotify{}, 0)

	_, err := svc.Mark(context.Background(), "s1", "sess1", "s1", models.AttendanceStatusPresent)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized))
	assert.Empty(t, store.records)
}

func TestMarkAdminBypassesAssignment(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(1)
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, &mockNotify{}, 0)

	_, err := svc.Mark(context.Background(), "admin", "sess1", "s1", models.AttendanceStatusPresent)
	require.NoError(t, err)
	assert.Len(t, store.records, 1)
}

func TestMarkInvalidStatus(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(1)
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, &mockNotify{}, 0)

	_, err := svc.Mark(context.Background(), "t1", "sess1", "s1", "SLEEPING")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestMarkUnknownSessionNotFound(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(1)
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, &mockNotify{}, 0)

	_, err := svc.Mark(context.Background(), "t1", "missing", "s1", models.AttendanceStatusPresent)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestMarkBelowThresholdNotifiesStudent(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(4)
	notify := &mockNotify{}
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, notify, 50)

	// One present out of four sessions is 25%, under the 50% threshold.
	_, err := svc.Mark(context.Background(), "t1", "sess1", "s1", models.AttendanceStatusPresent)
	require.NoError(t, err)
	require.Len(t, notify.sent, 1)
	assert.Equal(t, "s1", notify.sent[0].UserID)
	assert.Equal(t, models.NotificationTypeAttendanceBelowThreshold, notify.sent[0].Type)
}

func TestMarkAtOrAboveThresholdStaysQuiet(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(2)
	notify := &mockNotify{}
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, notify, 50)

	_, err := svc.Mark(context.Background(), "t1", "sess1", "s1", models.AttendanceStatusPresent)
	require.NoError(t, err)
	assert.Empty(t, notify.sent)
}

func TestMarkZeroPercentStaysQuiet(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(4)
	notify := &mockNotify{}
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, notify, 50)

	// An absent mark leaves the percentage at 0, which sits outside the
	// alerting band.
	_, err := svc.Mark(context.Background(), "t1", "sess1", "s1", models.AttendanceStatusAbsent)
	require.NoError(t, err)
	assert.Empty(t, notify.sent)
}

func TestBulkMarkPresentTeacherOnly(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(1)
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, &mockNotify{}, 0)

	_, err := svc.BulkMarkPresent(context.Background(), "admin", "sess1", []string{"s1"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized))
}

func TestBulkMarkPresentCountsMarks(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(3)
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, &mockNotify{}, 0)

	marked, err := svc.BulkMarkPresent(context.Background(), "t1", "sess1", []string{"s1", "s2", "s3"})
	require.NoError(t, err)
	assert.Equal(t, 3, marked)
	assert.Len(t, store.records, 3)
}

func TestEngagementScoreWeighsLateHalf(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(2)
	catalog.sessions["sess2"] = &models.Session{ID: "sess2", BatchID: "b1"}
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, &mockNotify{}, 0)

	_, err := svc.Mark(context.Background(), "t1", "sess1", "s1", models.AttendanceStatusPresent)
	require.NoError(t, err)
	summary, err := svc.Mark(context.Background(), "t1", "sess2", "s1", models.AttendanceStatusLate)
	require.NoError(t, err)

	assert.Equal(t, 50, summary.AttendancePercentage)
	assert.Equal(t, 75, summary.EngagementScore)
}

func TestSummaryDerivesWhenMissing(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(5)
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, &mockNotify{}, 0)

	summary, err := svc.Summary(context.Background(), "b1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalSessions)
	assert.Equal(t, 0, summary.SessionsAttended)
	assert.Equal(t, 0, summary.AttendancePercentage)
}

func TestRecomputeSummaryUnknownBatch(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(1)
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, &mockNotify{}, 0)

	_, err := svc.RecomputeSummary(context.Background(), "t1", "missing", "s1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestRecomputeSummaryRequiresAssignmentOrAdmin(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(2)
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, &mockNotify{}, 0)

	_, err := svc.RecomputeSummary(context.Background(), "s1", "b1", "s1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized))
	assert.Empty(t, store.summaries)

	_, err = svc.RecomputeSummary(context.Background(), "ghost-actor", "b1", "s1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized))

	summary, err := svc.RecomputeSummary(context.Background(), "t1", "b1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalSessions)

	_, err = svc.RecomputeSummary(context.Background(), "admin", "b1", "s1")
	require.NoError(t, err)
}

func TestRecomputeSummaryZeroSessions(t *testing.T) {
	store, catalog, assignments, roles := attendanceFixture(0)
	svc := newAttendance(store, catalog, assignments, roles, &mockAudit{}, &mockNotify{}, 50)

	summary, err := svc.RecomputeSummary(context.Background(), "t1", "b1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalSessions)
	assert.Equal(t, 0, summary.AttendancePercentage)
	assert.Equal(t, 0, summary.EngagementScore)
}
