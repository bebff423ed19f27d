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
	"github.com/edustack/campus-api/pkg/ratelimit"
)

type mockEnrollments struct {
	rows     map[string]*models.BatchEnrollment
	whatsapp map[string]bool
}

func enrollKey(batchID, userID string) string { return batchID + "/" + userID }

func (m *mockEnrollments) CreateIdempotent(ctx context.Context, enrollment *models.BatchEnrollment) (bool, error) {
	if m.rows == nil {
		m.rows = make(map[string]*models.BatchEnrollment)
	}
	key := enrollKey(enrollment.BatchID, enrollment.UserID)
	if _, ok := m.rows[key]; ok {
		return false, nil
	}
	m.rows[key] = enrollment
	return true, nil
}

func (m *mockEnrollments) FindByBatchAndUser(ctx context.Context, batchID, userID string) (*models.BatchEnrollment, error) {
	if e, ok := m.rows[enrollKey(batchID, userID)]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollments) SetJoinedWhatsApp(ctx context.Context, batchID, userID string, joined bool) error {
	if _, ok := m.rows[enrollKey(batchID, userID)]; !ok {
		return sql.ErrNoRows
	}
	if m.whatsapp == nil {
		m.whatsapp = make(map[string]bool)
	}
	m.whatsapp[enrollKey(batchID, userID)] = joined
	return nil
}

func (m *mockEnrollments) ListByBatch(ctx context.Context, batchID string) ([]models.BatchEnrollment, error) {
	var list []models.BatchEnrollment
	for _, e := range m.rows {
		if e.BatchID == batchID {
			list = append(list, *e)
		}
	}
	return list, nil
}

type mockBatches struct {
	batches map[string]*models.Batch
}

func (m *mockBatches) FindBatchByID(ctx context.Context, id string) (*models.Batch, error) {
	if b, ok := m.batches[id]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

const testBatchID = "5f6b2c1a-0c3d-4e8f-9a7b-1d2e3f4a5b6c"

func openBatch() *mockBatches {
	return &mockBatches{batches: map[string]*models.Batch{
		testBatchID: {ID: testBatchID, ModuleID: "m1", Name: "Cohort 7"},
	}}
}

func newEnrollment(enrollments *mockEnrollments, batches *mockBatches, audit *mockAudit, notify *mockNotify, limiter ratelimit.Limiter, max int) *EnrollmentService {
	return NewEnrollmentService(enrollments, batches, audit, notify, limiter, max, time.Minute, zap.NewNop())
}

func TestEnrollFirstAttemptFansOut(t *testing.T) {
	enrollments := &mockEnrollments{}
	audit := &mockAudit{}
	notify := &mockNotify{}
	svc := newEnrollment(enrollments, openBatch(), audit, notify, nil, 0)

	result, err := svc.Enroll(context.Background(), "s1", &EnrollRequest{BatchID: testBatchID})
	require.NoError(t, err)
	assert.False(t, result.AlreadyEnrolled)
	require.NotNil(t, result.Enrollment)
	assert.Equal(t, models.EnrollmentStatusActive, result.Enrollment.Status)

	// Student confirmation, module teachers, admins.
	require.Len(t, notify.sent, 3)
	assert.Equal(t, models.NotificationTypeEnrollmentConfirmed, notify.sent[0].Type)
	assert.Equal(t, "s1", notify.sent[0].UserID)
	assert.Equal(t, "m1", notify.sent[1].ModuleID)
	assert.Equal(t, models.AuditActionEnroll, audit.lastAction())
}

func TestEnrollReplayHasNoSideEffects(t *testing.T) {
	enrollments := &mockEnrollments{}
	audit := &mockAudit{}
	notify := &mockNotify{}
	svc := newEnrollment(enrollments, openBatch(), audit, notify, nil, 0)

	first, err := svc.Enroll(context.Background(), "s1", &EnrollRequest{BatchID: testBatchID})
	require.NoError(t, err)

	second, err := svc.Enroll(context.Background(), "s1", &EnrollRequest{BatchID: testBatchID})
	require.NoError(t, err)
	assert.True(t, second.AlreadyEnrolled)
	assert.Equal(t, first.Enrollment.ID, second.Enrollment.ID)
	assert.Len(t, notify.sent, 3)
	assert.Len(t, audit.entries, 1)
}

func TestEnrollArchivedBatchNotFound(t *testing.T) {
	batches := &mockBatches{batches: map[string]*models.Batch{
		testBatchID: {ID: testBatchID, Archived: true},
	}}
	svc := newEnrollment(&mockEnrollments{}, batches, &mockAudit{}, &mockNotify{}, nil, 0)

	_, err := svc.Enroll(context.Background(), "s1", &EnrollRequest{BatchID: testBatchID})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestEnrollRateLimited(t *testing.T) {
	svc := newEnrollment(&mockEnrollments{}, openBatch(), &mockAudit{}, &mockNotify{}, ratelimit.NewMemoryLimiter(), 1)

	_, err := svc.Enroll(context.Background(), "s1", &EnrollRequest{BatchID: testBatchID})
	require.NoError(t, err)
	_, err = svc.Enroll(context.Background(), "s1", &EnrollRequest{BatchID: testBatchID})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrRateLimited))
}

func TestMarkJoinedWhatsApp(t *testing.T) {
	enrollments := &mockEnrollments{}
	svc := newEnrollment(enrollments, openBatch(), &mockAudit{}, &mockNotify{}, nil, 0)

	_, err := svc.Enroll(context.Background(), "s1", &EnrollRequest{BatchID: testBatchID})
	require.NoError(t, err)

	require.NoError(t, svc.MarkJoinedWhatsApp(context.Background(), "s1", testBatchID, true))
	assert.True(t, enrollments.whatsapp[enrollKey(testBatchID, "s1")])

	err = svc.MarkJoinedWhatsApp(context.Background(), "s2", testBatchID, true)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}
