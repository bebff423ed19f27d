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
	"github.com/edustack/campus-api/pkg/jobs"
)

func jobsConfigForTest() jobs.QueueConfig {
	return jobs.QueueConfig{Workers: 1, BufferSize: 4, MaxRetries: 1, RetryDelay: 10 * time.Millisecond}
}

type mockNotificationStore struct {
	created  []*models.Notification
	read     map[string]bool
	listErr  error
	rowTotal int
}

func (m *mockNotificationStore) Create(ctx context.Context, notification *models.Notification) error {
	m.created = append(m.created, notification)
	return nil
}

func (m *mockNotificationStore) MarkRead(ctx context.Context, id, userID string) error {
	if m.read == nil {
		m.read = make(map[string]bool)
	}
	for _, n := range m.created {
		if n.ID == id && n.UserID == userID && !m.read[id] {
			m.read[id] = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockNotificationStore) ListByUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var list []models.Notification
	for _, n := range m.created {
		if n.UserID == filter.UserID {
			list = append(list, *n)
		}
	}
	return list, m.rowTotal, nil
}

func newNotifications(store *mockNotificationStore, users *mockRoleStore, assignments *mockAssignments) *NotificationService {
	return NewNotificationService(store, users, assignments, zap.NewNop())
}

func TestNotifyPersistsSynchronouslyWithoutQueue(t *testing.T) {
	store := &mockNotificationStore{}
	svc := newNotifications(store, &mockRoleStore{}, &mockAssignments{})

	svc.Notify(context.Background(), "u1", models.NotificationTypeEnrollmentConfirmed,
		"Enrollment confirmed", "You are in.", map[string]interface{}{"batch_id": "b1"})

	require.Len(t, store.created, 1)
	assert.Equal(t, "u1", store.created[0].UserID)
	assert.NotEmpty(t, store.created[0].ID)
	assert.Contains(t, string(store.created[0].Metadata), "b1")
}

func TestNotifyAdminsResolvesRecipientsAtCallTime(t *testing.T) {
	store := &mockNotificationStore{}
	users := &mockRoleStore{adminIDs: []string{"a1", "a2"}}
	svc := newNotifications(store, users, &mockAssignments{})

	svc.NotifyAdmins(context.Background(), models.NotificationTypeNewEnrollment, "New enrollment", "x", nil)
	require.Len(t, store.created, 2)

	users.adminIDs = []string{"a1"}
	svc.NotifyAdmins(context.Background(), models.NotificationTypeNewEnrollment, "New enrollment", "x", nil)
	assert.Len(t, store.created, 3)
}

func TestNotifyModuleTeachersFansOut(t *testing.T) {
	store := &mockNotificationStore{}
	assignments := &mockAssignments{teacherIDs: []string{"t1", "t2"}}
	svc := newNotifications(store, &mockRoleStore{}, assignments)

	svc.NotifyModuleTeachers(context.Background(), "m1", models.NotificationTypeNewEnrollment, "New enrollment", "x", nil)
	require.Len(t, store.created, 2)
	assert.Equal(t, "t1", store.created[0].UserID)
	assert.Equal(t, "t2", store.created[1].UserID)
}

func TestNotifyQueueDeliversAsync(t *testing.T) {
	store := &mockNotificationStore{}
	svc := newNotifications(store, &mockRoleStore{}, &mockAssignments{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue := svc.StartQueue(ctx, jobsConfigForTest())
	defer queue.Stop()

	svc.Notify(context.Background(), "u1", models.NotificationTypeModuleAssignment, "Assigned", "x", nil)

	require.Eventually(t, func() bool { return len(store.created) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "u1", store.created[0].UserID)
}

func TestMarkReadSingleTransition(t *testing.T) {
	store := &mockNotificationStore{}
	svc := newNotifications(store, &mockRoleStore{}, &mockAssignments{})
	svc.Notify(context.Background(), "u1", models.NotificationTypeModuleAssignment, "Assigned", "x", nil)
	id := store.created[0].ID

	require.NoError(t, svc.MarkRead(context.Background(), id, "u1"))

	err := svc.MarkRead(context.Background(), id, "u1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))

	err = svc.MarkRead(context.Background(), id, "someone-else")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestInboxDefaultsPagination(t *testing.T) {
	store := &mockNotificationStore{rowTotal: 1}
	svc := newNotifications(store, &mockRoleStore{}, &mockAssignments{})
	svc.Notify(context.Background(), "u1", models.NotificationTypeModuleAssignment, "Assigned", "x", nil)

	list, pagination, err := svc.Inbox(context.Background(), "u1", false, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
