package service

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edustack/campus-api/internal/models"
	appErrors "github.com/edustack/campus-api/pkg/errors"
	"github.com/edustack/campus-api/pkg/jobs"
)

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	MarkRead(ctx context.Context, id, userID string) error
	ListByUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
}

type recipientRoleResolver interface {
	ListIDsByAnyRole(ctx context.Context, roles ...models.Role) ([]string, error)
}

type moduleTeacherResolver interface {
	ListTeacherIDsByModule(ctx context.Context, moduleID string) ([]string, error)
}

// NotificationService fans out in-app notifications. Dispatch is
// fire-and-forget relative to the mutation that triggered it: failures are
// logged, never returned to the mutating caller. Recipient sets are resolved
// at call time, so role and assignment changes are reflected on the next
// fan-out without separate bookkeeping.
type NotificationService struct {
	store       notificationStore
	users       recipientRoleResolver
	assignments moduleTeacherResolver
	queue       *jobs.Queue
	logger      *zap.Logger
}

// NewNotificationService constructs the dispatcher.
func NewNotificationService(store notificationStore, users recipientRoleResolver, assignments moduleTeacherResolver, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{store: store, users: users, assignments: assignments, logger: logger}
}

// StartQueue attaches an asynchronous delivery queue. Without one, dispatch
// persists synchronously; either way the caller contract is unchanged.
func (s *NotificationService) StartQueue(ctx context.Context, cfg jobs.QueueConfig) *jobs.Queue {
	cfg.Logger = s.logger
	s.queue = jobs.NewQueue("notifications", s.deliver, cfg)
	s.queue.Start(ctx)
	return s.queue
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(*models.Notification)
	if !ok {
		s.logger.Error("notification job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.store.Create(ctx, notification)
}

// Notify sends one write-once notification to a single recipient.
func (s *NotificationService) Notify(ctx context.Context, userID, notificationType, title, body string, metadata map[string]interface{}) {
	payload, err := json.Marshal(metadata)
	if err != nil {
		s.logger.Warn("failed to encode notification metadata", zap.Error(err))
		payload = nil
	}
	notification := &models.Notification{
		ID:       uuid.NewString(),
		UserID:   userID,
		Type:     notificationType,
		Title:    title,
		Body:     body,
		Metadata: payload,
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(jobs.Job{ID: notification.ID, Type: notificationType, Payload: notification}); err == nil {
			return
		}
		// Queue unavailable; fall through to the synchronous path.
	}
	if err := s.store.Create(ctx, notification); err != nil {
		s.logger.Warn("failed to persist notification",
			zap.String("user_id", userID), zap.String("type", notificationType), zap.Error(err))
	}
}

// NotifyAdmins fans out to every account currently holding admin or director.
func (s *NotificationService) NotifyAdmins(ctx context.Context, notificationType, title, body string, metadata map[string]interface{}) {
	ids, err := s.users.ListIDsByAnyRole(ctx, models.RoleAdmin, models.RoleDirector)
	if err != nil {
		s.logger.Warn("failed to resolve admin recipients", zap.Error(err))
		return
	}
	for _, id := range ids {
		s.Notify(ctx, id, notificationType, title, body, metadata)
	}
}

// NotifyModuleTeachers fans out to the module's currently assigned teachers.
func (s *NotificationService) NotifyModuleTeachers(ctx context.Context, moduleID, notificationType, title, body string, metadata map[string]interface{}) {
	ids, err := s.assignments.ListTeacherIDsByModule(ctx, moduleID)
	if err != nil {
		s.logger.Warn("failed to resolve module teacher recipients",
			zap.String("module_id", moduleID), zap.Error(err))
		return
	}
	for _, id := range ids {
		s.Notify(ctx, id, notificationType, title, body, metadata)
	}
}

// Inbox returns the user's notifications with pagination.
func (s *NotificationService) Inbox(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	filter := models.NotificationFilter{UserID: userID, UnreadOnly: unreadOnly, Page: page, PageSize: pageSize}
	notifications, total, err := s.store.ListByUser(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	return notifications, pagination, nil
}

// MarkRead performs the single read transition on the caller's notification.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.store.MarkRead(ctx, id, userID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found or already read")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}
