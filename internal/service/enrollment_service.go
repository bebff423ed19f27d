package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edustack/campus-api/internal/models"
	appErrors "github.com/edustack/campus-api/pkg/errors"
	"github.com/edustack/campus-api/pkg/ratelimit"
)

type enrollmentStore interface {
	CreateIdempotent(ctx context.Context, enrollment *models.BatchEnrollment) (bool, error)
	FindByBatchAndUser(ctx context.Context, batchID, userID string) (*models.BatchEnrollment, error)
	SetJoinedWhatsApp(ctx context.Context, batchID, userID string, joined bool) error
	ListByBatch(ctx context.Context, batchID string) ([]models.BatchEnrollment, error)
}

type batchReader interface {
	FindBatchByID(ctx context.Context, id string) (*models.Batch, error)
}

type enrollmentNotifier interface {
	Notify(ctx context.Context, userID, notificationType, title, body string, metadata map[string]interface{})
	NotifyAdmins(ctx context.Context, notificationType, title, body string, metadata map[string]interface{})
	NotifyModuleTeachers(ctx context.Context, moduleID, notificationType, title, body string, metadata map[string]interface{})
}

// EnrollRequest carries the optional contact details captured at enrollment.
type EnrollRequest struct {
	BatchID      string  `json:"batch_id" validate:"required,uuid"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,min=6,max=20"`
	GuardianName *string `json:"guardian_name,omitempty" validate:"omitempty,min=2,max=100"`
}

// EnrollResult reports the outcome of an enrollment attempt. AlreadyEnrolled
// distinguishes a replayed request from a first-time one; both succeed.
type EnrollResult struct {
	Enrollment      *models.BatchEnrollment `json:"enrollment"`
	AlreadyEnrolled bool                    `json:"already_enrolled"`
}

// EnrollmentService handles batch membership. Enrollment is idempotent on the
// (batch, user) pair: replays return the existing row and skip every side
// effect.
type EnrollmentService struct {
	enrollments enrollmentStore
	batches     batchReader
	audit       auditWriter
	notifier    enrollmentNotifier
	limiter     ratelimit.Limiter
	limit       rateLimitConfig
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService wires the enrollment flow.
func NewEnrollmentService(
	enrollments enrollmentStore,
	batches batchReader,
	audit auditWriter,
	notifier enrollmentNotifier,
	limiter ratelimit.Limiter,
	maxPerWindow int,
	window time.Duration,
	logger *zap.Logger,
) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		batches:     batches,
		audit:       audit,
		notifier:    notifier,
		limiter:     limiter,
		limit:       rateLimitConfig{max: maxPerWindow, window: window},
		validator:   validator.New(),
		logger:      logger,
	}
}

// WithMetrics attaches operation counters.
func (s *EnrollmentService) WithMetrics(m *MetricsService) *EnrollmentService {
	s.metrics = m
	return s
}

// Enroll adds the caller to a batch. Replays are reported, not rejected, and
// trigger no notifications or audit entries.
func (s *EnrollmentService) Enroll(ctx context.Context, actorID string, req *EnrollRequest) (*EnrollResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment request")
	}
	if err := checkRateLimit(ctx, s.limiter, rateClassEnroll, actorID, s.limit, s.metrics, s.logger); err != nil {
		return nil, err
	}

	batch, err := s.batches.FindBatchByID(ctx, req.BatchID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if batch.Archived {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch is no longer open")
	}

	enrollment := &models.BatchEnrollment{
		ID:           uuid.NewString(),
		BatchID:      req.BatchID,
		UserID:       actorID,
		Status:       models.EnrollmentStatusActive,
		Phone:        req.Phone,
		GuardianName: req.GuardianName,
	}
	inserted, err := s.enrollments.CreateIdempotent(ctx, enrollment)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
	}
	if !inserted {
		existing, err := s.enrollments.FindByBatchAndUser(ctx, req.BatchID, actorID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		return &EnrollResult{Enrollment: existing, AlreadyEnrolled: true}, nil
	}

	metadata := map[string]interface{}{"batch_id": batch.ID, "batch_name": batch.Name}
	s.notifier.Notify(ctx, actorID, models.NotificationTypeEnrollmentConfirmed,
		"Enrollment confirmed",
		fmt.Sprintf("You are enrolled in %s.", batch.Name), metadata)
	s.notifier.NotifyModuleTeachers(ctx, batch.ModuleID, models.NotificationTypeNewEnrollment,
		"New enrollment",
		fmt.Sprintf("A new learner joined %s.", batch.Name), metadata)
	s.notifier.NotifyAdmins(ctx, models.NotificationTypeNewEnrollment,
		"New enrollment",
		fmt.Sprintf("A new learner joined %s.", batch.Name), metadata)

	recordAudit(ctx, s.audit, s.metrics, s.logger, &models.AuditLogEntry{
		ActorID:     actorID,
		ActorRole:   string(models.RoleStudent),
		Action:      models.AuditActionEnroll,
		EntityType:  "batch",
		EntityID:    batch.ID,
		Description: fmt.Sprintf("enrolled in batch %s", batch.Name),
	})
	return &EnrollResult{Enrollment: enrollment}, nil
}

// MarkJoinedWhatsApp flips the caller's group-membership flag on an existing
// enrollment.
func (s *EnrollmentService) MarkJoinedWhatsApp(ctx context.Context, actorID, batchID string, joined bool) error {
	if err := s.enrollments.SetJoinedWhatsApp(ctx, batchID, actorID, joined); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	return nil
}

// ListByBatch returns a batch roster.
func (s *EnrollmentService) ListByBatch(ctx context.Context, batchID string) ([]models.BatchEnrollment, error) {
	enrollments, err := s.enrollments.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}
