package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/edustack/campus-api/internal/models"
	appErrors "github.com/edustack/campus-api/pkg/errors"
	"github.com/edustack/campus-api/pkg/ratelimit"
)

type attendanceStore interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	Tally(ctx context.Context, batchID, userID string) (*models.AttendanceTally, error)
	UpsertSummary(ctx context.Context, summary *models.ParticipationSummary) error
	GetSummary(ctx context.Context, batchID, userID string) (*models.ParticipationSummary, error)
	ListSummariesByBatch(ctx context.Context, batchID string) ([]models.ParticipationSummary, error)
}

type sessionReader interface {
	FindBatchByID(ctx context.Context, id string) (*models.Batch, error)
	FindSessionByID(ctx context.Context, id string) (*models.Session, error)
	CountSessionsByBatch(ctx context.Context, batchID string) (int, error)
}

type assignmentChecker interface {
	Exists(ctx context.Context, moduleID, userID string) (bool, error)
}

type roleReader interface {
	FindRoles(ctx context.Context, userID string) ([]models.Role, error)
}

type attendanceNotifier interface {
	Notify(ctx context.Context, userID, notificationType, title, body string, metadata map[string]interface{})
}

// AttendanceService owns the attendance ledger and the participation
// summaries derived from it. Marking is idempotent per (session, user) with
// last-write-wins semantics, and every successful mark synchronously
// recomputes the student's summary from the ledger.
type AttendanceService struct {
	attendance  attendanceStore
	catalog     sessionReader
	assignments assignmentChecker
	roles       roleReader
	audit       auditWriter
	notifier    attendanceNotifier
	limiter     ratelimit.Limiter
	limit       rateLimitConfig
	metrics     *MetricsService
	threshold   int
	logger      *zap.Logger
}

// NewAttendanceService wires the participation engine. threshold is the
// attendance percentage below which students are alerted; zero or negative
// falls back to the default.
func NewAttendanceService(
	attendance attendanceStore,
	catalog sessionReader,
	assignments assignmentChecker,
	roles roleReader,
	audit auditWriter,
	notifier attendanceNotifier,
	limiter ratelimit.Limiter,
	maxPerWindow int,
	window time.Duration,
	threshold int,
	logger *zap.Logger,
) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 {
		threshold = models.DefaultLowAttendanceThreshold
	}
	return &AttendanceService{
		attendance:  attendance,
		catalog:     catalog,
		assignments: assignments,
		roles:       roles,
		audit:       audit,
		notifier:    notifier,
		limiter:     limiter,
		limit:       rateLimitConfig{max: maxPerWindow, window: window},
		threshold:   threshold,
		logger:      logger,
	}
}

// WithMetrics attaches operation counters.
func (s *AttendanceService) WithMetrics(m *MetricsService) *AttendanceService {
	s.metrics = m
	return s
}

// Mark records one attendance status and returns the refreshed summary.
// Authorized for teachers assigned to the session's module and for admin
// rank and above.
func (s *AttendanceService) Mark(ctx context.Context, actorID, sessionID, studentID string, status models.AttendanceStatus) (*models.ParticipationSummary, error) {
	if err := checkRateLimit(ctx, s.limiter, rateClassAttendance, actorID, s.limit, s.metrics, s.logger); err != nil {
		return nil, err
	}
	session, batch, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeMark(ctx, actorID, batch.ModuleID, false); err != nil {
		return nil, err
	}
	return s.markResolved(ctx, actorID, session, batch, studentID, status)
}

// BulkMarkPresent marks every listed student PRESENT for the session. Only a
// teacher assigned to the session's module may run it. Per-student failures
// are logged and skipped; the returned count is the number of marks applied.
func (s *AttendanceService) BulkMarkPresent(ctx context.Context, actorID, sessionID string, studentIDs []string) (int, error) {
	if err := checkRateLimit(ctx, s.limiter, rateClassAttendance, actorID, s.limit, s.metrics, s.logger); err != nil {
		return 0, err
	}
	session, batch, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if err := s.authorizeMark(ctx, actorID, batch.ModuleID, true); err != nil {
		return 0, err
	}

	marked := 0
	for _, studentID := range studentIDs {
		if _, err := s.markResolved(ctx, actorID, session, batch, studentID, models.AttendanceStatusPresent); err != nil {
			s.logger.Warn("bulk mark skipped student",
				zap.String("session_id", sessionID), zap.String("student_id", studentID), zap.Error(err))
			continue
		}
		marked++
	}
	return marked, nil
}

func (s *AttendanceService) resolveSession(ctx context.Context, sessionID string) (*models.Session, *models.Batch, error) {
	session, err := s.catalog.FindSessionByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	batch, err := s.catalog.FindBatchByID(ctx, session.BatchID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return session, batch, nil
}

// authorizeMark checks the module assignment. Admin rank bypasses it except
// in teacherOnly mode, where only the assignment counts.
func (s *AttendanceService) authorizeMark(ctx context.Context, actorID, moduleID string, teacherOnly bool) error {
	assigned, err := s.assignments.Exists(ctx, moduleID, actorID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
	}
	if assigned {
		return nil
	}
	if !teacherOnly {
		roles, err := s.roles.FindRoles(ctx, actorID)
		if err != nil && err != sql.ErrNoRows {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor roles")
		}
		if models.HasMinRank(roles, models.RoleAdmin) {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrUnauthorized, "not authorized to mark attendance for this session")
}

func (s *AttendanceService) markResolved(ctx context.Context, actorID string, session *models.Session, batch *models.Batch, studentID string, status models.AttendanceStatus) (*models.ParticipationSummary, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid attendance status %q", status))
	}

	record := &models.AttendanceRecord{
		SessionID: session.ID,
		UserID:    studentID,
		Status:    status,
		MarkedBy:  actorID,
	}
	if _, err := s.attendance.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	recordAudit(ctx, s.audit, s.metrics, s.logger, &models.AuditLogEntry{
		ActorID:     actorID,
		ActorRole:   string(models.RoleTeacher),
		Action:      models.AuditActionMarkAttendance,
		EntityType:  "session",
		EntityID:    session.ID,
		Description: fmt.Sprintf("marked %s %s", studentID, status),
	})

	// The mark itself is durable at this point. A recompute failure is
	// logged loudly rather than rolling back the primary write.
	summary, err := s.recompute(ctx, batch.ID, studentID)
	if err != nil {
		s.logger.Error("failed to recompute participation summary",
			zap.String("batch_id", batch.ID), zap.String("user_id", studentID), zap.Error(err))
		return nil, nil
	}

	// A zero percentage means no session attended yet (or none held); alerting
	// on it would be noise, so the band is strictly between 0 and the threshold.
	if summary.AttendancePercentage > 0 && summary.AttendancePercentage < s.threshold {
		s.notifier.Notify(ctx, studentID, models.NotificationTypeAttendanceBelowThreshold,
			"Attendance below threshold",
			fmt.Sprintf("Your attendance in %s dropped to %d%%.", batch.Name, summary.AttendancePercentage),
			map[string]interface{}{
				"batch_id":              batch.ID,
				"attendance_percentage": summary.AttendancePercentage,
				"threshold":             s.threshold,
			})
	}
	return summary, nil
}

// recompute derives the summary from scratch: the session count and the
// ledger tally are the only inputs, so a replayed mark converges to the same
// result.
func (s *AttendanceService) recompute(ctx context.Context, batchID, userID string) (*models.ParticipationSummary, error) {
	total, err := s.catalog.CountSessionsByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	tally, err := s.attendance.Tally(ctx, batchID, userID)
	if err != nil {
		return nil, err
	}

	summary := &models.ParticipationSummary{
		BatchID:          batchID,
		UserID:           userID,
		TotalSessions:    total,
		SessionsAttended: tally.Present,
		LastAttendedAt:   tally.LastAttendedAt,
	}
	if total > 0 {
		summary.AttendancePercentage = int(math.Round(float64(tally.Present) / float64(total) * 100))
		// Late arrivals count half toward engagement.
		weighted := float64(tally.Present) + 0.5*float64(tally.Late)
		summary.EngagementScore = int(math.Round(weighted / float64(total) * 100))
		if summary.EngagementScore > 100 {
			summary.EngagementScore = 100
		}
	}

	if err := s.attendance.UpsertSummary(ctx, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// RecomputeSummary rebuilds one student's summary on demand. The same rule
// as Mark applies: the actor must be assigned to the batch's module or hold
// admin rank, regardless of which entry point the call arrived through.
func (s *AttendanceService) RecomputeSummary(ctx context.Context, actorID, batchID, userID string) (*models.ParticipationSummary, error) {
	batch, err := s.catalog.FindBatchByID(ctx, batchID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if err := s.authorizeMark(ctx, actorID, batch.ModuleID, false); err != nil {
		return nil, err
	}
	return s.deriveSummary(ctx, batchID, userID)
}

// deriveSummary materialises a summary from the ledger without an
// authorization check; the read path uses it for first-access derivation.
func (s *AttendanceService) deriveSummary(ctx context.Context, batchID, userID string) (*models.ParticipationSummary, error) {
	summary, err := s.recompute(ctx, batchID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recompute summary")
	}
	return summary, nil
}

// Summary returns the stored summary, deriving it on first read.
func (s *AttendanceService) Summary(ctx context.Context, batchID, userID string) (*models.ParticipationSummary, error) {
	summary, err := s.attendance.GetSummary(ctx, batchID, userID)
	if err == nil {
		return summary, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load summary")
	}
	if _, err := s.catalog.FindBatchByID(ctx, batchID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return s.deriveSummary(ctx, batchID, userID)
}

// BatchSummaries returns every stored summary for a batch, for reporting.
func (s *AttendanceService) BatchSummaries(ctx context.Context, batchID string) ([]models.ParticipationSummary, error) {
	if _, err := s.catalog.FindBatchByID(ctx, batchID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	summaries, err := s.attendance.ListSummariesByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list summaries")
	}
	return summaries, nil
}
