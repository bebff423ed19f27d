package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edustack/campus-api/internal/models"
	"github.com/edustack/campus-api/internal/repository"
	appErrors "github.com/edustack/campus-api/pkg/errors"
	"github.com/edustack/campus-api/pkg/ratelimit"
)

const (
	rateClassGovernance = "governance"
	rateClassEnroll     = "enroll"
	rateClassAttendance = "attendance"
)

type governanceUserStore interface {
	FindByID(ctx context.Context, id string) (*models.UserAccount, error)
	FindRoles(ctx context.Context, userID string) ([]models.Role, error)
	ReplaceRoles(ctx context.Context, userID string, roles []models.Role) error
	GrantRoleAndClearPending(ctx context.Context, userID string, role models.Role) error
	SetPendingRoleRequest(ctx context.Context, userID string, role models.Role) error
	ClearPendingRoleRequest(ctx context.Context, userID string) error
	CountDirectors(ctx context.Context) (int, error)
}

type teacherAssignmentStore interface {
	Create(ctx context.Context, assignment *models.ModuleTeacherAssignment) error
	Delete(ctx context.Context, moduleID, userID string) error
	CountByModule(ctx context.Context, moduleID string) (int, error)
}

type moduleReader interface {
	FindModuleByID(ctx context.Context, id string) (*models.Module, error)
}

type auditWriter interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
}

type governanceNotifier interface {
	Notify(ctx context.Context, userID, notificationType, title, body string, metadata map[string]interface{})
}

type rateLimitConfig struct {
	max    int
	window time.Duration
}

// GovernanceService enforces the role and assignment invariants. Every
// authorization decision is re-derived from the durable role store on each
// call; token claims are treated as identity only, never as authority.
type GovernanceService struct {
	users       governanceUserStore
	assignments teacherAssignmentStore
	modules     moduleReader
	audit       auditWriter
	notifier    governanceNotifier
	limiter     ratelimit.Limiter
	limit       rateLimitConfig
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewGovernanceService wires the governance engine.
func NewGovernanceService(
	users governanceUserStore,
	assignments teacherAssignmentStore,
	modules moduleReader,
	audit auditWriter,
	notifier governanceNotifier,
	limiter ratelimit.Limiter,
	maxPerWindow int,
	window time.Duration,
	logger *zap.Logger,
) *GovernanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GovernanceService{
		users:       users,
		assignments: assignments,
		modules:     modules,
		audit:       audit,
		notifier:    notifier,
		limiter:     limiter,
		limit:       rateLimitConfig{max: maxPerWindow, window: window},
		logger:      logger,
	}
}

// WithMetrics attaches operation counters. Safe to skip for binaries that do
// not expose a scrape endpoint.
func (s *GovernanceService) WithMetrics(m *MetricsService) *GovernanceService {
	s.metrics = m
	return s
}

func (s *GovernanceService) allow(ctx context.Context, actorID string) error {
	return checkRateLimit(ctx, s.limiter, rateClassGovernance, actorID, s.limit, s.metrics, s.logger)
}

// checkRateLimit applies the per-actor budget for one operation class. Limiter
// backend failures fail open: the operation proceeds with a warning log.
func checkRateLimit(ctx context.Context, limiter ratelimit.Limiter, class, actorID string, limit rateLimitConfig, metrics *MetricsService, logger *zap.Logger) error {
	if limiter == nil || limit.max <= 0 {
		return nil
	}
	ok, err := limiter.Allow(ctx, class+":"+actorID, limit.max, limit.window)
	if err != nil {
		logger.Warn("rate limiter unavailable, allowing request",
			zap.String("class", class), zap.String("actor_id", actorID), zap.Error(err))
		return nil
	}
	if !ok {
		metrics.RecordRateLimited(class)
		return appErrors.Clone(appErrors.ErrRateLimited, fmt.Sprintf("rate limit exceeded for %s operations", class))
	}
	return nil
}

func (s *GovernanceService) actorRoles(ctx context.Context, actorID string) ([]models.Role, error) {
	roles, err := s.users.FindRoles(ctx, actorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "actor account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor roles")
	}
	return roles, nil
}

// recordAudit appends best-effort; a failed append never fails the operation.
// Doubles as the mutation counter since every state change lands here.
func recordAudit(ctx context.Context, audit auditWriter, metrics *MetricsService, logger *zap.Logger, entry *models.AuditLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	outcome := "ok"
	if entry.Action == models.AuditActionFailedAuthorization {
		outcome = "denied"
	}
	metrics.RecordMutation(entry.Action, outcome)
	if err := audit.Append(ctx, entry); err != nil {
		logger.Warn("failed to append audit log",
			zap.String("action", entry.Action), zap.String("actor_id", entry.ActorID), zap.Error(err))
	}
}

// ApproveRoleRequest grants the target's pending role. Teacher grants need an
// admin or director actor; admin grants need a director.
func (s *GovernanceService) ApproveRoleRequest(ctx context.Context, actorID, targetUserID string, role models.Role) error {
	if err := s.allow(ctx, actorID); err != nil {
		return err
	}

	var required models.Role
	switch role {
	case models.RoleTeacher:
		required = models.RoleAdmin
	case models.RoleAdmin:
		required = models.RoleDirector
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("role %s cannot be granted through requests", role))
	}

	actorRoles, err := s.actorRoles(ctx, actorID)
	if err != nil {
		return err
	}
	if !models.HasMinRank(actorRoles, required) {
		return appErrors.Clone(appErrors.ErrUnauthorized, fmt.Sprintf("approving a %s request requires %s rank", role, required))
	}

	target, err := s.users.FindByID(ctx, targetUserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if target.PendingRoleRequest == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "user has no pending role request")
	}
	if models.Role(*target.PendingRoleRequest) != role {
		return appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("pending request is for %s, not %s", *target.PendingRoleRequest, role))
	}

	if err := s.users.GrantRoleAndClearPending(ctx, targetUserID, role); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant role")
	}

	recordAudit(ctx, s.audit, s.metrics, s.logger, &models.AuditLogEntry{
		ActorID:     actorID,
		ActorRole:   string(models.HighestRole(actorRoles)),
		Action:      models.AuditActionApproveRoleRequest,
		EntityType:  "user",
		EntityID:    targetUserID,
		Description: fmt.Sprintf("granted role %s", role),
	})
	return nil
}

// RejectRoleRequest clears the target's pending request unconditionally.
// The clear is idempotent; denied attempts are themselves audit-logged.
func (s *GovernanceService) RejectRoleRequest(ctx context.Context, actorID, targetUserID string) error {
	if err := s.allow(ctx, actorID); err != nil {
		return err
	}

	actorRoles, err := s.actorRoles(ctx, actorID)
	if err != nil {
		return err
	}
	if !models.HasMinRank(actorRoles, models.RoleAdmin) {
		recordAudit(ctx, s.audit, s.metrics, s.logger, &models.AuditLogEntry{
			ActorID:     actorID,
			ActorRole:   string(models.HighestRole(actorRoles)),
			Action:      models.AuditActionFailedAuthorization,
			EntityType:  "user",
			EntityID:    targetUserID,
			Description: "denied attempt to reject a role request",
		})
		return appErrors.Clone(appErrors.ErrUnauthorized, "rejecting a role request requires ADMIN rank")
	}

	if err := s.users.ClearPendingRoleRequest(ctx, targetUserID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear role request")
	}

	recordAudit(ctx, s.audit, s.metrics, s.logger, &models.AuditLogEntry{
		ActorID:     actorID,
		ActorRole:   string(models.HighestRole(actorRoles)),
		Action:      models.AuditActionRejectRoleRequest,
		EntityType:  "user",
		EntityID:    targetUserID,
		Description: "rejected pending role request",
	})
	return nil
}

// RequestRole records the caller's pending elevation request. At most one
// request is pending per account.
func (s *GovernanceService) RequestRole(ctx context.Context, actorID string, role models.Role) error {
	if err := s.allow(ctx, actorID); err != nil {
		return err
	}
	if role != models.RoleTeacher && role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("role %s cannot be requested", role))
	}

	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrUnauthorized, "actor account not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if models.HasRole(actor.RoleSet(), role) {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("account already holds role %s", role))
	}
	if actor.PendingRoleRequest != nil && models.Role(*actor.PendingRoleRequest) != role {
		return appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("a request for %s is already pending", *actor.PendingRoleRequest))
	}

	if err := s.users.SetPendingRoleRequest(ctx, actorID, role); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record role request")
	}

	recordAudit(ctx, s.audit, s.metrics, s.logger, &models.AuditLogEntry{
		ActorID:     actorID,
		ActorRole:   string(models.HighestRole(actor.RoleSet())),
		Action:      models.AuditActionRequestRole,
		EntityType:  "user",
		EntityID:    actorID,
		Description: fmt.Sprintf("requested role %s", role),
	})
	return nil
}

// AssignTeacher attaches a teacher to a module and notifies them. The
// (module, teacher) pair is unique; a repeat assignment is a conflict.
func (s *GovernanceService) AssignTeacher(ctx context.Context, actorID, moduleID, teacherID string) error {
	if err := s.allow(ctx, actorID); err != nil {
		return err
	}

	actorRoles, err := s.actorRoles(ctx, actorID)
	if err != nil {
		return err
	}
	if !models.HasMinRank(actorRoles, models.RoleAdmin) {
		return appErrors.Clone(appErrors.ErrUnauthorized, "assigning teachers requires ADMIN rank")
	}

	module, err := s.modules.FindModuleByID(ctx, moduleID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	if module.Archived {
		return appErrors.Clone(appErrors.ErrNotFound, "module is archived")
	}

	teacherRoles, err := s.users.FindRoles(ctx, teacherID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user roles")
	}
	if !models.HasRole(teacherRoles, models.RoleTeacher) {
		return appErrors.Clone(appErrors.ErrValidation, "user does not hold the TEACHER role")
	}

	assignment := &models.ModuleTeacherAssignment{
		ID:       uuid.NewString(),
		ModuleID: moduleID,
		UserID:   teacherID,
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		if err == repository.ErrDuplicate {
			return appErrors.Clone(appErrors.ErrConflict, "teacher is already assigned to this module")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	s.notifier.Notify(ctx, teacherID, models.NotificationTypeModuleAssignment,
		"New module assignment",
		fmt.Sprintf("You have been assigned to teach %s.", module.Name),
		map[string]interface{}{"module_id": moduleID})

	recordAudit(ctx, s.audit, s.metrics, s.logger, &models.AuditLogEntry{
		ActorID:     actorID,
		ActorRole:   string(models.HighestRole(actorRoles)),
		Action:      models.AuditActionAssignTeacher,
		EntityType:  "module",
		EntityID:    moduleID,
		Description: fmt.Sprintf("assigned teacher %s", teacherID),
	})
	return nil
}

// UnassignTeacher removes an assignment, refusing to strip a module of its
// last teacher. The count is read fresh from the store on every call.
func (s *GovernanceService) UnassignTeacher(ctx context.Context, actorID, moduleID, teacherID string) error {
	if err := s.allow(ctx, actorID); err != nil {
		return err
	}

	actorRoles, err := s.actorRoles(ctx, actorID)
	if err != nil {
		return err
	}
	if !models.HasMinRank(actorRoles, models.RoleAdmin) {
		return appErrors.Clone(appErrors.ErrUnauthorized, "unassigning teachers requires ADMIN rank")
	}

	count, err := s.assignments.CountByModule(ctx, moduleID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assignments")
	}
	if count <= 1 {
		return appErrors.Clone(appErrors.ErrInvariantViolation, "cannot remove the last teacher assigned to a module")
	}

	if err := s.assignments.Delete(ctx, moduleID, teacherID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}

	recordAudit(ctx, s.audit, s.metrics, s.logger, &models.AuditLogEntry{
		ActorID:     actorID,
		ActorRole:   string(models.HighestRole(actorRoles)),
		Action:      models.AuditActionUnassignTeacher,
		EntityType:  "module",
		EntityID:    moduleID,
		Description: fmt.Sprintf("unassigned teacher %s", teacherID),
	})
	return nil
}

// UpdateUserRoles replaces the target's role set atomically. Self-edits are
// refused, the new set must stay non-empty after normalisation, grants of
// admin or director and removal of director need a director actor, and the
// last active director can never lose the role.
func (s *GovernanceService) UpdateUserRoles(ctx context.Context, actorID, targetUserID string, newRoles []models.Role) error {
	if err := s.allow(ctx, actorID); err != nil {
		return err
	}
	if actorID == targetUserID {
		return appErrors.Clone(appErrors.ErrUnauthorized, "cannot modify your own roles")
	}

	normalized := models.NormalizeRoles(newRoles)
	if len(normalized) == 0 {
		return appErrors.Clone(appErrors.ErrInvariantViolation, "role set cannot be empty")
	}

	actorRoles, err := s.actorRoles(ctx, actorID)
	if err != nil {
		return err
	}

	target, err := s.users.FindByID(ctx, targetUserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	targetRoles := target.RoleSet()

	required := models.RoleAdmin
	removesDirector := models.HasRole(targetRoles, models.RoleDirector) && !models.HasRole(normalized, models.RoleDirector)
	if models.HasRole(normalized, models.RoleAdmin) || models.HasRole(normalized, models.RoleDirector) || removesDirector {
		required = models.RoleDirector
	}
	if !models.HasMinRank(actorRoles, required) {
		return appErrors.Clone(appErrors.ErrUnauthorized, fmt.Sprintf("this role change requires %s rank", required))
	}

	if removesDirector {
		directors, err := s.users.CountDirectors(ctx)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count directors")
		}
		if directors <= 1 {
			return appErrors.Clone(appErrors.ErrInvariantViolation, "at least one active director must remain")
		}
	}

	if err := s.users.ReplaceRoles(ctx, targetUserID, normalized); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace roles")
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"previous_roles": targetRoles,
		"new_roles":      normalized,
	})
	recordAudit(ctx, s.audit, s.metrics, s.logger, &models.AuditLogEntry{
		ActorID:     actorID,
		ActorRole:   string(models.HighestRole(actorRoles)),
		Action:      models.AuditActionUpdateUserRoles,
		EntityType:  "user",
		EntityID:    targetUserID,
		Description: "replaced role set",
		Metadata:    metadata,
	})
	return nil
}
