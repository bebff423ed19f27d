// Command ops-invoker executes a single domain operation without the HTTP
// gateway. It reads one JSON request from stdin, runs it through the same
// service layer the gateway uses, and writes a JSON result to stdout. The
// process holds no state between invocations, so invariants are enforced
// entirely from durable storage.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/edustack/campus-api/internal/models"
	"github.com/edustack/campus-api/internal/repository"
	"github.com/edustack/campus-api/internal/service"
	"github.com/edustack/campus-api/pkg/cache"
	"github.com/edustack/campus-api/pkg/config"
	"github.com/edustack/campus-api/pkg/database"
	appErrors "github.com/edustack/campus-api/pkg/errors"
	"github.com/edustack/campus-api/pkg/logger"
	"github.com/edustack/campus-api/pkg/ratelimit"
)

type request struct {
	Operation string          `json:"operation"`
	ActorID   string          `json:"actor_id"`
	Payload   json.RawMessage `json:"payload"`
}

type result struct {
	OK    bool             `json:"ok"`
	Data  interface{}      `json:"data,omitempty"`
	Error *appErrors.Error `json:"error,omitempty"`
}

type services struct {
	governance  *service.GovernanceService
	enrollments *service.EnrollmentService
	attendance  *service.AttendanceService
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	// A shared counter store matters here: each invocation is a fresh
	// process, so only Redis makes the rate limit hold across calls. The
	// in-memory fallback effectively disables limiting for this binary.
	var limiter ratelimit.Limiter
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		limiter = ratelimit.NewRedisLimiter(redisClient)
	} else {
		limiter = ratelimit.NewMemoryLimiter()
		logr.Warn("redis disabled, rate limits do not persist across invocations")
	}

	userRepo := repository.NewUserRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Synchronous notification delivery: a one-shot process cannot hand
	// work to background workers and exit.
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, assignmentRepo, logr)

	svcs := &services{
		governance: service.NewGovernanceService(userRepo, assignmentRepo, catalogRepo, auditRepo, notificationSvc,
			limiter, cfg.RateLimits.GovernanceMax, cfg.RateLimits.GovernanceWindow, logr),
		enrollments: service.NewEnrollmentService(enrollmentRepo, catalogRepo, auditRepo, notificationSvc,
			limiter, cfg.RateLimits.EnrollMax, cfg.RateLimits.EnrollWindow, logr),
		attendance: service.NewAttendanceService(attendanceRepo, catalogRepo, assignmentRepo, userRepo, auditRepo,
			notificationSvc, limiter, cfg.RateLimits.AttendanceMax, cfg.RateLimits.AttendanceWindow,
			cfg.Participation.LowAttendanceThreshold, logr),
	}

	var req request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		emit(result{Error: appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request")})
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := dispatch(ctx, svcs, req)
	if err != nil {
		emit(result{Error: appErrors.FromError(err)})
		os.Exit(1)
	}
	emit(result{OK: true, Data: data})
}

func dispatch(ctx context.Context, svcs *services, req request) (interface{}, error) {
	switch req.Operation {
	case "approve_role_request":
		var p struct {
			UserID string `json:"user_id"`
			Role   string `json:"role"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, svcs.governance.ApproveRoleRequest(ctx, req.ActorID, p.UserID, models.Role(p.Role))

	case "reject_role_request":
		var p struct {
			UserID string `json:"user_id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, svcs.governance.RejectRoleRequest(ctx, req.ActorID, p.UserID)

	case "request_role":
		var p struct {
			Role string `json:"role"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, svcs.governance.RequestRole(ctx, req.ActorID, models.Role(p.Role))

	case "update_user_roles":
		var p struct {
			UserID string   `json:"user_id"`
			Roles  []string `json:"roles"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		roles := make([]models.Role, len(p.Roles))
		for i, r := range p.Roles {
			roles[i] = models.Role(r)
		}
		return nil, svcs.governance.UpdateUserRoles(ctx, req.ActorID, p.UserID, roles)

	case "assign_teacher":
		var p struct {
			ModuleID string `json:"module_id"`
			UserID   string `json:"user_id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, svcs.governance.AssignTeacher(ctx, req.ActorID, p.ModuleID, p.UserID)

	case "unassign_teacher":
		var p struct {
			ModuleID string `json:"module_id"`
			UserID   string `json:"user_id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, svcs.governance.UnassignTeacher(ctx, req.ActorID, p.ModuleID, p.UserID)

	case "enroll":
		var p service.EnrollRequest
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		return svcs.enrollments.Enroll(ctx, req.ActorID, &p)

	case "mark_attendance":
		var p struct {
			SessionID string `json:"session_id"`
			UserID    string `json:"user_id"`
			Status    string `json:"status"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		return svcs.attendance.Mark(ctx, req.ActorID, p.SessionID, p.UserID, models.AttendanceStatus(p.Status))

	case "bulk_mark_present":
		var p struct {
			SessionID string   `json:"session_id"`
			UserIDs   []string `json:"user_ids"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		marked, err := svcs.attendance.BulkMarkPresent(ctx, req.ActorID, p.SessionID, p.UserIDs)
		if err != nil {
			return nil, err
		}
		return map[string]int{"marked_count": marked}, nil

	case "recompute_summary":
		var p struct {
			BatchID string `json:"batch_id"`
			UserID  string `json:"user_id"`
		}
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		return svcs.attendance.RecomputeSummary(ctx, req.ActorID, p.BatchID, p.UserID)

	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown operation %q", req.Operation))
	}
}

func decode(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "missing payload")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	return nil
}

func emit(r result) {
	if err := json.NewEncoder(os.Stdout).Encode(r); err != nil {
		log.Printf("failed to encode result: %v", err)
	}
}
