package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/edustack/campus-api/api/swagger"
	"github.com/edustack/campus-api/internal/handler"
	"github.com/edustack/campus-api/internal/middleware"
	"github.com/edustack/campus-api/internal/models"
	"github.com/edustack/campus-api/internal/repository"
	"github.com/edustack/campus-api/internal/service"
	"github.com/edustack/campus-api/pkg/cache"
	"github.com/edustack/campus-api/pkg/config"
	"github.com/edustack/campus-api/pkg/database"
	"github.com/edustack/campus-api/pkg/jobs"
	"github.com/edustack/campus-api/pkg/logger"
	corsmiddleware "github.com/edustack/campus-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edustack/campus-api/pkg/middleware/requestid"
	"github.com/edustack/campus-api/pkg/ratelimit"
)

// @title EduStack Campus API
// @version 0.1.0
// @description Access governance, enrollment and participation tracking
// @BasePath /api/v1
// @schemes http

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
		logr.Info("redis disabled, using in-memory rate limiter")
	}

	userRepo := repository.NewUserRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, assignmentRepo, logr)
	queue := notificationSvc.StartQueue(ctx, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	})
	defer queue.Stop()

	metricsSvc := service.NewMetricsService()
	governanceSvc := service.NewGovernanceService(userRepo, assignmentRepo, catalogRepo, auditRepo, notificationSvc,
		limiter, cfg.RateLimits.GovernanceMax, cfg.RateLimits.GovernanceWindow, logr).WithMetrics(metricsSvc)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, catalogRepo, auditRepo, notificationSvc,
		limiter, cfg.RateLimits.EnrollMax, cfg.RateLimits.EnrollWindow, logr).WithMetrics(metricsSvc)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, catalogRepo, assignmentRepo, userRepo, auditRepo,
		notificationSvc, limiter, cfg.RateLimits.AttendanceMax, cfg.RateLimits.AttendanceWindow,
		cfg.Participation.LowAttendanceThreshold, logr).WithMetrics(metricsSvc)
	authSvc := service.NewAuthService(userRepo, auditRepo, cfg.JWT.Secret, cfg.JWT.Expiration, logr).WithMetrics(metricsSvc)

	authHandler := handler.NewAuthHandler(authSvc)
	governanceHandler := handler.NewGovernanceHandler(governanceSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	reportHandler := handler.NewReportHandler(attendanceSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/signup", authHandler.Signup)
		api.POST("/auth/login", authHandler.Login)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.POST("/role-requests", governanceHandler.RequestRole)
		authed.POST("/enrollments", enrollmentHandler.Enroll)
		authed.PUT("/batches/:id/whatsapp", enrollmentHandler.MarkJoinedWhatsApp)
		authed.GET("/notifications", notificationHandler.Inbox)
		authed.PUT("/notifications/:id/read", notificationHandler.MarkRead)
		authed.GET("/batches/:id/participation/:userId", attendanceHandler.Summary)
	}

	teachers := api.Group("")
	teachers.Use(middleware.JWT(authSvc), middleware.RequireMinRank(models.RoleTeacher))
	{
		teachers.POST("/sessions/:id/attendance", attendanceHandler.Mark)
		teachers.POST("/sessions/:id/attendance/bulk", attendanceHandler.BulkMarkPresent)
		teachers.GET("/batches/:id/enrollments", enrollmentHandler.ListByBatch)
		teachers.GET("/reports/batches/:id/participation", reportHandler.BatchParticipation)
		teachers.POST("/batches/:id/participation/:userId/recompute", attendanceHandler.Recompute)
	}

	admins := api.Group("")
	admins.Use(middleware.JWT(authSvc), middleware.RequireMinRank(models.RoleAdmin))
	{
		admins.POST("/users/:id/role-requests/approve", governanceHandler.ApproveRoleRequest)
		admins.POST("/users/:id/role-requests/reject", governanceHandler.RejectRoleRequest)
		admins.PUT("/users/:id/roles", governanceHandler.UpdateRoles)
		admins.POST("/modules/:id/teachers", governanceHandler.AssignTeacher)
		admins.DELETE("/modules/:id/teachers/:userId", governanceHandler.UnassignTeacher)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}
