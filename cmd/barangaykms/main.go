package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/barangaykms/barangaykms/internal/announcements"
	"github.com/barangaykms/barangaykms/internal/app"
	"github.com/barangaykms/barangaykms/internal/audit"
	"github.com/barangaykms/barangaykms/internal/auth"
	"github.com/barangaykms/barangaykms/internal/barangays"
	"github.com/barangaykms/barangaykms/internal/documents"
	"github.com/barangaykms/barangaykms/internal/knowledge"
	"github.com/barangaykms/barangaykms/internal/notifications"
	"github.com/barangaykms/barangaykms/internal/observability"
	"github.com/barangaykms/barangaykms/internal/platform/cache"
	"github.com/barangaykms/barangaykms/internal/platform/db"
	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
	"github.com/barangaykms/barangaykms/internal/users"
	"github.com/barangaykms/barangaykms/internal/view"
	"github.com/barangaykms/barangaykms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "bkms_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	tenancyMW := tenancy.Middleware{Logger: logger}
	metrics := observability.NewMetrics()

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	notifier := notifications.NewService(dbpool, redisClient, logger)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	announcementsRepo := announcements.NewRepository(dbpool)
	announcementsService := announcements.NewService(announcementsRepo, auditLogger, notifier)
	announcementsHandler := announcements.NewHandler(logger, announcementsService, templates, csrfManager, tenancyMW, metrics, idempotencyStore)

	blobStore, err := documents.NewDiskStore(cfg.UploadDir)
	if err != nil {
		logger.Error("init upload dir", slog.Any("error", err))
		os.Exit(1)
	}
	documentsRepo := documents.NewRepository(dbpool)
	documentsService := documents.NewService(documentsRepo, blobStore, auditLogger, notifier, cfg.UploadMaxBytes)
	documentsHandler := documents.NewHandler(logger, documentsService, templates, csrfManager, tenancyMW, metrics, cfg.UploadMaxBytes)

	knowledgeRepo := knowledge.NewRepository(dbpool)
	knowledgeService := knowledge.NewService(knowledgeRepo, auditLogger, approvalRecorder, notifier)
	knowledgeHandler := knowledge.NewHandler(logger, knowledgeService, templates, csrfManager, tenancyMW, metrics, idempotencyStore)

	barangaysRepo := barangays.NewRepository(dbpool)
	barangaysService := barangays.NewService(barangaysRepo, auditLogger)
	barangaysHandler := barangays.NewHandler(logger, barangaysService, templates, csrfManager, tenancyMW, metrics)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, auditLogger)
	usersHandler := users.NewHandler(logger, usersService, barangaysService, templates, csrfManager, tenancyMW, metrics)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audit.NewHandler(logger, auditService, templates, csrfManager)

	notificationsHandler := notifications.NewHandler(logger, notifier)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Templates:            templates,
		SessionManager:       sessionManager,
		CSRFManager:          csrfManager,
		TenancyMW:            tenancyMW,
		AuthHandler:          authHandler,
		AuditHandler:         auditHandler,
		AnnouncementsHandler: announcementsHandler,
		DocumentsHandler:     documentsHandler,
		KnowledgeHandler:     knowledgeHandler,
		BarangaysHandler:     barangaysHandler,
		UsersHandler:         usersHandler,
		NotificationsHandler: notificationsHandler,
		JobsHandler:          jobsHandler,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
