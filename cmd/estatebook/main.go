package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/estatebook/estatebook/internal/accounting"
	"github.com/estatebook/estatebook/internal/accounting/export"
	"github.com/estatebook/estatebook/internal/app"
	"github.com/estatebook/estatebook/internal/archive"
	"github.com/estatebook/estatebook/internal/audit"
	"github.com/estatebook/estatebook/internal/auth"
	"github.com/estatebook/estatebook/internal/dashboard"
	"github.com/estatebook/estatebook/internal/documents"
	"github.com/estatebook/estatebook/internal/installments"
	"github.com/estatebook/estatebook/internal/observability"
	"github.com/estatebook/estatebook/internal/payments"
	"github.com/estatebook/estatebook/internal/penalties"
	"github.com/estatebook/estatebook/internal/platform/cache"
	"github.com/estatebook/estatebook/internal/platform/db"
	"github.com/estatebook/estatebook/internal/platform/migrate"
	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/roles"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/users"
	"github.com/estatebook/estatebook/internal/view"
	"github.com/estatebook/estatebook/jobs"
	"github.com/estatebook/estatebook/report"
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

	if cfg.AutoMigrate {
		if err := runMigrations(cfg, logger); err != nil {
			logger.Error("auto migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
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

	metrics := observability.NewMetrics()
	services, err := app.BuildServices(cfg, dbpool, redisClient, metrics, true)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	services.Cache.ListenForInvalidation(ctx)

	sessionManager := shared.NewSessionManager(redisClient, "estatebook_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	rbacMiddleware := rbac.Middleware{Service: services.RBAC, Logger: logger}

	reportClient := report.NewClient(cfg.GotenbergURL)
	var pdfClient export.PDFClient
	if cfg.GotenbergURL != "" {
		pdfClient = reportClient.WithOptions(report.Options{Landscape: true})
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		SessionManager:      sessionManager,
		CSRFManager:         csrfManager,
		RBACMiddleware:      rbacMiddleware,
		Metrics:             metrics,
		AuthHandler:         auth.NewHandler(logger, services.Auth, templates, sessionManager, csrfManager),
		DashboardHandler:    dashboard.NewHandler(logger, services.Dashboard, templates, csrfManager, rbacMiddleware),
		UsersHandler:        users.NewHandler(logger, services.Users, templates, csrfManager, rbacMiddleware),
		RolesHandler:        roles.NewHandler(logger, services.Roles, templates, csrfManager, rbacMiddleware),
		PermissionsHandler:  rbac.NewPermissionsHandler(logger, services.RBAC, templates, csrfManager, rbacMiddleware),
		ProjectsHandler:     projects.NewHandler(logger, services.Projects, templates, csrfManager, rbacMiddleware),
		InstallmentsHandler: installments.NewHandler(logger, services.Installments, services.Projects, templates, csrfManager, rbacMiddleware),
		PaymentsHandler:     payments.NewHandler(logger, services.Payments, services.Installments, services.Projects, templates, csrfManager, rbacMiddleware),
		PenaltiesHandler:    penalties.NewHandler(logger, services.Penalties, services.Projects, templates, csrfManager, rbacMiddleware),
		AccountingHandler:   accounting.NewHandler(logger, services.Accounting, templates, csrfManager, rbacMiddleware, export.NewPDFExporter(templates, pdfClient)),
		DocumentsHandler:    documents.NewHandler(logger, services.Documents, services.Projects, services.Users, templates, csrfManager, rbacMiddleware),
		ArchiveHandler:      archive.NewHandler(logger, services.Archive, templates, csrfManager, rbacMiddleware),
		AuditHandler:        audit.NewHandler(logger, services.Trail, templates, csrfManager, rbacMiddleware),
		ReportHandler:       report.NewHandler(reportClient, logger),
		JobHandler:          jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

func runMigrations(cfg *app.Config, logger *slog.Logger) error {
	runner, err := migrate.New(cfg.PGDSN, logger)
	if err != nil {
		return err
	}
	defer func() { _ = runner.Close() }()
	return runner.Up()
}
