package app

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/estatebook/estatebook/internal/accounting"
	"github.com/estatebook/estatebook/internal/archive"
	auditpkg "github.com/estatebook/estatebook/internal/audit"
	"github.com/estatebook/estatebook/internal/auth"
	"github.com/estatebook/estatebook/internal/dashboard"
	"github.com/estatebook/estatebook/internal/documents"
	"github.com/estatebook/estatebook/internal/installments"
	"github.com/estatebook/estatebook/internal/integration"
	"github.com/estatebook/estatebook/internal/observability"
	"github.com/estatebook/estatebook/internal/payments"
	"github.com/estatebook/estatebook/internal/penalties"
	"github.com/estatebook/estatebook/internal/platform/cache"
	"github.com/estatebook/estatebook/internal/platform/db"
	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/roles"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/users"
)

// dashboardUpcomingDays is the look-ahead of the admin dashboard.
const dashboardUpcomingDays = 14

// Services is the domain layer shared by the web server, the worker and ebctl.
type Services struct {
	Audit        *shared.AuditLogger
	Cache        *cache.Versioned
	Auth         *auth.Service
	RBAC         *rbac.Service
	Roles        *roles.Service
	Users        *users.Service
	Accounting   *accounting.Service
	Projects     *projects.Service
	Installments *installments.Service
	Payments     *payments.Service
	Penalties    *penalties.Service
	Documents    *documents.Service
	Archive      *archive.Service
	Trail        *auditpkg.Service
	Dashboard    *dashboard.Service
}

// BuildServices wires repositories and services over the pool. Metrics may be
// nil; document storage is only opened when withDocuments is set so the
// worker and CLI never create the upload directory.
func BuildServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, withDocuments bool) (*Services, error) {
	audit := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	tx := db.NewTransactor(pool)
	dashCache := cache.NewVersioned(redisClient, "estatebook:dashboard", cfg.DashboardCacheTTL)

	rbacService := rbac.NewService(rbac.NewRepository(pool))
	accountingService := accounting.NewService(accounting.NewRepository(pool), audit)
	if metrics != nil {
		accountingService.WithObserver(metrics)
	}
	hooks := integration.NewHooks(accountingService)

	usersService := users.NewService(users.NewRepository(pool), rbacService, accountingService, audit, tx)
	projectsService := projects.NewService(projects.NewRepository(pool), usersService, audit, dashCache, tx)
	installmentsService := installments.NewService(installments.NewRepository(pool), projectsService, hooks, idempotency, audit, dashCache, tx)
	paymentsService := payments.NewService(payments.NewRepository(pool), installmentsService, hooks, idempotency, audit, dashCache, tx)
	if metrics != nil {
		paymentsService.WithObserver(metrics)
	}
	penaltiesService := penalties.NewService(penalties.NewRepository(pool), hooks, audit, dashCache, tx)

	var documentsService *documents.Service
	if withDocuments {
		store, err := documents.NewDiskStore(cfg.DocumentStorageDir)
		if err != nil {
			return nil, fmt.Errorf("app: document storage: %w", err)
		}
		documentsService = documents.NewService(documents.NewRepository(pool), store, audit, tx, cfg.DocumentMaxBytes)
	}

	svc := &Services{
		Audit:        audit,
		Cache:        dashCache,
		Auth:         auth.NewService(auth.NewRepository(pool), audit),
		RBAC:         rbacService,
		Roles:        roles.NewService(rbacService, audit),
		Users:        usersService,
		Accounting:   accountingService,
		Projects:     projectsService,
		Installments: installmentsService,
		Payments:     paymentsService,
		Penalties:    penaltiesService,
		Documents:    documentsService,
		Archive:      archive.NewService(archive.NewRepository(pool), audit, dashCache, tx),
		Trail:        auditpkg.NewService(auditpkg.NewRepository(pool)),
	}
	if documentsService != nil {
		svc.Dashboard = dashboard.NewService(dashboard.NewRepository(pool), dashboard.Sources{
			Installments: installmentsService,
			Payments:     paymentsService,
			Memberships:  projectsService,
			Penalties:    penaltiesService,
			Documents:    documentsService,
			Ledger:       accountingService,
		}, dashCache, dashboardUpcomingDays)
	}
	return svc, nil
}
