package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/estatebook/estatebook/internal/accounting"
	"github.com/estatebook/estatebook/internal/archive"
	"github.com/estatebook/estatebook/internal/audit"
	"github.com/estatebook/estatebook/internal/auth"
	"github.com/estatebook/estatebook/internal/dashboard"
	"github.com/estatebook/estatebook/internal/documents"
	"github.com/estatebook/estatebook/internal/installments"
	"github.com/estatebook/estatebook/internal/observability"
	"github.com/estatebook/estatebook/internal/payments"
	"github.com/estatebook/estatebook/internal/penalties"
	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/roles"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/users"
	"github.com/estatebook/estatebook/jobs"
	"github.com/estatebook/estatebook/report"
	"github.com/estatebook/estatebook/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics

	AuthHandler         *auth.Handler
	DashboardHandler    *dashboard.Handler
	UsersHandler        *users.Handler
	RolesHandler        *roles.Handler
	PermissionsHandler  *rbac.PermissionsHandler
	ProjectsHandler     *projects.Handler
	InstallmentsHandler *installments.Handler
	PaymentsHandler     *payments.Handler
	PenaltiesHandler    *penalties.Handler
	AccountingHandler   *accounting.Handler
	DocumentsHandler    *documents.Handler
	ArchiveHandler      *archive.Handler
	AuditHandler        *audit.Handler
	ReportHandler       *report.Handler
	JobHandler          *jobs.Handler
}

// NewRouter constructs the chi.Router with EstateBook defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.RBACMiddleware.LoadPrincipal)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.DashboardHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAuth)
			params.DashboardHandler.MountRoutes(r)
		})
	}

	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.ProjectsHandler != nil {
		r.Route("/projects", params.ProjectsHandler.MountRoutes)
	}
	if params.InstallmentsHandler != nil {
		r.Route("/installments", params.InstallmentsHandler.MountRoutes)
	}
	if params.PaymentsHandler != nil {
		r.Route("/payments", params.PaymentsHandler.MountRoutes)
	}
	if params.PenaltiesHandler != nil {
		r.Route("/penalties", params.PenaltiesHandler.MountRoutes)
	}
	if params.AccountingHandler != nil {
		r.Route("/accounting", params.AccountingHandler.MountRoutes)
	}
	if params.DocumentsHandler != nil {
		r.Route("/documents", params.DocumentsHandler.MountRoutes)
	}
	if params.ArchiveHandler != nil {
		r.Route("/archive", params.ArchiveHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler lets browsers cache static assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
