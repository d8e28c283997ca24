package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/view"
)

// Handler serves the admin dashboard and the member's account page.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// adminScopes grant the admin dashboard; anyone else lands on /me.
var adminScopes = []string{shared.PermProjectsView, shared.PermInstallmentsView, shared.PermAccountingView}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.admin)
	r.With(h.rbac.RequireAll(shared.PermSelfView)).Get("/me", h.me)
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if !principal.CanAny(adminScopes...) {
		http.Redirect(w, r, "/me", http.StatusFound)
		return
	}
	data, err := h.service.Admin(r.Context())
	if err != nil {
		h.serverError(w, "load dashboard", err)
		return
	}
	h.render(w, r, "pages/dashboard/admin.html", "Dashboard", map[string]any{"Dashboard": data}, http.StatusOK)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		http.Redirect(w, r, "/auth/login", http.StatusFound)
		return
	}
	account, err := h.service.Mine(r.Context(), userID)
	if err != nil {
		h.serverError(w, "load account", err)
		return
	}
	h.render(w, r, "pages/dashboard/me.html", "My account", map[string]any{"Account": account}, http.StatusOK)
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	viewData := view.Base(r, h.csrf, title)
	viewData.Data = data
	if err := h.templates.Render(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}
