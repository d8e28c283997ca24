package penalties

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/view"
)

// ProjectLister feeds the project filter.
type ProjectLister interface {
	List(ctx context.Context, filter projects.ListFilter) ([]projects.Project, shared.Pagination, error)
}

// Handler serves the penalty admin page.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	projects  ProjectLister
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	now       func() time.Time
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, projects ProjectLister, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, projects: projects, templates: templates, csrf: csrf, rbac: rbac, now: time.Now}
}

// MountRoutes registers penalty routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPenaltiesManage, shared.PermInstallmentsView))
		r.Get("/", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPenaltiesManage))
		r.Post("/accrue", h.accrue)
		r.Post("/{id}/waive", h.waive)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status: Status(strings.ToUpper(q.Get("status"))),
		Page:   shared.PageFromQuery(q),
	}
	filter.ProjectID, _ = shared.ParseOptionalID(q.Get("project_id"))
	filter.UserID, _ = shared.ParseOptionalID(q.Get("user_id"))
	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.serverError(w, "list penalties", err)
		return
	}
	var projectOptions []projects.Project
	if h.projects != nil {
		projectOptions, _, err = h.projects.List(r.Context(), projects.ListFilter{PerPage: 200})
		if err != nil {
			h.serverError(w, "list projects", err)
			return
		}
	}
	var accrued float64
	for _, p := range items {
		if p.Status == StatusAccrued {
			accrued += p.Amount
		}
	}
	h.render(w, r, "pages/penalties/list.html", "Penalties", map[string]any{
		"Penalties":  items,
		"Accrued":    shared.Round2(accrued),
		"Pagination": page,
		"PageBase": shared.PageBase("/penalties", url.Values{
			"project_id": {q.Get("project_id")},
			"user_id":    {q.Get("user_id")},
			"status":     {string(filter.Status)},
		}),
		"Projects":  projectOptions,
		"ProjectID": filter.ProjectID,
		"UserID":    filter.UserID,
		"Status":    string(filter.Status),
		"Statuses":  Statuses,
		"Today":     shared.DateOnly(h.now()),
		"Errors":    map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) accrue(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	asOf := h.now()
	if raw := r.PostFormValue("as_of"); strings.TrimSpace(raw) != "" {
		parsed, err := shared.ParseDate(raw)
		if err != nil {
			view.RedirectWithFlash(w, r, "/penalties", shared.FlashError, "Enter a date as YYYY-MM-DD.")
			return
		}
		asOf = parsed
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	result, err := h.service.Accrue(r.Context(), actorID, asOf)
	if err != nil {
		h.logger.Error("accrue penalties", slog.Any("error", err))
		view.RedirectWithFlash(w, r, "/penalties", shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	h.logger.Info("penalties accrued",
		slog.String("as_of", result.AsOf.Format("2006-01-02")),
		slog.Int("created", result.Created),
		slog.Int("grown", result.Grown),
		slog.Float64("posted", result.Posted))
	msg := fmt.Sprintf("Checked %d late installments: %d new penalties, %d increased, %s posted",
		result.Scanned, result.Created, result.Grown, view.FormatMoney(result.Posted))
	view.RedirectWithFlash(w, r, "/penalties", shared.FlashSuccess, msg)
}

func (h *Handler) waive(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	p, err := h.service.Waive(r.Context(), actorID, id, r.PostFormValue("reason"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if !shared.IsUserError(err) {
			h.logger.Error("waive penalty", slog.Int64("penalty_id", id), slog.Any("error", err))
		}
		view.RedirectWithFlash(w, r, "/penalties", shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, "/penalties", shared.FlashSuccess, "Penalty of "+view.FormatMoney(p.Amount)+" waived for "+p.UserName)
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
