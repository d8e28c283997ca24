package roles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/view"
)

// Handler manages role management endpoints.
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

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesView))
		r.Get("/", h.listRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesEdit))
		r.Get("/new", h.showForm)
		r.Post("/", h.saveRole)
		r.Get("/{id}/edit", h.showForm)
		r.Post("/{id}", h.saveRole)
		r.Post("/{id}/delete", h.deleteRole)
	})
}

type formErrors map[string]string

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		h.render(w, r, "pages/roles/list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/roles/list.html", map[string]any{"Roles": roles}, http.StatusOK)
}

func (h *Handler) roleID(r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		return 0, true
	}
	id, err := shared.ParseID(raw)
	return id, err == nil
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	editor, err := h.service.Editor(r.Context(), id)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load role editor", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/roles/form.html", map[string]any{"Editor": editor, "Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) saveRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	permIDs, err := shared.ParseIDList(r.PostForm["permission_ids"])
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := RoleForm{
		Name:          r.PostFormValue("name"),
		Description:   r.PostFormValue("description"),
		PermissionIDs: permIDs,
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	role, err := h.service.Save(r.Context(), actorID, id, form)
	if err != nil {
		editor, loadErr := h.service.Editor(r.Context(), id)
		if loadErr != nil {
			h.logger.Error("reload role editor", slog.Any("error", loadErr))
		}
		editor.Role.Name = form.Name
		editor.Role.Description = form.Description
		h.render(w, r, "pages/roles/form.html", map[string]any{"Editor": editor, "Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusUnprocessableEntity)
		return
	}
	view.RedirectWithFlash(w, r, "/roles", shared.FlashSuccess, "Role "+role.Name+" saved")
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(r)
	if !ok || id == 0 {
		http.NotFound(w, r)
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	if err := h.service.Delete(r.Context(), actorID, id); err != nil {
		view.RedirectWithFlash(w, r, "/roles", shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, "/roles", shared.FlashSuccess, "Role deleted")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	viewData := view.Base(r, h.csrf, "Roles")
	viewData.Data = data
	if err := h.templates.Render(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
