package users

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/view"
)

// Handler manages user management endpoints.
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

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.showUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersEdit))
		r.Get("/new", h.showCreateForm)
		r.Post("/", h.createUser)
		r.Get("/{id}/edit", h.showEditForm)
		r.Post("/{id}", h.updateUser)
		r.Post("/{id}/active", h.toggleActive)
	})
}

type formErrors map[string]string

type roleOption struct {
	ID      int64
	Name    string
	Checked bool
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search: strings.TrimSpace(q.Get("q")),
		Page:   shared.PageFromQuery(q),
	}
	switch q.Get("active") {
	case "1":
		active := true
		filter.Active = &active
	case "0":
		active := false
		filter.Active = &active
	}
	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		h.render(w, r, "pages/users/list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users/list.html", map[string]any{
		"Users":      items,
		"Pagination": page,
		"PageBase":   shared.PageBase("/users", url.Values{"q": {filter.Search}, "active": {q.Get("active")}}),
		"Search":     filter.Search,
		"Active":     q.Get("active"),
		"Errors":     formErrors{},
	}, http.StatusOK)
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	roles, err := h.roleOptions(r, user.ID, nil)
	if err != nil {
		h.logger.Error("load user roles", slog.Any("error", err))
	}
	h.render(w, r, "pages/users/show.html", map[string]any{"User": user, "Roles": roles}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roleOptions(r, 0, nil)
	if err != nil {
		h.logger.Error("load roles", slog.Any("error", err))
	}
	h.render(w, r, "pages/users/form.html", map[string]any{"Form": UserInput{}, "Roles": roles, "Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	roles, err := h.roleOptions(r, user.ID, nil)
	if err != nil {
		h.logger.Error("load roles", slog.Any("error", err))
	}
	form := UserInput{Email: user.Email, Name: user.Name, Phone: user.Phone, NationalID: user.NationalID}
	h.render(w, r, "pages/users/form.html", map[string]any{"UserID": user.ID, "Form": form, "Roles": roles, "Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	user, err := h.service.Create(r.Context(), actorID, form)
	if err != nil {
		h.renderFormError(w, r, 0, form, err)
		return
	}
	view.RedirectWithFlash(w, r, "/users/"+strconv.FormatInt(user.ID, 10), shared.FlashSuccess, "User "+user.Name+" created")
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	user, err := h.service.Update(r.Context(), actorID, id, form)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.renderFormError(w, r, id, form, err)
		return
	}
	view.RedirectWithFlash(w, r, "/users/"+strconv.FormatInt(user.ID, 10), shared.FlashSuccess, "User "+user.Name+" updated")
}

func (h *Handler) toggleActive(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	active := r.PostFormValue("active") == "1"
	actorID, _ := shared.CurrentUserID(r.Context())
	location := "/users/" + strconv.FormatInt(id, 10)
	if err := h.service.SetActive(r.Context(), actorID, id, active); err != nil {
		if !shared.IsUserError(err) {
			h.logger.Error("set user active", slog.Int64("user_id", id), slog.Any("error", err))
		}
		view.RedirectWithFlash(w, r, location, shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	msg := "User deactivated"
	if active {
		msg = "User activated"
	}
	view.RedirectWithFlash(w, r, location, shared.FlashSuccess, msg)
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (UserInput, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return UserInput{}, false
	}
	roleIDs, err := shared.ParseIDList(r.PostForm["role_ids"])
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return UserInput{}, false
	}
	if roleIDs == nil {
		roleIDs = []int64{}
	}
	return UserInput{
		Email:      r.PostFormValue("email"),
		Name:       r.PostFormValue("name"),
		Phone:      r.PostFormValue("phone"),
		NationalID: r.PostFormValue("national_id"),
		Password:   r.PostFormValue("password"),
		RoleIDs:    roleIDs,
	}, true
}

func (h *Handler) renderFormError(w http.ResponseWriter, r *http.Request, id int64, form UserInput, err error) {
	errs, ok := AsFieldErrors(err)
	if !ok {
		if !shared.IsUserError(err) {
			h.logger.Error("save user", slog.Any("error", err))
		}
		errs = formErrors{"general": shared.UserSafeMessage(err)}
	}
	roles, loadErr := h.roleOptions(r, 0, form.RoleIDs)
	if loadErr != nil {
		h.logger.Error("load roles", slog.Any("error", loadErr))
	}
	form.Password = ""
	h.render(w, r, "pages/users/form.html", map[string]any{"UserID": id, "Form": form, "Roles": roles, "Errors": errs}, http.StatusUnprocessableEntity)
}

func (h *Handler) loadUser(w http.ResponseWriter, r *http.Request) (User, bool) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return User{}, false
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return User{}, false
		}
		h.logger.Error("get user", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return User{}, false
	}
	return user, true
}

// roleOptions marks the roles held by userID, or the submitted ids when
// selected is non-nil.
func (h *Handler) roleOptions(r *http.Request, userID int64, selected []int64) ([]roleOption, error) {
	roles, err := h.service.Roles(r.Context())
	if err != nil {
		return nil, err
	}
	if selected == nil && userID > 0 {
		selected, err = h.service.RoleIDs(r.Context(), userID)
		if err != nil {
			return nil, err
		}
	}
	held := make(map[int64]bool, len(selected))
	for _, id := range selected {
		held[id] = true
	}
	out := make([]roleOption, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleOption{ID: role.ID, Name: role.Name, Checked: held[role.ID]})
	}
	return out, nil
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	viewData := view.Base(r, h.csrf, "Users")
	viewData.Data = data
	if err := h.templates.Render(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
