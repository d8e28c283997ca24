package projects

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

// Handler serves project, unit and member pages.
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

// MountRoutes registers project routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermProjectsView))
		r.Get("/", h.listProjects)
		r.Get("/{id}", h.showProject)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermProjectsEdit))
		r.Get("/new", h.showCreateForm)
		r.Post("/", h.createProject)
		r.Get("/{id}/edit", h.showEditForm)
		r.Post("/{id}", h.updateProject)
		r.Post("/{id}/units", h.addUnit)
		r.Get("/{id}/members/assign", h.assignWizard)
		r.Post("/{id}/members/assign", h.assignSubmit)
		r.Post("/{id}/members/{userID}/remove", h.removeMember)
	})
}

type formErrors map[string]string

var assignSteps = []string{"Choose user", "Share and unit", "Confirm"}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search: strings.TrimSpace(q.Get("q")),
		Status: Status(strings.ToUpper(q.Get("status"))),
		Page:   shared.PageFromQuery(q),
	}
	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list projects", slog.Any("error", err))
		h.render(w, r, "pages/projects/list.html", "Projects", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}, "Statuses": Statuses}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/projects/list.html", "Projects", map[string]any{
		"Projects":   items,
		"Pagination": page,
		"PageBase":   shared.PageBase("/projects", url.Values{"q": {filter.Search}, "status": {string(filter.Status)}}),
		"Search":     filter.Search,
		"Status":     string(filter.Status),
		"Statuses":   Statuses,
		"Errors":     formErrors{},
	}, http.StatusOK)
}

func (h *Handler) showProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	h.renderProject(w, r, project, UnitInput{Type: UnitTypes[0]}, formErrors{}, http.StatusOK)
}

func (h *Handler) renderProject(w http.ResponseWriter, r *http.Request, project Project, unitForm UnitInput, errs formErrors, status int) {
	ctx := r.Context()
	units, err := h.service.ListUnits(ctx, project.ID)
	if err != nil {
		h.serverError(w, "list units", err)
		return
	}
	members, err := h.service.ListMembers(ctx, project.ID)
	if err != nil {
		h.serverError(w, "list members", err)
		return
	}
	h.render(w, r, "pages/projects/show.html", project.Name, map[string]any{
		"Project":   project,
		"Units":     units,
		"Members":   members,
		"Shares":    summarize(members, 0),
		"UnitForm":  unitForm,
		"UnitTypes": UnitTypes,
		"Errors":    errs,
	}, status)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, 0, ProjectInput{Status: StatusPlanning}, formErrors{}, http.StatusOK)
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	form := ProjectInput{
		Code:        project.Code,
		Name:        project.Name,
		Location:    project.Location,
		Description: project.Description,
		Status:      project.Status,
		StartDate:   project.StartDate,
		EndDate:     project.EndDate,
		Budget:      project.Budget,
		PenaltyRate: project.PenaltyRate,
		GraceDays:   project.GraceDays,
	}
	h.renderForm(w, r, project.ID, form, formErrors{}, http.StatusOK)
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	form, errs, ok := h.parseProjectForm(w, r)
	if !ok {
		return
	}
	if len(errs) > 0 {
		h.renderForm(w, r, 0, form, errs, http.StatusUnprocessableEntity)
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	project, err := h.service.Create(r.Context(), actorID, form)
	if err != nil {
		h.renderFormError(w, r, 0, form, err)
		return
	}
	view.RedirectWithFlash(w, r, projectPath(project.ID), shared.FlashSuccess, "Project "+project.Name+" created")
}

func (h *Handler) updateProject(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	form, errs, ok := h.parseProjectForm(w, r)
	if !ok {
		return
	}
	if len(errs) > 0 {
		h.renderForm(w, r, id, form, errs, http.StatusUnprocessableEntity)
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	project, err := h.service.Update(r.Context(), actorID, id, form)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.renderFormError(w, r, id, form, err)
		return
	}
	view.RedirectWithFlash(w, r, projectPath(project.ID), shared.FlashSuccess, "Project "+project.Name+" updated")
}

func (h *Handler) addUnit(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := UnitInput{Number: r.PostFormValue("number"), Type: r.PostFormValue("type")}
	errs := formErrors{}
	if raw := strings.TrimSpace(r.PostFormValue("floor")); raw != "" {
		floor, err := strconv.Atoi(raw)
		if err != nil {
			errs["Floor"] = "Enter a whole number."
		}
		form.Floor = floor
	}
	form.Area = parseOptionalAmount(r.PostFormValue("area"), "Area", errs)
	form.Price = parseOptionalAmount(r.PostFormValue("price"), "Price", errs)
	if len(errs) > 0 {
		h.renderProject(w, r, project, form, errs, http.StatusUnprocessableEntity)
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	unit, err := h.service.AddUnit(r.Context(), actorID, project.ID, form)
	if err != nil {
		fieldErrs, isField := AsFieldErrors(err)
		if !isField {
			if !shared.IsUserError(err) {
				h.logger.Error("add unit", slog.Int64("project_id", project.ID), slog.Any("error", err))
			}
			fieldErrs = formErrors{"general": shared.UserSafeMessage(err)}
		}
		h.renderProject(w, r, project, form, fieldErrs, http.StatusUnprocessableEntity)
		return
	}
	view.RedirectWithFlash(w, r, projectPath(project.ID), shared.FlashSuccess, "Unit "+unit.Number+" added")
}

// assignWizard renders the first two steps. Step 1 picks a user, step 2
// collects the share and unit for the chosen user.
func (h *Handler) assignWizard(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if q.Get("step") == "2" {
		userID, err := shared.ParseID(q.Get("user_id"))
		if err != nil {
			view.RedirectWithFlash(w, r, assignPath(project.ID), shared.FlashError, "Choose a user first")
			return
		}
		form := MemberInput{UserID: userID}
		form.SharePercent, _ = strconv.ParseFloat(q.Get("share"), 64)
		form.UnitID, _ = shared.ParseOptionalID(q.Get("unit_id"))
		h.renderShareStep(w, r, project, form, formErrors{}, http.StatusOK)
		return
	}

	search := strings.TrimSpace(q.Get("q"))
	candidates, page, err := h.service.Candidates(r.Context(), search, shared.PageFromQuery(q))
	if err != nil {
		h.serverError(w, "list candidates", err)
		return
	}
	members, err := h.service.ListMembers(r.Context(), project.ID)
	if err != nil {
		h.serverError(w, "list members", err)
		return
	}
	joined := make(map[int64]bool, len(members))
	for _, m := range members {
		joined[m.UserID] = true
	}
	h.render(w, r, "pages/projects/assign.html", "Assign member", map[string]any{
		"Step":       1,
		"Steps":      assignSteps,
		"Project":    project,
		"Candidates": candidates,
		"Joined":     joined,
		"Search":     search,
		"Pagination": page,
		"PageBase":   shared.PageBase(assignPath(project.ID), url.Values{"q": {search}}),
		"Shares":     summarize(members, 0),
		"Errors":     formErrors{},
	}, http.StatusOK)
}

func (h *Handler) renderShareStep(w http.ResponseWriter, r *http.Request, project Project, form MemberInput, errs formErrors, status int) {
	ctx := r.Context()
	user, err := h.service.users.Get(ctx, form.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			view.RedirectWithFlash(w, r, assignPath(project.ID), shared.FlashError, "That user no longer exists")
			return
		}
		h.serverError(w, "load candidate", err)
		return
	}
	units, err := h.service.ListUnits(ctx, project.ID)
	if err != nil {
		h.serverError(w, "list units", err)
		return
	}
	free := make([]Unit, 0, len(units))
	for _, u := range units {
		if u.OwnerID == 0 || u.OwnerID == user.ID {
			free = append(free, u)
		}
	}
	members, err := h.service.ListMembers(ctx, project.ID)
	if err != nil {
		h.serverError(w, "list members", err)
		return
	}
	for _, m := range members {
		if m.UserID == user.ID && form.SharePercent == 0 {
			form.SharePercent = m.SharePercent
			if m.UnitID != nil && form.UnitID == 0 {
				form.UnitID = *m.UnitID
			}
		}
	}
	h.render(w, r, "pages/projects/assign.html", "Assign member", map[string]any{
		"Step":      2,
		"Steps":     assignSteps,
		"Project":   project,
		"Candidate": user,
		"Form":      form,
		"Units":     free,
		"Shares":    summarize(members, user.ID),
		"Errors":    errs,
	}, status)
}

// assignSubmit handles step 2 (check and show confirmation) and step 3
// (save). All wizard state travels in form fields.
func (h *Handler) assignSubmit(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := MemberInput{}
	errs := formErrors{}
	userID, err := shared.ParseID(r.PostFormValue("user_id"))
	if err != nil {
		view.RedirectWithFlash(w, r, assignPath(project.ID), shared.FlashError, "Choose a user first")
		return
	}
	form.UserID = userID
	share, err := strconv.ParseFloat(strings.TrimSpace(r.PostFormValue("share")), 64)
	if err != nil {
		errs["SharePercent"] = "Enter the share as a percentage."
	}
	form.SharePercent = share
	if form.UnitID, err = shared.ParseOptionalID(r.PostFormValue("unit_id")); err != nil {
		errs["UnitID"] = "Choose a unit from the list."
	}
	if len(errs) > 0 {
		h.renderShareStep(w, r, project, form, errs, http.StatusUnprocessableEntity)
		return
	}

	if r.PostFormValue("step") != "3" {
		assignment, err := h.service.CheckAssignment(r.Context(), project.ID, form)
		if err != nil {
			h.renderAssignError(w, r, project, form, err)
			return
		}
		h.render(w, r, "pages/projects/assign.html", "Assign member", map[string]any{
			"Step":       3,
			"Steps":      assignSteps,
			"Project":    project,
			"Form":       form,
			"Assignment": assignment,
			"Errors":     formErrors{},
		}, http.StatusOK)
		return
	}

	actorID, _ := shared.CurrentUserID(r.Context())
	assignment, err := h.service.AssignMember(r.Context(), actorID, project.ID, form)
	if err != nil {
		h.renderAssignError(w, r, project, form, err)
		return
	}
	view.RedirectWithFlash(w, r, projectPath(project.ID), shared.FlashSuccess,
		assignment.UserName+" assigned with "+strconv.FormatFloat(assignment.SharePercent, 'f', -1, 64)+"% share")
}

func (h *Handler) renderAssignError(w http.ResponseWriter, r *http.Request, project Project, form MemberInput, err error) {
	errs, ok := AsFieldErrors(err)
	if !ok {
		switch {
		case errors.Is(err, ErrShareOverflow), errors.Is(err, ErrInvalidShare):
			errs = formErrors{"SharePercent": shared.UserSafeMessage(err)}
		case errors.Is(err, ErrUnitNotInProject), errors.Is(err, ErrUnitTaken):
			errs = formErrors{"UnitID": shared.UserSafeMessage(err)}
		default:
			if !shared.IsUserError(err) && !errors.Is(err, shared.ErrNotFound) {
				h.logger.Error("assign member", slog.Int64("project_id", project.ID), slog.Any("error", err))
			}
			errs = formErrors{"general": shared.UserSafeMessage(err)}
		}
	}
	h.renderShareStep(w, r, project, form, errs, http.StatusUnprocessableEntity)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	projectID, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	userID, err := shared.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	if err := h.service.RemoveMember(r.Context(), actorID, projectID, userID); err != nil {
		if !shared.IsUserError(err) && !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("remove member", slog.Int64("project_id", projectID), slog.Int64("user_id", userID), slog.Any("error", err))
		}
		view.RedirectWithFlash(w, r, projectPath(projectID), shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, projectPath(projectID), shared.FlashSuccess, "Member removed")
}

func (h *Handler) parseProjectForm(w http.ResponseWriter, r *http.Request) (ProjectInput, formErrors, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return ProjectInput{}, nil, false
	}
	errs := formErrors{}
	form := ProjectInput{
		Code:        r.PostFormValue("code"),
		Name:        r.PostFormValue("name"),
		Location:    r.PostFormValue("location"),
		Description: r.PostFormValue("description"),
		Status:      Status(strings.ToUpper(strings.TrimSpace(r.PostFormValue("status")))),
	}
	start, err := shared.ParseDate(r.PostFormValue("start_date"))
	if err != nil {
		errs["StartDate"] = "Enter a date as YYYY-MM-DD."
	}
	form.StartDate = start
	end, err := shared.ParseOptionalDate(r.PostFormValue("end_date"))
	if err != nil {
		errs["EndDate"] = "Enter a date as YYYY-MM-DD."
	}
	form.EndDate = end
	form.Budget = parseOptionalAmount(r.PostFormValue("budget"), "Budget", errs)
	form.PenaltyRate = parseOptionalAmount(r.PostFormValue("penalty_rate"), "PenaltyRate", errs) / 100
	if raw := strings.TrimSpace(r.PostFormValue("grace_days")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			errs["GraceDays"] = "Enter a whole number of days."
		}
		form.GraceDays = days
	}
	return form, errs, true
}

func parseOptionalAmount(raw, field string, errs formErrors) float64 {
	if strings.TrimSpace(raw) == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""), 64)
	if err != nil {
		errs[field] = "Enter a number."
		return 0
	}
	return v
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, id int64, form ProjectInput, errs formErrors, status int) {
	title := "New project"
	if id > 0 {
		title = "Edit project"
	}
	h.render(w, r, "pages/projects/form.html", title, map[string]any{
		"ProjectID": id,
		"Form":      form,
		"Statuses":  Statuses,
		"Errors":    errs,
	}, status)
}

func (h *Handler) renderFormError(w http.ResponseWriter, r *http.Request, id int64, form ProjectInput, err error) {
	errs, ok := AsFieldErrors(err)
	if !ok {
		if !shared.IsUserError(err) {
			h.logger.Error("save project", slog.Any("error", err))
		}
		errs = formErrors{"general": shared.UserSafeMessage(err)}
		if errors.Is(err, ErrDuplicateCode) {
			errs = formErrors{"Code": shared.UserSafeMessage(err)}
		}
	}
	h.renderForm(w, r, id, form, errs, http.StatusUnprocessableEntity)
}

func (h *Handler) loadProject(w http.ResponseWriter, r *http.Request) (Project, bool) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return Project{}, false
	}
	project, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return Project{}, false
		}
		h.serverError(w, "get project", err)
		return Project{}, false
	}
	return project, true
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

func projectPath(id int64) string {
	return "/projects/" + strconv.FormatInt(id, 10)
}

func assignPath(id int64) string {
	return projectPath(id) + "/members/assign"
}
