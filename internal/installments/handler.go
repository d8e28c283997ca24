package installments

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/view"
)

// ProjectLister feeds the project pickers.
type ProjectLister interface {
	List(ctx context.Context, filter projects.ListFilter) ([]projects.Project, shared.Pagination, error)
}

// Handler serves installment pages and the definition wizard.
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

// MountRoutes registers installment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInstallmentsView))
		r.Get("/", h.listInstallments)
		r.Get("/definitions", h.listDefinitions)
		r.Get("/definitions/{id}", h.showDefinition)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInstallmentsEdit))
		r.Get("/definitions/new", h.wizardStart)
		r.Post("/definitions", h.wizardSubmit)
		r.Post("/definitions/{id}/generate", h.generate)
	})
}

type formErrors map[string]string

var wizardSteps = []string{"Details", "Distribution", "Confirm"}

// defaultUpcomingDays is the window of the "upcoming" listing.
const defaultUpcomingDays = 30

func (h *Handler) listInstallments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status: Status(strings.ToUpper(q.Get("status"))),
		Page:   shared.PageFromQuery(q),
	}
	filter.ProjectID, _ = shared.ParseOptionalID(q.Get("project_id"))
	filter.UserID, _ = shared.ParseOptionalID(q.Get("user_id"))
	today := shared.DateOnly(h.now())
	days := defaultUpcomingDays
	if n, err := strconv.Atoi(q.Get("days")); err == nil && n > 0 && n <= 366 {
		days = n
	}
	switch q.Get("view") {
	case "overdue":
		filter.OverdueAsOf = &today
	case "upcoming":
		until := today.AddDate(0, 0, days)
		filter.DueFrom = &today
		filter.DueTo = &until
		filter.Unpaid = true
	}

	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.serverError(w, "list installments", err)
		return
	}
	projectOptions, err := h.projectOptions(r)
	if err != nil {
		h.serverError(w, "list projects", err)
		return
	}
	var outstanding float64
	for _, it := range items {
		outstanding += it.Outstanding()
	}
	h.render(w, r, "pages/installments/list.html", "Installments", map[string]any{
		"Installments": items,
		"Outstanding":  shared.Round2(outstanding),
		"Pagination":   page,
		"PageBase": shared.PageBase("/installments", url.Values{
			"project_id": {q.Get("project_id")},
			"user_id":    {q.Get("user_id")},
			"status":     {string(filter.Status)},
			"view":       {q.Get("view")},
			"days":       {q.Get("days")},
		}),
		"Projects":  projectOptions,
		"ProjectID": filter.ProjectID,
		"UserID":    filter.UserID,
		"Status":    string(filter.Status),
		"Statuses":  Statuses,
		"View":      q.Get("view"),
		"Days":      days,
		"Today":     today,
		"Errors":    formErrors{},
	}, http.StatusOK)
}

func (h *Handler) listDefinitions(w http.ResponseWriter, r *http.Request) {
	projectID, _ := shared.ParseOptionalID(r.URL.Query().Get("project_id"))
	defs, err := h.service.ListDefinitions(r.Context(), projectID)
	if err != nil {
		h.serverError(w, "list definitions", err)
		return
	}
	projectOptions, err := h.projectOptions(r)
	if err != nil {
		h.serverError(w, "list projects", err)
		return
	}
	h.render(w, r, "pages/installments/definitions.html", "Installment definitions", map[string]any{
		"Definitions": defs,
		"Projects":    projectOptions,
		"ProjectID":   projectID,
		"Errors":      formErrors{},
	}, http.StatusOK)
}

func (h *Handler) showDefinition(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	def, err := h.service.GetDefinition(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.serverError(w, "get definition", err)
		return
	}
	dist, err := h.service.PreviewDefinition(r.Context(), id)
	if err != nil {
		h.serverError(w, "preview definition", err)
		return
	}
	items, err := h.service.ForDefinition(r.Context(), id)
	if err != nil {
		h.serverError(w, "list definition installments", err)
		return
	}
	pending := 0
	for _, line := range dist.Lines {
		if !line.Exists && line.Amount > 0 {
			pending++
		}
	}
	h.render(w, r, "pages/installments/definition.html", def.Title, map[string]any{
		"Definition":   def,
		"Distribution": dist,
		"Installments": items,
		"Pending":      pending,
		"Today":        shared.DateOnly(h.now()),
		"Errors":       formErrors{},
	}, http.StatusOK)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	location := "/installments/definitions/" + strconv.FormatInt(id, 10)
	actorID, _ := shared.CurrentUserID(r.Context())
	result, err := h.service.Generate(r.Context(), actorID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if !shared.IsUserError(err) {
			h.logger.Error("generate installments", slog.Int64("definition_id", id), slog.Any("error", err))
		}
		view.RedirectWithFlash(w, r, location, shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	if len(result.Created) == 0 {
		view.RedirectWithFlash(w, r, location, shared.FlashInfo, "Every member is already billed")
		return
	}
	view.RedirectWithFlash(w, r, location, shared.FlashSuccess, strconv.Itoa(len(result.Created))+" installments generated")
}

func (h *Handler) wizardStart(w http.ResponseWriter, r *http.Request) {
	form := DefinitionInput{}
	form.ProjectID, _ = shared.ParseOptionalID(r.URL.Query().Get("project_id"))
	h.renderDetails(w, r, form, uuid.NewString(), formErrors{}, http.StatusOK)
}

// wizardSubmit drives the three wizard steps. The step field names the step
// being submitted; back returns to the previous one.
func (h *Handler) wizardSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form, errs := parseDefinitionForm(r)
	key := strings.TrimSpace(r.PostFormValue("wizard_key"))
	if _, err := uuid.Parse(key); err != nil {
		key = uuid.NewString()
	}
	step := r.PostFormValue("step")
	back := r.PostFormValue("back") == "1"
	switch {
	case len(errs) > 0:
		h.renderDetails(w, r, form, key, errs, http.StatusUnprocessableEntity)
		return
	case back && step == "2":
		h.renderDetails(w, r, form, key, formErrors{}, http.StatusOK)
		return
	case step == "3" && !back:
		h.createDefinition(w, r, form, key)
		return
	}

	dist, err := h.service.PreviewDistribution(r.Context(), form)
	if err != nil {
		h.renderWizardError(w, r, form, key, 1, err)
		return
	}
	next := 2
	if step == "2" && !back {
		next = 3
	}
	h.render(w, r, "pages/installments/wizard.html", "New installment", map[string]any{
		"Step":         next,
		"Steps":        wizardSteps,
		"Form":         form,
		"Key":          key,
		"Distribution": dist,
		"Errors":       formErrors{},
	}, http.StatusOK)
}

func (h *Handler) createDefinition(w http.ResponseWriter, r *http.Request, form DefinitionInput, key string) {
	actorID, _ := shared.CurrentUserID(r.Context())
	generate := r.PostFormValue("generate") == "1"
	result, err := h.service.CreateAndGenerate(r.Context(), actorID, key, form, generate)
	if err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			view.RedirectWithFlash(w, r, "/installments/definitions", shared.FlashInfo, "This definition was already created")
			return
		}
		h.renderWizardError(w, r, form, key, 3, err)
		return
	}
	location := "/installments/definitions/" + strconv.FormatInt(result.Definition.ID, 10)
	msg := "Definition " + result.Definition.Title + " created"
	if generate {
		msg += ", " + strconv.Itoa(len(result.Created)) + " installments generated"
	}
	view.RedirectWithFlash(w, r, location, shared.FlashSuccess, msg)
}

func (h *Handler) renderWizardError(w http.ResponseWriter, r *http.Request, form DefinitionInput, key string, step int, err error) {
	errs, ok := AsFieldErrors(err)
	if !ok {
		if !shared.IsUserError(err) && !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("installment wizard", slog.Any("error", err))
		}
		errs = formErrors{"general": shared.UserSafeMessage(err)}
	}
	if step == 1 || ok {
		h.renderDetails(w, r, form, key, errs, http.StatusUnprocessableEntity)
		return
	}
	dist, previewErr := h.service.PreviewDistribution(r.Context(), form)
	if previewErr != nil {
		h.renderDetails(w, r, form, key, errs, http.StatusUnprocessableEntity)
		return
	}
	h.render(w, r, "pages/installments/wizard.html", "New installment", map[string]any{
		"Step":         step,
		"Steps":        wizardSteps,
		"Form":         form,
		"Key":          key,
		"Distribution": dist,
		"Errors":       errs,
	}, http.StatusUnprocessableEntity)
}

func (h *Handler) renderDetails(w http.ResponseWriter, r *http.Request, form DefinitionInput, key string, errs formErrors, status int) {
	projectOptions, err := h.projectOptions(r)
	if err != nil {
		h.serverError(w, "list projects", err)
		return
	}
	h.render(w, r, "pages/installments/wizard.html", "New installment", map[string]any{
		"Step":     1,
		"Steps":    wizardSteps,
		"Form":     form,
		"Key":      key,
		"Projects": projectOptions,
		"Errors":   errs,
	}, status)
}

func parseDefinitionForm(r *http.Request) (DefinitionInput, formErrors) {
	errs := formErrors{}
	form := DefinitionInput{Title: strings.TrimSpace(r.PostFormValue("title"))}
	projectID, err := shared.ParseID(r.PostFormValue("project_id"))
	if err != nil {
		errs["ProjectID"] = "Choose a project."
	}
	form.ProjectID = projectID
	due, err := shared.ParseDate(r.PostFormValue("due_date"))
	if err != nil {
		errs["DueDate"] = "Enter a date as YYYY-MM-DD."
	}
	form.DueDate = due
	amount, err := shared.ParseAmount(r.PostFormValue("amount"))
	if err != nil {
		errs["Amount"] = "Enter an amount."
	}
	form.Amount = amount
	return form, errs
}

func (h *Handler) projectOptions(r *http.Request) ([]projects.Project, error) {
	if h.projects == nil {
		return nil, nil
	}
	items, _, err := h.projects.List(r.Context(), projects.ListFilter{PerPage: 200})
	return items, err
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
