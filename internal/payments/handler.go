package payments

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

	"github.com/estatebook/estatebook/internal/installments"
	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/view"
)

// InstallmentLister feeds the installment picker of the wizard.
type InstallmentLister interface {
	List(ctx context.Context, filter installments.ListFilter) ([]installments.UserInstallment, shared.Pagination, error)
}

// ProjectLister feeds the project filter.
type ProjectLister interface {
	List(ctx context.Context, filter projects.ListFilter) ([]projects.Project, shared.Pagination, error)
}

// Handler serves the payment pages and the record wizard.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	installments InstallmentLister
	projects     ProjectLister
	templates    *view.Engine
	csrf         *shared.CSRFManager
	rbac         rbac.Middleware
	now          func() time.Time
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, installments InstallmentLister, projects ProjectLister, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		installments: installments,
		projects:     projects,
		templates:    templates,
		csrf:         csrf,
		rbac:         rbac,
		now:          time.Now,
	}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPaymentsRecord, shared.PermInstallmentsView))
		r.Get("/", h.list)
		r.Get("/{id}", h.receipt)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPaymentsRecord))
		r.Get("/new", h.wizardStart)
		r.Post("/", h.wizardSubmit)
	})
}

type formErrors map[string]string

var wizardSteps = []string{"Installment", "Amount", "Confirm"}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	errs := formErrors{}
	filter := ListFilter{Page: shared.PageFromQuery(q)}
	filter.ProjectID, _ = shared.ParseOptionalID(q.Get("project_id"))
	filter.UserID, _ = shared.ParseOptionalID(q.Get("user_id"))
	from, err := shared.ParseOptionalDate(q.Get("from"))
	if err != nil {
		errs["From"] = "Enter a date as YYYY-MM-DD."
	}
	to, err := shared.ParseOptionalDate(q.Get("to"))
	if err != nil {
		errs["To"] = "Enter a date as YYYY-MM-DD."
	}
	filter.From, filter.To = from, to

	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.serverError(w, "list payments", err)
		return
	}
	projectOptions, err := h.projectOptions(r)
	if err != nil {
		h.serverError(w, "list projects", err)
		return
	}
	var total float64
	for _, p := range items {
		total += p.Amount
	}
	h.render(w, r, "pages/payments/list.html", "Payments", map[string]any{
		"Payments":   items,
		"Total":      shared.Round2(total),
		"Pagination": page,
		"PageBase": shared.PageBase("/payments", url.Values{
			"project_id": {q.Get("project_id")},
			"user_id":    {q.Get("user_id")},
			"from":       {q.Get("from")},
			"to":         {q.Get("to")},
		}),
		"Projects":  projectOptions,
		"ProjectID": filter.ProjectID,
		"UserID":    filter.UserID,
		"From":      q.Get("from"),
		"To":        q.Get("to"),
		"Errors":    errs,
	}, http.StatusOK)
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	rec, err := h.service.Receipt(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.serverError(w, "load receipt", err)
		return
	}
	h.render(w, r, "pages/payments/receipt.html", "Payment receipt #"+strconv.FormatInt(id, 10), map[string]any{
		"Receipt": rec,
		"Errors":  formErrors{},
	}, http.StatusOK)
}

// wizardStart shows the installment picker, or the amount step when an
// installment is already chosen.
func (h *Handler) wizardStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := uuid.NewString()
	if id, _ := shared.ParseOptionalID(q.Get("installment_id")); id > 0 {
		in := Input{InstallmentID: id, PaidAt: shared.DateOnly(h.now()), Method: MethodBankTransfer}
		h.renderAmount(w, r, in, key, formErrors{}, http.StatusOK)
		return
	}
	filter := installments.ListFilter{Unpaid: true, Page: shared.PageFromQuery(q), PerPage: shared.DefaultPerPage}
	filter.ProjectID, _ = shared.ParseOptionalID(q.Get("project_id"))
	filter.UserID, _ = shared.ParseOptionalID(q.Get("user_id"))
	items, page, err := h.installments.List(r.Context(), filter)
	if err != nil {
		h.serverError(w, "list unpaid installments", err)
		return
	}
	projectOptions, err := h.projectOptions(r)
	if err != nil {
		h.serverError(w, "list projects", err)
		return
	}
	h.render(w, r, "pages/payments/wizard.html", "Record payment", map[string]any{
		"Step":         1,
		"Steps":        wizardSteps,
		"Installments": items,
		"Pagination":   page,
		"PageBase": shared.PageBase("/payments/new", url.Values{
			"project_id": {q.Get("project_id")},
			"user_id":    {q.Get("user_id")},
		}),
		"Projects":  projectOptions,
		"ProjectID": filter.ProjectID,
		"Today":     shared.DateOnly(h.now()),
		"Errors":    formErrors{},
	}, http.StatusOK)
}

func (h *Handler) wizardSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in, errs := parseInput(r)
	key := strings.TrimSpace(r.PostFormValue("wizard_key"))
	if _, err := uuid.Parse(key); err != nil {
		key = uuid.NewString()
	}
	step := r.PostFormValue("step")
	back := r.PostFormValue("back") == "1"
	switch {
	case in.InstallmentID <= 0:
		http.Redirect(w, r, "/payments/new", http.StatusSeeOther)
		return
	case len(errs) > 0:
		h.renderAmount(w, r, in, key, errs, http.StatusUnprocessableEntity)
		return
	case back:
		h.renderAmount(w, r, in, key, formErrors{}, http.StatusOK)
		return
	case step == "3":
		h.recordPayment(w, r, in, key)
		return
	}

	pv, err := h.service.Check(r.Context(), in)
	if err != nil {
		h.renderWizardError(w, r, in, key, err)
		return
	}
	h.render(w, r, "pages/payments/wizard.html", "Record payment", map[string]any{
		"Step":    3,
		"Steps":   wizardSteps,
		"Key":     key,
		"Preview": pv,
		"Errors":  formErrors{},
	}, http.StatusOK)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request, in Input, key string) {
	actorID, _ := shared.CurrentUserID(r.Context())
	rec, err := h.service.Record(r.Context(), actorID, key, in)
	if err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			view.RedirectWithFlash(w, r, "/payments", shared.FlashInfo, "This payment was already recorded")
			return
		}
		h.renderWizardError(w, r, in, key, err)
		return
	}
	msg := "Payment of " + view.FormatMoney(rec.Payment.Amount) + " recorded"
	if rec.Installment.Status == installments.StatusPaid {
		msg += ", installment settled"
	}
	view.RedirectWithFlash(w, r, "/payments/"+strconv.FormatInt(rec.Payment.ID, 10), shared.FlashSuccess, msg)
}

func (h *Handler) renderWizardError(w http.ResponseWriter, r *http.Request, in Input, key string, err error) {
	if errors.Is(err, ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	errs, ok := AsFieldErrors(err)
	if !ok {
		if !shared.IsUserError(err) {
			h.logger.Error("payment wizard", slog.Int64("installment_id", in.InstallmentID), slog.Any("error", err))
		}
		errs = formErrors{"general": shared.UserSafeMessage(err)}
		if errors.Is(err, ErrOverpayment) {
			errs["Amount"] = ErrOverpayment.Error()
		}
	}
	h.renderAmount(w, r, in, key, errs, http.StatusUnprocessableEntity)
}

func (h *Handler) renderAmount(w http.ResponseWriter, r *http.Request, in Input, key string, errs formErrors, status int) {
	inst, err := h.service.installments.Get(r.Context(), in.InstallmentID)
	if err != nil {
		if errors.Is(err, installments.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.serverError(w, "load installment", err)
		return
	}
	h.render(w, r, "pages/payments/wizard.html", "Record payment", map[string]any{
		"Step":        2,
		"Steps":       wizardSteps,
		"Key":         key,
		"Form":        in,
		"Installment": inst,
		"Methods":     Methods,
		"Errors":      errs,
	}, status)
}

func parseInput(r *http.Request) (Input, formErrors) {
	errs := formErrors{}
	in := Input{
		Method:    Method(strings.ToUpper(strings.TrimSpace(r.PostFormValue("method")))),
		Reference: strings.TrimSpace(r.PostFormValue("reference")),
		Note:      strings.TrimSpace(r.PostFormValue("note")),
	}
	in.InstallmentID, _ = shared.ParseOptionalID(r.PostFormValue("installment_id"))
	amount, err := shared.ParseAmount(r.PostFormValue("amount"))
	if err != nil {
		errs["Amount"] = "Enter an amount."
	}
	in.Amount = amount
	paidAt, err := shared.ParseDate(r.PostFormValue("paid_at"))
	if err != nil {
		errs["PaidAt"] = "Enter a date as YYYY-MM-DD."
	}
	in.PaidAt = paidAt
	return in, errs
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
