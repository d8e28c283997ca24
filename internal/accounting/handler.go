package accounting

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/estatebook/estatebook/internal/accounting/export"
	"github.com/estatebook/estatebook/internal/platform/httpx"
	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/view"
)

// manualLineRows is the number of line rows offered by the journal form.
const manualLineRows = 6

// Handler wires the chart of accounts, the books and the statements.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	pdf       *export.PDFExporter
	now       func() time.Time
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware, pdf *export.PDFExporter) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac, pdf: pdf, now: time.Now}
}

// MountRoutes registers HTTP routes for the accounting module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAccountingView))
		r.Get("/accounts", h.listAccounts)
		r.Get("/mappings", h.listMappings)
		r.Get("/journal", h.showDaybook)
		r.Get("/journal/{id}", h.showEntry)
		r.Get("/ledger/{level}", h.showLedger)
		r.Get("/reports/trial-balance", h.showTrialBalance)
		r.Get("/reports/pl", h.showProfitAndLoss)
		r.Get("/reports/bs", h.showBalanceSheet)
		r.Get("/integrity", h.showIntegrity)
		r.Get("/api/ledger/{level}", h.apiLedger)
		r.Get("/api/trial-balance", h.apiTrialBalance)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAccountingView, shared.PermReportsExport))
		r.Get("/journal/export", h.exportDaybook)
		r.Get("/ledger/{level}/export", h.exportLedger)
		r.Get("/reports/{report}/export", h.exportReport)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAccountingEdit))
		r.Get("/accounts/new", h.showAccountForm)
		r.Post("/accounts", h.createAccount)
		r.Post("/accounts/seed", h.seedChart)
		r.Get("/accounts/{id}/edit", h.showEditAccount)
		r.Post("/accounts/{id}", h.updateAccount)
		r.Post("/mappings", h.setMapping)
		r.Get("/journal/new", h.showJournalForm)
		r.Post("/journal", h.postJournal)
		r.Post("/journal/{id}/reverse", h.reverseJournal)
	})
}

type formErrors map[string]string

var ledgerLevels = map[string]int{
	"general":    LevelGeneral,
	"subsidiary": LevelSubsidiary,
	"detail":     LevelDetail,
}

// parseFilter reads from/to query parameters. With monthDefault an empty
// window becomes the current month.
func (h *Handler) parseFilter(q url.Values, monthDefault bool) (JournalFilter, error) {
	var f JournalFilter
	from, err := shared.ParseOptionalDate(q.Get("from"))
	if err != nil {
		return f, err
	}
	to, err := shared.ParseOptionalDate(q.Get("to"))
	if err != nil {
		return f, err
	}
	if from != nil {
		f.From = *from
	}
	if to != nil {
		f.To = *to
	}
	if monthDefault && from == nil && to == nil {
		today := shared.DateOnly(h.now())
		f.From = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		f.To = today
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, shared.NewUserError("The end date must not be before the start date.")
	}
	return f, nil
}

func filterQuery(f JournalFilter) url.Values {
	v := url.Values{}
	if !f.From.IsZero() {
		v.Set("from", f.From.Format(shared.DateLayout))
	}
	if !f.To.IsZero() {
		v.Set("to", f.To.Format(shared.DateLayout))
	}
	return v
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.serverError(w, "list accounts", err)
		return
	}
	h.render(w, r, "pages/accounting/accounts.html", "Chart of accounts", map[string]any{
		"Accounts": accounts,
		"Errors":   formErrors{},
	}, http.StatusOK)
}

func (h *Handler) showAccountForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/accounting/account_form.html", "New account", map[string]any{
		"Form":   AccountInput{IsActive: true},
		"Errors": formErrors{},
	}, http.StatusOK)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := AccountInput{Code: r.PostFormValue("code"), Name: r.PostFormValue("name"), IsActive: true}
	actorID, _ := shared.CurrentUserID(r.Context())
	acc, err := h.service.CreateAccount(r.Context(), actorID, in)
	if err != nil {
		errs := formErrors(shared.ValidationMessages(err))
		if !shared.IsUserError(err) && len(errs) == 1 && errs["general"] != "" {
			h.logger.Error("create account", slog.Any("error", err))
		}
		h.render(w, r, "pages/accounting/account_form.html", "New account", map[string]any{"Form": in, "Errors": errs}, http.StatusUnprocessableEntity)
		return
	}
	view.RedirectWithFlash(w, r, "/accounting/accounts", shared.FlashSuccess, "Account "+acc.Code+" created")
}

func (h *Handler) showEditAccount(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	acc, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.serverError(w, "get account", err)
		return
	}
	h.render(w, r, "pages/accounting/account_form.html", "Edit account", map[string]any{
		"Account": acc,
		"Form":    AccountInput{Code: acc.Code, Name: acc.Name, IsActive: acc.IsActive},
		"Errors":  formErrors{},
	}, http.StatusOK)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := AccountInput{Name: r.PostFormValue("name"), IsActive: r.PostFormValue("is_active") == "1"}
	actorID, _ := shared.CurrentUserID(r.Context())
	if err := h.service.UpdateAccount(r.Context(), actorID, id, in); err != nil {
		if !shared.IsUserError(err) {
			h.logger.Error("update account", slog.Int64("account_id", id), slog.Any("error", err))
		}
		view.RedirectWithFlash(w, r, "/accounting/accounts", shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, "/accounting/accounts", shared.FlashSuccess, "Account updated")
}

func (h *Handler) seedChart(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.SeedChart(r.Context(), DefaultChart())
	if err != nil {
		h.logger.Error("seed chart", slog.Any("error", err))
		view.RedirectWithFlash(w, r, "/accounting/accounts", shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	h.logger.Info("chart seeded", slog.Int("created", res.Created), slog.Int("existing", res.Existing), slog.Int("mappings", res.Mappings))
	msg := fmt.Sprintf("Chart seeded: %d accounts created, %d already present, %d mappings installed", res.Created, res.Existing, res.Mappings)
	view.RedirectWithFlash(w, r, "/accounting/accounts", shared.FlashSuccess, msg)
}

func (h *Handler) listMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.service.ListMappings(r.Context())
	if err != nil {
		h.serverError(w, "list mappings", err)
		return
	}
	postable, err := h.service.PostableAccounts(r.Context())
	if err != nil {
		h.serverError(w, "list postable accounts", err)
		return
	}
	h.render(w, r, "pages/accounting/mappings.html", "Account mappings", map[string]any{
		"Mappings": mappings,
		"Defaults": DefaultMappings,
		"Accounts": postable,
		"Errors":   formErrors{},
	}, http.StatusOK)
}

func (h *Handler) setMapping(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	module := strings.ToUpper(strings.TrimSpace(r.PostFormValue("module")))
	key := strings.ToUpper(strings.TrimSpace(r.PostFormValue("key")))
	if module == "" || key == "" {
		view.RedirectWithFlash(w, r, "/accounting/mappings", shared.FlashError, "Module and key are required")
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	if err := h.service.SetMapping(r.Context(), actorID, module, key, r.PostFormValue("code")); err != nil {
		if !shared.IsUserError(err) && !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("set mapping", slog.String("module", module), slog.String("key", key), slog.Any("error", err))
		}
		view.RedirectWithFlash(w, r, "/accounting/mappings", shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, "/accounting/mappings", shared.FlashSuccess, "Mapping "+module+"/"+key+" saved")
}

func (h *Handler) showDaybook(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r.URL.Query(), true)
	if err != nil {
		h.render(w, r, "pages/accounting/daybook.html", "Daybook", map[string]any{
			"Filter": filter,
			"Errors": formErrors{"general": dateErrorMessage(err)},
		}, http.StatusBadRequest)
		return
	}
	report, err := h.service.Daybook(r.Context(), filter)
	if err != nil {
		h.serverError(w, "load daybook", err)
		return
	}
	h.render(w, r, "pages/accounting/daybook.html", "Daybook", map[string]any{
		"Filter": filter,
		"Report": report,
		"Query":  filterQuery(filter).Encode(),
		"Errors": formErrors{},
	}, http.StatusOK)
}

func (h *Handler) showEntry(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	entry, err := h.service.GetJournal(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.serverError(w, "get journal", err)
		return
	}
	debit, credit := entry.Totals()
	reversalID, err := h.service.EntryForSource(r.Context(), entry.SourceModule+reversalSuffix, entry.SourceID)
	if err != nil {
		h.logger.Warn("lookup reversal", slog.Int64("entry_id", id), slog.Any("error", err))
	}
	h.render(w, r, "pages/accounting/entry.html", fmt.Sprintf("Journal entry %d", entry.Number), map[string]any{
		"Entry":      entry,
		"Debit":      debit,
		"Credit":     credit,
		"ReversalID": reversalID,
		"Reversible": reversalID == 0 && !strings.HasSuffix(entry.SourceModule, reversalSuffix),
		"Today":      shared.DateOnly(h.now()),
		"Errors":     formErrors{},
	}, http.StatusOK)
}

type journalFormLine struct {
	AccountCode string
	Description string
	Debit       string
	Credit      string
}

type journalForm struct {
	Date  string
	Memo  string
	Key   string
	Lines []journalFormLine
}

func (h *Handler) showJournalForm(w http.ResponseWriter, r *http.Request) {
	form := journalForm{
		Date:  shared.DateOnly(h.now()).Format(shared.DateLayout),
		Key:   uuid.NewString(),
		Lines: make([]journalFormLine, manualLineRows),
	}
	h.renderJournalForm(w, r, form, formErrors{}, http.StatusOK)
}

func (h *Handler) renderJournalForm(w http.ResponseWriter, r *http.Request, form journalForm, errs formErrors, status int) {
	accounts, err := h.service.PostableAccounts(r.Context())
	if err != nil {
		h.serverError(w, "list postable accounts", err)
		return
	}
	for len(form.Lines) < manualLineRows {
		form.Lines = append(form.Lines, journalFormLine{})
	}
	h.render(w, r, "pages/accounting/journal_form.html", "Manual journal entry", map[string]any{
		"Form":     form,
		"Accounts": accounts,
		"Errors":   errs,
	}, status)
}

// parseJournalForm reads the repeated line fields; rows left blank are
// dropped.
func parseJournalForm(r *http.Request) (journalForm, PostingInput, formErrors) {
	form := journalForm{
		Date: r.PostFormValue("date"),
		Memo: strings.TrimSpace(r.PostFormValue("memo")),
		Key:  r.PostFormValue("entry_key"),
	}
	errs := formErrors{}
	input := PostingInput{SourceModule: SourceManual, Memo: form.Memo}

	date, err := shared.ParseDate(form.Date)
	if err != nil {
		errs["Date"] = "Enter a valid date."
	}
	input.Date = date

	key, err := uuid.Parse(strings.TrimSpace(form.Key))
	if err != nil {
		key = uuid.New()
		form.Key = key.String()
	}
	input.SourceID = key

	codes := r.PostForm["account_code"]
	descs := r.PostForm["line_description"]
	debits := r.PostForm["debit"]
	credits := r.PostForm["credit"]
	at := func(values []string, i int) string {
		if i < len(values) {
			return strings.TrimSpace(values[i])
		}
		return ""
	}
	for i := range codes {
		line := journalFormLine{AccountCode: at(codes, i), Description: at(descs, i), Debit: at(debits, i), Credit: at(credits, i)}
		form.Lines = append(form.Lines, line)
		if line.AccountCode == "" && line.Debit == "" && line.Credit == "" {
			continue
		}
		var debit, credit float64
		if line.Debit != "" {
			if debit, err = shared.ParseAmount(line.Debit); err != nil {
				errs["general"] = fmt.Sprintf("Line %d: enter a valid debit amount.", i+1)
				continue
			}
		}
		if line.Credit != "" {
			if credit, err = shared.ParseAmount(line.Credit); err != nil {
				errs["general"] = fmt.Sprintf("Line %d: enter a valid credit amount.", i+1)
				continue
			}
		}
		input.Lines = append(input.Lines, PostingLineInput{
			AccountCode: line.AccountCode,
			Description: line.Description,
			Debit:       debit,
			Credit:      credit,
		})
	}
	return form, input, errs
}

func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form, input, errs := parseJournalForm(r)
	if len(errs) > 0 {
		h.renderJournalForm(w, r, form, errs, http.StatusUnprocessableEntity)
		return
	}
	input.PostedBy, _ = shared.CurrentUserID(r.Context())
	entry, err := h.service.PostJournal(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrSourceAlreadyLinked) {
			id, lookupErr := h.service.EntryForSource(r.Context(), SourceManual, input.SourceID)
			if lookupErr == nil && id > 0 {
				view.RedirectWithFlash(w, r, "/accounting/journal/"+strconv.FormatInt(id, 10), shared.FlashInfo, "This entry was already posted")
				return
			}
		}
		if !shared.IsUserError(err) && !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("post journal", slog.Any("error", err))
		}
		h.renderJournalForm(w, r, form, formErrors{"general": postingMessage(err)}, http.StatusUnprocessableEntity)
		return
	}
	view.RedirectWithFlash(w, r, "/accounting/journal/"+strconv.FormatInt(entry.ID, 10), shared.FlashSuccess, fmt.Sprintf("Journal entry %d posted", entry.Number))
}

// postingMessage also explains unknown account codes, which UserSafeMessage
// reports as a vanished record.
func postingMessage(err error) string {
	if errors.Is(err, ErrAccountNotFound) {
		return "One of the account codes does not exist."
	}
	return shared.UserSafeMessage(err)
}

func (h *Handler) reverseJournal(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	location := "/accounting/journal/" + strconv.FormatInt(id, 10)
	target, err := shared.ParseOptionalDate(r.PostFormValue("date"))
	if err != nil {
		view.RedirectWithFlash(w, r, location, shared.FlashError, "Enter a valid reversal date")
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	rev, err := h.service.ReverseJournal(r.Context(), ReverseInput{
		EntryID:    id,
		ActorID:    actorID,
		Memo:       strings.TrimSpace(r.PostFormValue("memo")),
		TargetDate: target,
	})
	if err != nil {
		if !shared.IsUserError(err) {
			h.logger.Error("reverse journal", slog.Int64("entry_id", id), slog.Any("error", err))
		}
		view.RedirectWithFlash(w, r, location, shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, "/accounting/journal/"+strconv.FormatInt(rev.ID, 10), shared.FlashSuccess, fmt.Sprintf("Entry reversed by journal entry %d", rev.Number))
}

func (h *Handler) loadLedger(r *http.Request) (LedgerView, string, error) {
	levelName := chi.URLParam(r, "level")
	level, ok := ledgerLevels[levelName]
	if !ok {
		return LedgerView{}, levelName, shared.ErrNotFound
	}
	q := r.URL.Query()
	filter, err := h.parseFilter(q, false)
	if err != nil {
		return LedgerView{Level: level, Filter: filter}, levelName, err
	}
	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		return LedgerView{Level: level, Filter: filter}, levelName, nil
	}
	lv, err := h.service.AccountLedger(r.Context(), level, code, filter)
	if err != nil {
		return LedgerView{Level: level, Filter: filter}, levelName, err
	}
	return lv, levelName, nil
}

func (h *Handler) showLedger(w http.ResponseWriter, r *http.Request) {
	lv, levelName, err := h.loadLedger(r)
	if err != nil && levelName != "" {
		if _, known := ledgerLevels[levelName]; !known {
			http.NotFound(w, r)
			return
		}
	}
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	accounts, listErr := h.service.ListAccounts(r.Context())
	if listErr != nil {
		h.serverError(w, "list accounts", listErr)
		return
	}
	choices := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Level == ledgerLevels[levelName] {
			choices = append(choices, a)
		}
	}
	data := map[string]any{
		"LevelName": levelName,
		"Level":     ledgerLevels[levelName],
		"LevelText": LevelName(ledgerLevels[levelName]),
		"Code":      code,
		"Choices":   choices,
		"Ledger":    lv,
		"HasReport": err == nil && code != "",
		"Query":     url.Values{"code": {code}, "from": {r.URL.Query().Get("from")}, "to": {r.URL.Query().Get("to")}}.Encode(),
		"Errors":    formErrors{},
	}
	status := http.StatusOK
	if err != nil {
		data["Errors"] = formErrors{"general": ledgerMessage(err)}
		status = http.StatusBadRequest
		if errors.Is(err, shared.ErrNotFound) {
			status = http.StatusNotFound
		} else if !shared.IsUserError(err) && !errors.Is(err, shared.ErrInvalidDate) {
			h.logger.Error("load ledger", slog.String("code", code), slog.Any("error", err))
			status = http.StatusInternalServerError
		}
	}
	h.render(w, r, "pages/accounting/ledger.html", LevelName(ledgerLevels[levelName])+" ledger", data, status)
}

func ledgerMessage(err error) string {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return "No account exists with this code."
	case errors.Is(err, shared.ErrInvalidDate):
		return "Dates must use the YYYY-MM-DD format."
	default:
		return shared.UserSafeMessage(err)
	}
}

func dateErrorMessage(err error) string {
	if errors.Is(err, shared.ErrInvalidDate) {
		return "Dates must use the YYYY-MM-DD format."
	}
	return shared.UserSafeMessage(err)
}

func parseLevel(raw string, fallback int) int {
	level, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || level < LevelGroup || level > LevelDetail {
		return fallback
	}
	return level
}

func (h *Handler) showTrialBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	level := parseLevel(q.Get("level"), LevelDetail)
	filter, err := h.parseFilter(q, false)
	if err != nil {
		h.render(w, r, "pages/accounting/trial_balance.html", "Trial balance", map[string]any{
			"Level": level, "Filter": filter, "Errors": formErrors{"general": dateErrorMessage(err)},
		}, http.StatusBadRequest)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), level, filter)
	if err != nil {
		h.serverError(w, "trial balance", err)
		return
	}
	query := filterQuery(filter)
	query.Set("level", strconv.Itoa(level))
	h.render(w, r, "pages/accounting/trial_balance.html", "Trial balance", map[string]any{
		"Level":  level,
		"Levels": []int{LevelGroup, LevelGeneral, LevelSubsidiary, LevelDetail},
		"Filter": filter,
		"Report": tb,
		"Query":  query.Encode(),
		"Errors": formErrors{},
	}, http.StatusOK)
}

func (h *Handler) showProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r.URL.Query(), true)
	if err != nil {
		h.render(w, r, "pages/accounting/pl.html", "Profit and loss", map[string]any{
			"Filter": filter, "Errors": formErrors{"general": dateErrorMessage(err)},
		}, http.StatusBadRequest)
		return
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), filter)
	if err != nil {
		h.serverError(w, "profit and loss", err)
		return
	}
	h.render(w, r, "pages/accounting/pl.html", "Profit and loss", map[string]any{
		"Filter": filter,
		"Report": pl,
		"Query":  filterQuery(filter).Encode(),
		"Errors": formErrors{},
	}, http.StatusOK)
}

func (h *Handler) asOf(q url.Values) (time.Time, error) {
	asOf, err := shared.ParseOptionalDate(q.Get("as_of"))
	if err != nil {
		return time.Time{}, err
	}
	if asOf == nil {
		return shared.DateOnly(h.now()), nil
	}
	return *asOf, nil
}

func (h *Handler) showBalanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r.URL.Query())
	if err != nil {
		h.render(w, r, "pages/accounting/bs.html", "Balance sheet", map[string]any{
			"AsOf": shared.DateOnly(h.now()), "Errors": formErrors{"general": dateErrorMessage(err)},
		}, http.StatusBadRequest)
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), asOf)
	if err != nil {
		h.serverError(w, "balance sheet", err)
		return
	}
	h.render(w, r, "pages/accounting/bs.html", "Balance sheet", map[string]any{
		"AsOf":   asOf,
		"Report": bs,
		"Query":  url.Values{"as_of": {asOf.Format(shared.DateLayout)}}.Encode(),
		"Errors": formErrors{},
	}, http.StatusOK)
}

func (h *Handler) showIntegrity(w http.ResponseWriter, r *http.Request) {
	issues, err := h.service.CheckIntegrity(r.Context())
	if err != nil {
		h.serverError(w, "check integrity", err)
		return
	}
	h.render(w, r, "pages/accounting/integrity.html", "Ledger integrity", map[string]any{
		"Issues": issues,
		"Errors": formErrors{},
	}, http.StatusOK)
}

func (h *Handler) exportDaybook(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r.URL.Query(), true)
	if err != nil {
		http.Error(w, dateErrorMessage(err), http.StatusBadRequest)
		return
	}
	report, err := h.service.Daybook(r.Context(), filter)
	if err != nil {
		h.serverError(w, "load daybook", err)
		return
	}
	name := "daybook-" + windowLabel(filter)
	if r.URL.Query().Get("format") == "pdf" {
		h.writePDF(w, r, "print/daybook.html", name, export.PrintData{Title: "Daybook", Subtitle: windowLabel(filter), Data: report})
		return
	}
	var buf bytes.Buffer
	if err := export.WriteDaybookCSV(&buf, report); err != nil {
		h.serverError(w, "write daybook csv", err)
		return
	}
	writeCSV(w, name, buf.Bytes())
}

func (h *Handler) exportLedger(w http.ResponseWriter, r *http.Request) {
	lv, levelName, err := h.loadLedger(r)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if !shared.IsUserError(err) && !errors.Is(err, shared.ErrInvalidDate) {
			h.serverError(w, "load ledger", err)
			return
		}
		http.Error(w, ledgerMessage(err), http.StatusBadRequest)
		return
	}
	if lv.Account.Code == "" {
		http.Error(w, "account code required", http.StatusBadRequest)
		return
	}
	name := fmt.Sprintf("%s-ledger-%s-%s", levelName, lv.Account.Code, windowLabel(lv.Filter))
	if r.URL.Query().Get("format") == "pdf" {
		title := fmt.Sprintf("%s ledger %s %s", LevelName(lv.Level), lv.Account.Code, lv.Account.Name)
		h.writePDF(w, r, "print/ledger.html", name, export.PrintData{Title: title, Subtitle: windowLabel(lv.Filter), Data: lv})
		return
	}
	var buf bytes.Buffer
	if err := export.WriteLedgerCSV(&buf, lv.Report); err != nil {
		h.serverError(w, "write ledger csv", err)
		return
	}
	writeCSV(w, name, buf.Bytes())
}

func (h *Handler) exportReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pdf := q.Get("format") == "pdf"
	var buf bytes.Buffer
	switch chi.URLParam(r, "report") {
	case "trial-balance":
		level := parseLevel(q.Get("level"), LevelDetail)
		filter, err := h.parseFilter(q, false)
		if err != nil {
			http.Error(w, dateErrorMessage(err), http.StatusBadRequest)
			return
		}
		tb, err := h.service.TrialBalance(r.Context(), level, filter)
		if err != nil {
			h.serverError(w, "trial balance", err)
			return
		}
		name := "trial-balance-" + windowLabel(filter)
		if pdf {
			h.writePDF(w, r, "print/trial_balance.html", name, export.PrintData{Title: "Trial balance", Subtitle: windowLabel(filter), Data: tb})
			return
		}
		if err := export.WriteTrialBalanceCSV(&buf, tb); err != nil {
			h.serverError(w, "write trial balance csv", err)
			return
		}
		writeCSV(w, name, buf.Bytes())
	case "pl":
		filter, err := h.parseFilter(q, true)
		if err != nil {
			http.Error(w, dateErrorMessage(err), http.StatusBadRequest)
			return
		}
		pl, err := h.service.ProfitAndLoss(r.Context(), filter)
		if err != nil {
			h.serverError(w, "profit and loss", err)
			return
		}
		name := "profit-and-loss-" + windowLabel(filter)
		if pdf {
			h.writePDF(w, r, "print/pl.html", name, export.PrintData{Title: "Profit and loss", Subtitle: windowLabel(filter), Data: pl})
			return
		}
		if err := export.WriteProfitAndLossCSV(&buf, pl); err != nil {
			h.serverError(w, "write pl csv", err)
			return
		}
		writeCSV(w, name, buf.Bytes())
	case "bs":
		asOf, err := h.asOf(q)
		if err != nil {
			http.Error(w, dateErrorMessage(err), http.StatusBadRequest)
			return
		}
		bs, err := h.service.BalanceSheet(r.Context(), asOf)
		if err != nil {
			h.serverError(w, "balance sheet", err)
			return
		}
		label := asOf.Format(shared.DateLayout)
		if pdf {
			h.writePDF(w, r, "print/bs.html", "balance-sheet-"+label, export.PrintData{Title: "Balance sheet", Subtitle: "As of " + label, Data: bs})
			return
		}
		if err := export.WriteBalanceSheetCSV(&buf, bs); err != nil {
			h.serverError(w, "write bs csv", err)
			return
		}
		writeCSV(w, "balance-sheet-"+label, buf.Bytes())
	default:
		http.NotFound(w, r)
	}
}

func windowLabel(f JournalFilter) string {
	from, to := "start", "now"
	if !f.From.IsZero() {
		from = f.From.Format(shared.DateLayout)
	}
	if !f.To.IsZero() {
		to = f.To.Format(shared.DateLayout)
	}
	return from + "_" + to
}

func writeCSV(w http.ResponseWriter, name string, body []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	_, _ = w.Write(body)
}

func (h *Handler) writePDF(w http.ResponseWriter, r *http.Request, template, name string, data export.PrintData) {
	if !h.pdf.Enabled() {
		http.Error(w, "PDF export is not configured", http.StatusServiceUnavailable)
		return
	}
	pdf, err := h.pdf.Render(r.Context(), template, data)
	if err != nil {
		h.logger.Error("render pdf", slog.String("template", template), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".pdf"))
	_, _ = w.Write(pdf)
}

// apiError maps accounting errors onto the JSON problem sentinels.
func apiError(err error) error {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return fmt.Errorf("%s: %w", err.Error(), httpx.ErrNotFound)
	case errors.Is(err, shared.ErrInvalidDate), shared.IsUserError(err):
		return fmt.Errorf("%s: %w", shared.UserSafeMessage(err), httpx.ErrValidation)
	default:
		return err
	}
}

func (h *Handler) apiLedger(w http.ResponseWriter, r *http.Request) {
	lv, _, err := h.loadLedger(r)
	if err == nil && lv.Account.Code == "" {
		err = fmt.Errorf("code required: %w", httpx.ErrValidation)
	}
	if err != nil {
		httpx.RespondError(w, r, apiError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, lv)
}

func (h *Handler) apiTrialBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := h.parseFilter(q, false)
	if err != nil {
		httpx.RespondError(w, r, apiError(err))
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), parseLevel(q.Get("level"), LevelDetail), filter)
	if err != nil {
		h.logger.Error("trial balance", slog.Any("error", err))
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"report": tb, "balanced": tb.Balanced()})
}

func (h *Handler) serverError(w http.ResponseWriter, what string, err error) {
	h.logger.Error(what, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	viewData := view.Base(r, h.csrf, title)
	viewData.Data = data
	if err := h.templates.Render(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}
