package audit

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/view"
)

const (
	defaultRange  = 7 * 24 * time.Hour
	maxRangeDays  = 366
	exportLimit   = 10
	exportWindow  = time.Minute
	dateParamForm = "2006-01-02"
)

// TrailService is the part of Service the handler needs.
type TrailService interface {
	Timeline(ctx context.Context, filters Filters) (Result, error)
	Export(ctx context.Context, filters Filters) ([]Entry, error)
}

// Handler serves the audit trail pages.
type Handler struct {
	logger    *slog.Logger
	service   TrailService
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	now       func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service TrailService, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac, now: time.Now}
}

// MountRoutes registers the trail and its rate-limited CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAuditView))
		r.Get("/", h.timeline)
		r.With(httprate.Limit(exportLimit, exportWindow,
			httprate.WithKeyFuncs(exportKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			}),
		)).Get("/export.csv", h.export)
	})
}

func exportKey(r *http.Request) (string, error) {
	if id, ok := shared.CurrentUserID(r.Context()); ok {
		return "user:" + strconv.FormatInt(id, 10), nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, errs := h.parseFilters(r.URL.Query())
	data := map[string]any{
		"Filters":   filters,
		"Errors":    errs,
		"ExportURL": template.URL("/audit/export.csv?" + filterQuery(filters, 0)),
	}
	if len(errs) > 0 {
		data["Result"] = Result{}
		h.render(w, r, data, http.StatusBadRequest)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.serverError(w, "load audit trail", err)
		return
	}
	data["Result"] = result
	if result.Paging.PrevPage > 0 {
		data["NewerURL"] = template.URL("/audit?" + filterQuery(filters, result.Paging.PrevPage))
	}
	if result.Paging.HasNext {
		data["OlderURL"] = template.URL("/audit?" + filterQuery(filters, result.Paging.NextPage))
	}
	h.render(w, r, data, http.StatusOK)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, errs := h.parseFilters(r.URL.Query())
	if len(errs) > 0 {
		http.Error(w, errs["general"], http.StatusBadRequest)
		return
	}
	entries, err := h.service.Export(r.Context(), filters)
	if errors.Is(err, ErrExportTooLarge) {
		http.Error(w, shared.UserSafeMessage(err), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		h.serverError(w, "export audit trail", err)
		return
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, entries); err != nil {
		h.serverError(w, "encode audit csv", err)
		return
	}
	name := "audit-" + filters.From.Format(dateParamForm) + "-" + filters.To.Format(dateParamForm) + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("write audit csv", slog.Any("error", err))
	}
}

// parseFilters defaults to the last seven days and rejects ranges over a year.
func (h *Handler) parseFilters(q url.Values) (Filters, map[string]string) {
	errs := map[string]string{}
	filters := Filters{
		Actor:  strings.TrimSpace(q.Get("actor")),
		Entity: strings.TrimSpace(q.Get("entity")),
		Action: strings.TrimSpace(q.Get("action")),
		Page:   shared.PageFromQuery(q),
	}
	size, _ := strconv.Atoi(strings.TrimSpace(q.Get("size")))
	filters.PageSize = ClampPageSize(size)
	today := shared.DateOnly(h.now())
	filters.To = today
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, err := shared.ParseDate(raw)
		if err != nil {
			errs["general"] = "Enter dates as YYYY-MM-DD."
			return filters, errs
		}
		filters.To = to
	}
	filters.From = filters.To.Add(-defaultRange)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, err := shared.ParseDate(raw)
		if err != nil {
			errs["general"] = "Enter dates as YYYY-MM-DD."
			return filters, errs
		}
		filters.From = from
	}
	switch {
	case filters.From.After(filters.To):
		errs["general"] = "The start date must not be after the end date."
	case shared.DaysBetween(filters.From, filters.To) > maxRangeDays:
		errs["general"] = "Choose a range of at most one year."
	}
	return filters, errs
}

func filterQuery(f Filters, page int) string {
	v := url.Values{}
	if page > 1 {
		v.Set("page", strconv.Itoa(page))
	}
	if f.PageSize > 0 && f.PageSize != defaultPageSize {
		v.Set("size", strconv.Itoa(f.PageSize))
	}
	v.Set("from", f.From.Format(dateParamForm))
	v.Set("to", f.To.Format(dateParamForm))
	for key, val := range map[string]string{"actor": f.Actor, "entity": f.Entity, "action": f.Action} {
		if val != "" {
			v.Set(key, val)
		}
	}
	return v.Encode()
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data map[string]any, status int) {
	viewData := view.Base(r, h.csrf, "Audit trail")
	viewData.Data = data
	if err := h.templates.Render(w, status, "pages/audit/trail.html", viewData); err != nil {
		h.logger.Error("render template", slog.String("template", "pages/audit/trail.html"), slog.Any("error", err))
	}
}
