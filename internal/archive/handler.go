package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/view"
)

// Handler serves the archive admin pages.
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

// MountRoutes registers archive routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAll(shared.PermArchiveManage))
	r.Get("/", h.list)
	r.Get("/batches/{id}", h.show)
	r.Post("/batches/{id}/restore", h.restore)
	r.Post("/projects/{id}", h.archiveProject)
	r.Post("/users/{id}", h.archiveUser)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Kind: Kind(strings.ToUpper(q.Get("kind"))), Page: shared.PageFromQuery(q)}
	switch q.Get("state") {
	case "archived":
		restored := false
		filter.Restored = &restored
	case "restored":
		restored := true
		filter.Restored = &restored
	}
	items, page, err := h.service.ListBatches(r.Context(), filter)
	if err != nil {
		h.serverError(w, "list archive batches", err)
		return
	}
	h.render(w, r, "pages/archive/list.html", "Archive", map[string]any{
		"Batches":    items,
		"Pagination": page,
		"PageBase":   shared.PageBase("/archive", url.Values{"kind": {string(filter.Kind)}, "state": {q.Get("state")}}),
		"Kind":       string(filter.Kind),
		"State":      q.Get("state"),
	}, http.StatusOK)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	batch, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.serverError(w, "load archive batch", err)
		return
	}
	h.render(w, r, "pages/archive/show.html", "Archive batch", map[string]any{"Batch": batch}, http.StatusOK)
}

func (h *Handler) archiveProject(w http.ResponseWriter, r *http.Request) {
	h.archive(w, r, KindProject, "/projects/")
}

func (h *Handler) archiveUser(w http.ResponseWriter, r *http.Request) {
	h.archive(w, r, KindUser, "/users/")
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request, kind Kind, back string) {
	subjectID, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	var batch Batch
	if kind == KindProject {
		batch, err = h.service.ArchiveProject(r.Context(), actorID, subjectID)
	} else {
		batch, err = h.service.ArchiveUser(r.Context(), actorID, subjectID)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if !shared.IsUserError(err) {
			h.logger.Error("archive", slog.String("kind", string(kind)), slog.Int64("subject_id", subjectID), slog.Any("error", err))
		}
		view.RedirectWithFlash(w, r, fmt.Sprintf("%s%d", back, subjectID), shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	h.logger.Info("archived",
		slog.String("kind", string(kind)),
		slog.Int64("subject_id", subjectID),
		slog.String("batch", batch.ID.String()),
		slog.Int("rows", batch.RowCount))
	view.RedirectWithFlash(w, r, "/archive/batches/"+batch.ID.String(), shared.FlashSuccess,
		fmt.Sprintf("Archived %s (%d rows).", batch.Label, batch.RowCount))
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	target := "/archive/batches/" + id.String()
	batch, err := h.service.Restore(r.Context(), actorID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if !shared.IsUserError(err) {
			h.logger.Error("restore archive batch", slog.String("batch", id.String()), slog.Any("error", err))
		}
		view.RedirectWithFlash(w, r, target, shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, target, shared.FlashSuccess, "Restored "+batch.Label+".")
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
