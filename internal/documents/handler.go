package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/users"
	"github.com/estatebook/estatebook/internal/view"
)

// ProjectLister feeds the project select.
type ProjectLister interface {
	List(ctx context.Context, filter projects.ListFilter) ([]projects.Project, shared.Pagination, error)
}

// UserLister feeds the member select.
type UserLister interface {
	List(ctx context.Context, filter users.ListFilter) ([]users.User, shared.Pagination, error)
}

// Handler serves document upload and download.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	projects  ProjectLister
	users     UserLister
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, projects ProjectLister, users UserLister, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, projects: projects, users: users, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDocumentsView))
		r.Get("/", h.list)
		r.Get("/{id}/download", h.download)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDocumentsEdit))
		r.Post("/", h.upload)
		r.Post("/{id}/delete", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Page: shared.PageFromQuery(q)}
	filter.ProjectID, _ = shared.ParseOptionalID(q.Get("project_id"))
	filter.UserID, _ = shared.ParseOptionalID(q.Get("user_id"))
	h.renderList(w, r, filter, map[string]string{}, map[string]string{}, http.StatusOK)
}

func (h *Handler) renderList(w http.ResponseWriter, r *http.Request, filter ListFilter, form, errs map[string]string, status int) {
	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.serverError(w, "list documents", err)
		return
	}
	var (
		projectOptions []projects.Project
		userOptions    []users.User
	)
	if h.projects != nil {
		if projectOptions, _, err = h.projects.List(r.Context(), projects.ListFilter{PerPage: 200}); err != nil {
			h.serverError(w, "list projects", err)
			return
		}
	}
	if h.users != nil {
		active := true
		if userOptions, _, err = h.users.List(r.Context(), users.ListFilter{Active: &active, PerPage: 500}); err != nil {
			h.serverError(w, "list users", err)
			return
		}
	}
	types := make([]string, 0, len(AllowedTypes))
	for _, t := range AllowedTypes {
		types = append(types, t.Label)
	}
	h.render(w, r, "pages/documents/list.html", "Documents", map[string]any{
		"Documents":  items,
		"Pagination": page,
		"PageBase": shared.PageBase("/documents", url.Values{
			"project_id": {formatID(filter.ProjectID)},
			"user_id":    {formatID(filter.UserID)},
		}),
		"Projects":  projectOptions,
		"Users":     userOptions,
		"ProjectID": filter.ProjectID,
		"UserID":    filter.UserID,
		"Form":      form,
		"Errors":    errs,
		"Types":     strings.Join(types, ", "),
		"MaxSize":   view.FormatSize(h.service.MaxBytes()),
	}, status)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	// Room for the other form fields on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.service.MaxBytes()+1<<20)
	if err := r.ParseMultipartForm(h.service.MaxBytes()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.renderList(w, r, ListFilter{Page: 1}, map[string]string{}, map[string]string{"File": ErrTooLarge.Error()}, http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	form := map[string]string{
		"title":      r.PostFormValue("title"),
		"project_id": r.PostFormValue("project_id"),
		"user_id":    r.PostFormValue("user_id"),
	}
	errs := map[string]string{}
	in := UploadInput{Title: form["title"]}
	if id, err := shared.ParseOptionalID(form["project_id"]); err != nil {
		errs["ProjectID"] = "Choose a project."
	} else if id > 0 {
		in.ProjectID = &id
	}
	if id, err := shared.ParseOptionalID(form["user_id"]); err != nil {
		errs["UserID"] = "Choose a member."
	} else if id > 0 {
		in.UserID = &id
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		errs["File"] = "Choose a file to upload."
	} else {
		defer file.Close()
		in.FileName = header.Filename
		in.Content = file
	}
	if len(errs) > 0 {
		h.renderList(w, r, ListFilter{Page: 1}, form, errs, http.StatusUnprocessableEntity)
		return
	}

	actorID, _ := shared.CurrentUserID(r.Context())
	doc, err := h.service.Upload(r.Context(), actorID, in)
	if err != nil {
		if fe, ok := AsFieldErrors(err); ok {
			h.renderList(w, r, ListFilter{Page: 1}, form, fe, http.StatusUnprocessableEntity)
			return
		}
		if errors.Is(err, ErrNotFound) {
			h.renderList(w, r, ListFilter{Page: 1}, form, map[string]string{"general": "The project or member no longer exists."}, http.StatusUnprocessableEntity)
			return
		}
		if shared.IsUserError(err) {
			h.renderList(w, r, ListFilter{Page: 1}, form, map[string]string{"File": err.Error()}, http.StatusUnprocessableEntity)
			return
		}
		h.serverError(w, "upload document", err)
		return
	}
	h.logger.Info("document uploaded", slog.Int64("document_id", doc.ID), slog.String("mime_type", doc.MimeType), slog.Int64("size", doc.SizeBytes))
	view.RedirectWithFlash(w, r, "/documents", shared.FlashSuccess, "Uploaded "+doc.Title)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	doc, rc, err := h.service.Open(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.serverError(w, "open document", err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Length", fmt.Sprint(doc.SizeBytes))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("stream document", slog.Int64("document_id", id), slog.Any("error", err))
	}
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	doc, err := h.service.Delete(r.Context(), actorID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if doc.ID == 0 {
			h.serverError(w, "delete document", err)
			return
		}
		// The row is gone; a leftover file is only logged.
		h.logger.Warn("remove document file", slog.Int64("document_id", id), slog.Any("error", err))
	}
	view.RedirectWithFlash(w, r, "/documents", shared.FlashSuccess, "Deleted "+doc.Title)
}

func formatID(id int64) string {
	if id <= 0 {
		return ""
	}
	return fmt.Sprint(id)
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
