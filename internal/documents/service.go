package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/estatebook/estatebook/internal/shared"
)

// AuditPort records document events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service stores uploaded files and their metadata.
type Service struct {
	repo     Repository
	store    Store
	audit    AuditPort
	tx       shared.TxRunner
	maxBytes int64
	validate *validator.Validate
}

// NewService builds Service instance. maxBytes caps a single upload.
func NewService(repo Repository, store Store, audit AuditPort, tx shared.TxRunner, maxBytes int64) *Service {
	if tx == nil {
		tx = shared.NoTx{}
	}
	return &Service{repo: repo, store: store, audit: audit, tx: tx, maxBytes: maxBytes, validate: validator.New()}
}

// MaxBytes reports the upload limit.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload sniffs, stores and registers a file. The file is removed again
// when the metadata cannot be saved.
func (s *Service) Upload(ctx context.Context, actorID int64, in UploadInput) (Document, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.FileName = cleanFileName(in.FileName)
	if in.Title == "" {
		in.Title = in.FileName
	}
	if err := s.validate.Struct(in); err != nil {
		return Document{}, FieldErrors(shared.ValidationMessages(err))
	}
	if in.ProjectID == nil && in.UserID == nil {
		return Document{}, FieldErrors{"ProjectID": "Attach the document to a project or a member."}
	}
	if in.Content == nil {
		return Document{}, ErrEmptyFile
	}

	data, err := io.ReadAll(io.LimitReader(in.Content, s.maxBytes+1))
	if err != nil {
		return Document{}, fmt.Errorf("documents: read upload: %w", err)
	}
	if len(data) == 0 {
		return Document{}, ErrEmptyFile
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return Document{}, ErrTooLarge
	}
	mtype := mimetype.Detect(data)
	if !Allowed(mtype) {
		return Document{}, ErrUnsupportedType
	}

	stored := uuid.NewString() + mtype.Extension()
	size, err := s.store.Save(stored, bytes.NewReader(data))
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		ProjectID:  in.ProjectID,
		UserID:     in.UserID,
		Title:      in.Title,
		FileName:   in.FileName,
		StoredName: stored,
		MimeType:   baseMIME(mtype.String()),
		SizeBytes:  size,
		UploadedBy: actorID,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		created, err := s.repo.Insert(ctx, doc)
		if err != nil {
			return err
		}
		doc = created
		return s.record(ctx, actorID, "document.upload", doc.ID, map[string]any{
			"file_name": doc.FileName,
			"mime_type": doc.MimeType,
			"size":      doc.SizeBytes,
		})
	})
	if err != nil {
		_ = s.store.Remove(stored)
		return Document{}, err
	}
	return doc, nil
}

// Allowed reports whether the detected type, or one of its parents, is in
// AllowedTypes.
func Allowed(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		for _, a := range AllowedTypes {
			if m.Is(a.MIME) {
				return true
			}
		}
	}
	return false
}

// Open returns the document and its contents. Callers close the reader.
func (s *Service) Open(ctx context.Context, id int64) (Document, io.ReadCloser, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, nil, err
	}
	rc, err := s.store.Open(doc.StoredName)
	if err != nil {
		return Document{}, nil, err
	}
	return doc, rc, nil
}

// Delete removes the row and then the file.
func (s *Service) Delete(ctx context.Context, actorID, id int64) (Document, error) {
	var doc Document
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		return s.record(ctx, actorID, "document.delete", id, map[string]any{"file_name": doc.FileName})
	})
	if err != nil {
		return Document{}, err
	}
	if err := s.store.Remove(doc.StoredName); err != nil {
		return doc, err
	}
	return doc, nil
}

// Get returns document metadata.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of documents.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, shared.Pagination, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = shared.DefaultPerPage
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ForUser lists every document attached to a member.
func (s *Service) ForUser(ctx context.Context, userID int64) ([]Document, error) {
	items, _, err := s.repo.List(ctx, ListFilter{UserID: userID})
	return items, err
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "document",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func cleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '"' {
			return -1
		}
		return r
	}, name)
}

func baseMIME(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		return strings.TrimSpace(m[:i])
	}
	return m
}

// FieldErrors carries per-field validation messages out of the service.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	return "documents: invalid input"
}

// AsFieldErrors extracts validation messages from err.
func AsFieldErrors(err error) (map[string]string, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
