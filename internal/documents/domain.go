package documents

import (
	"io"
	"time"

	"github.com/estatebook/estatebook/internal/shared"
)

// Document is an uploaded file attached to a project, a member or both.
type Document struct {
	ID          int64
	ProjectID   *int64
	ProjectName string
	UserID      *int64
	UserName    string
	Title       string
	FileName    string
	StoredName  string
	MimeType    string
	SizeBytes   int64
	UploadedBy  int64
	CreatedAt   time.Time
}

// UploadInput describes a file being uploaded.
type UploadInput struct {
	ProjectID *int64
	UserID    *int64
	Title     string `validate:"max=200"`
	FileName  string `validate:"required,max=255"`
	Content   io.Reader
}

// AllowedTypes lists the accepted content types with a label for the form.
var AllowedTypes = []AllowedType{
	{MIME: "application/pdf", Label: "PDF"},
	{MIME: "image/png", Label: "PNG"},
	{MIME: "image/jpeg", Label: "JPEG"},
	{MIME: "image/webp", Label: "WebP"},
	{MIME: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Label: "Excel"},
	{MIME: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Label: "Word"},
	{MIME: "application/zip", Label: "ZIP"},
}

// AllowedType is one accepted content type.
type AllowedType struct {
	MIME  string
	Label string
}

// ListFilter narrows the document listing.
type ListFilter struct {
	ProjectID int64
	UserID    int64
	Page      int
	PerPage   int
}

var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = shared.ErrNotFound
	// ErrEmptyFile rejects zero-byte uploads.
	ErrEmptyFile = shared.NewUserError("The file is empty.")
	// ErrTooLarge rejects files above the configured size.
	ErrTooLarge = shared.NewUserError("The file is too large.")
	// ErrUnsupportedType rejects content outside AllowedTypes.
	ErrUnsupportedType = shared.NewUserError("This file type is not accepted. Upload a PDF, image, Excel, Word or ZIP file.")
)
