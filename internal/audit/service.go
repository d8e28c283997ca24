// Package audit lists and exports the audit trail written by every
// state-changing service.
package audit

import (
	"context"
	"errors"

	"github.com/estatebook/estatebook/internal/shared"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
	// maxExportRows bounds a CSV export; narrow the filters for more.
	maxExportRows = 50000
)

var (
	// ErrNoRepository is returned by a zero Service.
	ErrNoRepository = errors.New("audit: repository not configured")
	// ErrExportTooLarge rejects an export that would not fit in one file.
	ErrExportTooLarge = shared.NewUserError("Too many entries match to export at once. Narrow the date range or filters.")
)

// Service reads the trail.
type Service struct {
	repo      Repository
	exportCap int
}

// NewService builds a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, exportCap: maxExportRows}
}

// ClampPageSize applies the default page size to n <= 0 and caps it.
func ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return defaultPageSize
	case n > maxPageSize:
		return maxPageSize
	default:
		return n
	}
}

// Timeline returns one page of entries. One extra row is fetched to learn
// whether a next page exists.
func (s *Service) Timeline(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, ErrNoRepository
	}
	size := ClampPageSize(filters.PageSize)
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	entries, err := s.repo.Window(ctx, filters, size+1, (page-1)*size)
	if err != nil {
		return Result{}, err
	}
	paging := Paging{Page: page, PageSize: size, HasNext: len(entries) > size}
	if paging.HasNext {
		entries = entries[:size]
		paging.NextPage = page + 1
	}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	return Result{Entries: entries, Paging: paging}, nil
}

// Export returns every entry matching filters, ignoring paging. It fails
// with ErrExportTooLarge instead of cutting the file short.
func (s *Service) Export(ctx context.Context, filters Filters) ([]Entry, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	limit := s.exportCap
	if limit <= 0 {
		limit = maxExportRows
	}
	entries, err := s.repo.Window(ctx, filters, limit+1, 0)
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		return nil, ErrExportTooLarge
	}
	return entries, nil
}
