package shared

import (
	"math"
	"net/url"
	"strconv"
)

// DefaultPerPage is used when a listing does not ask for a page size.
const DefaultPerPage = 25

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// PageFromQuery reads ?page= falling back to the first page.
func PageFromQuery(q url.Values) int {
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// Offset returns the SQL offset for the current page.
func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a next page exists.
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

// PrevPage returns the previous page number.
func (p Pagination) PrevPage() int { return p.Page - 1 }

// NextPage returns the next page number.
func (p Pagination) NextPage() int { return p.Page + 1 }

// PageBase renders a listing URL prefix that the pagination partial can
// append "page=N" to, keeping the active filters.
func PageBase(path string, filters url.Values) string {
	for k, v := range filters {
		if len(v) == 0 || v[0] == "" || k == "page" {
			delete(filters, k)
		}
	}
	if len(filters) == 0 {
		return path + "?"
	}
	return path + "?" + filters.Encode() + "&"
}
