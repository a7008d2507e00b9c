// Package pagination holds the page arithmetic shared by list endpoints.
package pagination

import "math"

const DefaultPerPage = 10

// Page is one window of a list together with totals for the whole list.
type Page[T any] struct {
	Items      []T `json:"items"`
	Count      int `json:"count" doc:"Number of total items"`
	TotalPages int `json:"total_pages" doc:"Number of total pages"`
	PerPage    int `json:"per_page" doc:"Items per page"`
}

// Offset returns the number of rows before page (1-based). Offsets past
// math.MaxInt saturate so far pages stay empty.
func Offset(page, perPage int) int {
	if page < 1 {
		page = 1
	}
	if perPage > 0 && page-1 > math.MaxInt/perPage {
		return math.MaxInt
	}
	return (page - 1) * perPage
}

// TotalPages is ceil(count/perPage). A zero perPage counts the visible
// items as one page, or 1 when there are none.
func TotalPages(count, perPage, visible int) int {
	if perPage <= 0 {
		perPage = visible
		if perPage == 0 {
			perPage = 1
		}
	}
	return (count + perPage - 1) / perPage
}

// New builds a page, never returning nil Items.
func New[T any](items []T, count, perPage int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		Count:      count,
		TotalPages: TotalPages(count, perPage, len(items)),
		PerPage:    perPage,
	}
}
