package gomanager

import "github.com/samber/lo"

// Pagination is a page of items together with the size of the whole result
// set. Page is 1-based; Total counts items across all pages.
type Pagination[T any] struct {
	Items   []T `json:"items"`
	Page    int `json:"page"`
	PerPage int `json:"perPage"`
	Total   int `json:"total"`
}

// NewPagination wraps an already sliced window of items.
func NewPagination[T any](items []T, page, perPage, total int) *Pagination[T] {
	return &Pagination[T]{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
	}
}

// PaginationFromList slices the page out of a fully materialized list.
// Pages past the end of the list are empty.
func PaginationFromList[T any](items []T, page, perPage int) *Pagination[T] {
	start := perPage * (page - 1)
	window := make([]T, 0, max(perPage, 0))
	if start >= 0 && start < len(items) {
		window = append(window, items[start:min(start+perPage, len(items))]...)
	}

	return NewPagination(window, page, perPage, len(items))
}

// Pages returns the number of pages. There is always at least one page,
// even for an empty result set.
func (p *Pagination[T]) Pages() int {
	if p.PerPage <= 0 {
		return 1
	}

	return max(1, (p.Total+p.PerPage-1)/p.PerPage)
}

func (p *Pagination[T]) HasPrev() bool {
	return p.Page > 1
}

func (p *Pagination[T]) HasNext() bool {
	return p.Page < p.Pages()
}

// Offset returns the number of items preceding the page.
func (p *Pagination[T]) Offset() int {
	return lo.Ternary(p.Page > 1, p.PerPage*(p.Page-1), 0)
}
