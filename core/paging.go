package core

import "math"

// Paging turns a 1-based page number and a page size into skip/limit values
type Paging struct {
	page int64
	size int64
}

// NewPaging validates size and normalizes page; pages below 1 are read as 1.
// A page whose skip would overflow int64 is invalid.
func NewPaging(page, size int64) (Paging, error) {
	if size <= 0 {
		return Paging{}, invalidf("page size must be positive, got %d", size)
	}
	if page < 1 {
		page = 1
	}
	if page-1 > math.MaxInt64/size {
		return Paging{}, invalidf("page %d of size %d is out of range", page, size)
	}
	return Paging{page: page, size: size}, nil
}

// Clamp caps the page size at max. A non-positive max leaves it unchanged.
func (p Paging) Clamp(max int64) Paging {
	if max > 0 && p.size > max {
		p.size = max
	}
	return p
}

func (p Paging) Page() int64  { return p.page }
func (p Paging) Size() int64  { return p.size }
func (p Paging) Skip() int64  { return (p.page - 1) * p.size }
func (p Paging) Limit() int64 { return p.size }

// TotalPages is ceil(total/size), zero when there are no items
func (p Paging) TotalPages(total int64) int64 {
	if total <= 0 || p.size <= 0 {
		return 0
	}
	return (total + p.size - 1) / p.size
}

// PagingResult is one page of decoded documents along with the totals for
// the whole filtered set
type PagingResult[T any] struct {
	TotalItems int64 `json:"total_items"`
	TotalPages int64 `json:"total_pages"`
	Page       int64 `json:"page"`
	Size       int64 `json:"size"`
	Items      []T   `json:"items"`
}
