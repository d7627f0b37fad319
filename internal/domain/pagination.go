package domain

import "fmt"

// Pagination defaults
const (
	DefaultPageSize = 20
	MaxPageSize     = 1000
)

// PageRequest selects one page of results, either by page number or by
// cursor. A non-empty Cursor switches to cursor mode and Page is ignored.
type PageRequest struct {
	Page   int
	Size   int
	Cursor string
}

// Normalize applies the default size and clamps to MaxPageSize.
func (p PageRequest) Normalize() (PageRequest, error) {
	if p.Page < 0 {
		return p, fmt.Errorf("%w: page must not be negative", ErrInvalidPage)
	}
	if p.Size < 0 {
		return p, fmt.Errorf("%w: size must not be negative", ErrInvalidPage)
	}
	if p.Size == 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p, nil
}

// Offset is the number of documents skipped in offset mode.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// IsCursor reports whether the request pages by cursor.
func (p PageRequest) IsCursor() bool {
	return p.Cursor != ""
}

// PageResult is one page of T. TotalElements is -1 when the total is not known.
type PageResult[T any] struct {
	Content       []T
	Page          int
	Size          int
	TotalElements int64
	HasNext       bool
	NextCursor    string
}

// NewOffsetPage builds a page for offset paging. A next page exists when
// this one is full and more elements remain past it.
func NewOffsetPage[T any](content []T, req PageRequest, total int64) *PageResult[T] {
	return &PageResult[T]{
		Content:       content,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		HasNext:       len(content) == req.Size && int64((req.Page+1)*req.Size) < total,
	}
}

// NewCursorPage builds a page for cursor paging. A full page is assumed
// to have a successor, reachable via nextCursor.
func NewCursorPage[T any](content []T, req PageRequest, nextCursor string) *PageResult[T] {
	return &PageResult[T]{
		Content:       content,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: -1,
		HasNext:       nextCursor != "",
		NextCursor:    nextCursor,
	}
}

// TotalPages returns the page count, or 0 if the total is unknown.
func (r *PageResult[T]) TotalPages() int {
	if r.Size == 0 || r.TotalElements < 0 {
		return 0
	}
	return int((r.TotalElements + int64(r.Size) - 1) / int64(r.Size))
}

// MapPage converts a page of A into a page of B.
func MapPage[A, B any](in *PageResult[A], fn func(A) B) *PageResult[B] {
	out := make([]B, len(in.Content))
	for i, v := range in.Content {
		out[i] = fn(v)
	}
	return &PageResult[B]{
		Content:       out,
		Page:          in.Page,
		Size:          in.Size,
		TotalElements: in.TotalElements,
		HasNext:       in.HasNext,
		NextCursor:    in.NextCursor,
	}
}
