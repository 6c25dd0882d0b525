package api

import (
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Page bounds for list endpoints
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest is the 1-based page a list endpoint was asked for
type PageRequest struct {
	Page     int64
	PageSize int64
}

// ParsePagination reads page and pageSize, clamping anything out of range
func ParsePagination(c *gin.Context) PageRequest {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	size := queryInt(c, "pageSize", DefaultPageSize)
	switch {
	case size < 1:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return PageRequest{Page: page, PageSize: size}
}

func queryInt(c *gin.Context, name string, fallback int64) int64 {
	n, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// Offset is the number of records before this page
func (p PageRequest) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return int((p.Page - 1) * p.PageSize)
}

func (p PageRequest) Limit() int {
	return int(p.PageSize)
}

// PageResponse is the envelope of every paginated list
type PageResponse[T any] struct {
	Data       []T   `json:"data"`
	Page       int64 `json:"page"`
	PageSize   int64 `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int64 `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// NewPageResponse wraps one page of data. An empty result still reports one page.
func NewPageResponse[T any](data []T, page PageRequest, total int64) PageResponse[T] {
	pages := max((total+page.PageSize-1)/page.PageSize, 1)
	return PageResponse[T]{
		Data:       data,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalItems: total,
		TotalPages: pages,
		HasNext:    page.Page < pages,
		HasPrev:    page.Page > 1,
	}
}

// SortRequest names the field a list is ordered by
type SortRequest struct {
	Field      string
	Descending bool
}

// ParseSort reads sortBy and order. Fields outside allowed fall back to defaultField
// and anything but order=asc sorts descending.
func ParseSort(c *gin.Context, defaultField string, allowed ...string) SortRequest {
	field := c.DefaultQuery("sortBy", defaultField)
	if len(allowed) > 0 && !slices.Contains(allowed, field) {
		field = defaultField
	}
	return SortRequest{Field: field, Descending: c.Query("order") != "asc"}
}
