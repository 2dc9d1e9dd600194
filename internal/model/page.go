package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultItemsPerPage is used when a caller leaves Items unset.
	DefaultItemsPerPage = 20
	// MaxItemsPerPage caps a single page.
	MaxItemsPerPage = 100
)

// PageRequest selects one page of a listing. Pages are 1-based.
type PageRequest struct {
	Page  int `json:"page"`
	Items int `json:"items"`
}

// Validate checks Page >= 1 and 1 <= Items <= MaxItemsPerPage.
func (r PageRequest) Validate() error {
	var ve ValidationError
	if r.Page < 1 {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "page",
			Message: fmt.Sprintf("must be at least 1, got %d", r.Page),
		})
	}
	if r.Items < 1 || r.Items > MaxItemsPerPage {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "items",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxItemsPerPage, r.Items),
		})
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// Offset is the number of rows preceding the page.
func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.Items
}

// PageInfo describes where a page sits in the full listing.
type PageInfo struct {
	TotalCount   int `json:"total_count"`
	PageCount    int `json:"page_count"`
	CurrentPage  int `json:"current_page"`
	ItemsPerPage int `json:"items_per_page"`
}

// NewPageInfo computes page metadata for total matching rows.
func NewPageInfo(total int, r PageRequest) PageInfo {
	pages := 0
	if r.Items > 0 {
		pages = (total + r.Items - 1) / r.Items
	}
	return PageInfo{
		TotalCount:   total,
		PageCount:    pages,
		CurrentPage:  r.Page,
		ItemsPerPage: r.Items,
	}
}

// Page is one page of comments plus its metadata.
type Page struct {
	Info     PageInfo   `json:"page"`
	Comments []*Comment `json:"comments"`
}

// Depth limits how far below a page's roots a nested listing descends.
// The zero value is Unbounded.
type Depth struct {
	levels  int
	bounded bool
}

// Unbounded includes every descendant.
var Unbounded = Depth{}

// Levels returns a depth limited to n levels below the roots.
func Levels(n int) Depth {
	return Depth{levels: n, bounded: true}
}

// Bounded reports whether the depth is limited, and to how many levels.
func (d Depth) Bounded() (int, bool) {
	return d.levels, d.bounded
}

// Validate rejects negative levels.
func (d Depth) Validate() error {
	if d.bounded && d.levels < 0 {
		return &ValidationError{Errors: []FieldError{{
			Field:   "depth",
			Message: fmt.Sprintf("must be non-negative, got %d", d.levels),
		}}}
	}
	return nil
}

func (d Depth) String() string {
	if !d.bounded {
		return "all"
	}
	return strconv.Itoa(d.levels)
}

// ParseDepth parses "all", "unbounded" or "" as Unbounded and anything else
// as an integer level count.
func ParseDepth(s string) (Depth, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "unbounded":
		return Unbounded, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return Depth{}, &ValidationError{Errors: []FieldError{{
			Field:   "depth",
			Message: fmt.Sprintf("invalid value %q", s),
		}}}
	}
	d := Levels(n)
	if err := d.Validate(); err != nil {
		return Depth{}, err
	}
	return d, nil
}
