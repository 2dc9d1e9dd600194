package model

// Order is the direction of a created_at sort.
type Order string

const (
	OrderDesc Order = "desc"
	OrderAsc  Order = "asc"
)

// IsValid reports whether o is a known order. The empty order means OrderDesc.
func (o Order) IsValid() bool {
	switch o {
	case "", OrderDesc, OrderAsc:
		return true
	}
	return false
}

// CommentFilter holds criteria for listing comments.
//
// When Within is set the listing is the strict interior of that interval in
// tree (lft ascending) order and Order is ignored. Otherwise rows come back
// sorted by created_at, tie-broken by id.
type CommentFilter struct {
	Scope     *Scope    `json:"scope,omitempty"` // nil lists across every forest (author listings)
	RootsOnly bool      `json:"roots_only,omitempty"`
	TreeOrder bool      `json:"tree_order,omitempty"` // lft ascending instead of created_at
	Within    *Interval `json:"within,omitempty"`
	Span      *Interval `json:"span,omitempty"`      // inclusive lft/rgt bounds
	MaxDepth  *int      `json:"max_depth,omitempty"` // absolute depth
	AuthorID  string    `json:"author_id,omitempty"`
	Order     Order     `json:"order,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}
