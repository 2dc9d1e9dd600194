package model

import "time"

// Comment is one node of a commentable's forest.
//
// Lft and Rgt are the node's nested-set bounds within its scope. Depth is not
// stored; readers that need it fill it in from the ancestor count.
type Comment struct {
	ID              string    `json:"id"`
	CommentableType string    `json:"commentable_type"`
	CommentableID   string    `json:"commentable_id"`
	AuthorID        string    `json:"author_id"`
	Body            string    `json:"body"`
	ParentID        *string   `json:"parent_id,omitempty"`
	Lft             int64     `json:"lft"`
	Rgt             int64     `json:"rgt"`
	Depth           int       `json:"depth"`
	CreatedAt       time.Time `json:"created_at"`
}

// Scope returns the forest the comment belongs to.
func (c *Comment) Scope() Scope {
	return Scope{Type: c.CommentableType, ID: c.CommentableID}
}

// IsRoot reports whether the comment has no parent.
func (c *Comment) IsRoot() bool {
	return c.ParentID == nil
}

// Interval returns the comment's nested-set bounds.
func (c *Comment) Interval() Interval {
	return Interval{Left: c.Lft, Right: c.Rgt}
}

// NewComment is the input for adding a comment to a forest.
type NewComment struct {
	Body     string  `json:"body"`
	AuthorID string  `json:"author_id"`
	ParentID *string `json:"parent_id,omitempty"`
}
