package model

import "fmt"

// Interval is a pair of nested-set bounds. A well-formed interval has
// Left < Right.
type Interval struct {
	Left  int64 `json:"lft"`
	Right int64 `json:"rgt"`
}

// Width is the number of bound positions the interval covers, i.e. twice the
// number of nodes in the subtree it describes.
func (iv Interval) Width() int64 {
	return iv.Right - iv.Left + 1
}

// IsLeaf reports whether the interval encloses no other node.
func (iv Interval) IsLeaf() bool {
	return iv.Right == iv.Left+1
}

// Valid reports whether Left < Right.
func (iv Interval) Valid() bool {
	return iv.Left < iv.Right
}

// Size is the number of nodes in the subtree, root included.
func (iv Interval) Size() int64 {
	return iv.Width() / 2
}

// Contains reports whether o lies strictly inside iv.
func (iv Interval) Contains(o Interval) bool {
	return iv.Left < o.Left && o.Right < iv.Right
}

// Disjoint reports whether the two intervals share no position.
func (iv Interval) Disjoint(o Interval) bool {
	return iv.Right < o.Left || o.Right < iv.Left
}

func (iv Interval) String() string {
	return fmt.Sprintf("(%d,%d)", iv.Left, iv.Right)
}
