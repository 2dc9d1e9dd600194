// Package nestedset implements the interval arithmetic behind comment
// forests: where a new node goes, how existing bounds move on insert and
// delete, how depth follows from containment, and what a consistent forest
// looks like.
//
// Every function here is pure. Nodes are passed as *model.Comment slices in
// pre-order (lft ascending), the order stores return subtree listings in.
package nestedset

import "github.com/alfredjeanlab/threads/internal/model"

// Shift moves every bound >= From by Delta. A scope's lft and rgt columns are
// shifted independently with the same rule.
type Shift struct {
	From  int64 `json:"from"`
	Delta int64 `json:"delta"`
}

// Apply returns the shifted value of a single bound.
func (s Shift) Apply(bound int64) int64 {
	if bound >= s.From {
		return bound + s.Delta
	}
	return bound
}

// InsertionPoint returns the left bound a new node receives. A child goes at
// its parent's current right bound, so it becomes the last child. A root goes
// after everything in the forest; maxRight is 0 for an empty forest.
func InsertionPoint(parent *model.Interval, maxRight int64) int64 {
	if parent != nil {
		return parent.Right
	}
	return maxRight + 1
}

// InsertShift opens a two-position gap at point.
func InsertShift(point int64) Shift {
	return Shift{From: point, Delta: 2}
}

// Leaf is the interval of a freshly inserted node at point.
func Leaf(point int64) model.Interval {
	return model.Interval{Left: point, Right: point + 1}
}

// DeleteShift closes the gap left by removing the subtree spanning iv.
func DeleteShift(iv model.Interval) Shift {
	return Shift{From: iv.Right + 1, Delta: -iv.Width()}
}

// ApplyShift shifts the bounds of every node in place.
func ApplyShift(nodes []*model.Comment, s Shift) {
	for _, n := range nodes {
		n.Lft = s.Apply(n.Lft)
		n.Rgt = s.Apply(n.Rgt)
	}
}

// Depths computes the depth of every node of a pre-ordered slice with one
// stack pass. Depth is relative to the shallowest nodes in the slice: a node
// no other slice member contains has depth 0.
func Depths(nodes []*model.Comment) []int {
	depths := make([]int, len(nodes))
	open := make([]int64, 0, 16) // right bounds of the current ancestor chain
	for i, n := range nodes {
		for len(open) > 0 && open[len(open)-1] < n.Lft {
			open = open[:len(open)-1]
		}
		depths[i] = len(open)
		open = append(open, n.Rgt)
	}
	return depths
}

// AssignDepths sets Comment.Depth from Depths plus base, the absolute depth
// of the slice's shallowest nodes.
func AssignDepths(nodes []*model.Comment, base int) {
	for i, d := range Depths(nodes) {
		nodes[i].Depth = base + d
	}
}

// Node is a comment with its children attached, for threaded output.
type Node struct {
	*model.Comment
	Children []*Node `json:"children,omitempty"`
}

// BuildTree nests a pre-ordered slice. Nodes whose ancestors are not in the
// slice become top-level entries.
func BuildTree(nodes []*model.Comment) []*Node {
	var roots []*Node
	var stack []*Node
	for _, c := range nodes {
		n := &Node{Comment: c}
		for len(stack) > 0 && stack[len(stack)-1].Rgt < c.Lft {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, n)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, n)
		}
		stack = append(stack, n)
	}
	return roots
}
