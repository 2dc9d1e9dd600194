package nestedset

import (
	"fmt"
	"sort"

	"github.com/alfredjeanlab/threads/internal/model"
)

// Check validates a whole forest: every interval is well formed, intervals
// are nested or disjoint, bounds are exactly 1..2N, and each comment's
// parent is the innermost interval containing it. It returns a
// *model.ConsistencyError describing the first violation found.
func Check(scope model.Scope, nodes []*model.Comment) error {
	fail := func(format string, args ...any) error {
		return &model.ConsistencyError{Scope: scope, Detail: fmt.Sprintf(format, args...)}
	}

	sorted := make([]*model.Comment, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Lft < sorted[j].Lft })

	n := int64(len(sorted))
	seen := make([]bool, 2*n+1)
	mark := func(c *model.Comment, b int64) error {
		if b < 1 || b > 2*n {
			return fail("comment %s bound %d outside 1..%d", c.ID, b, 2*n)
		}
		if seen[b] {
			return fail("bound %d used twice (comment %s)", b, c.ID)
		}
		seen[b] = true
		return nil
	}

	var stack []*model.Comment
	for _, c := range sorted {
		if c.Scope() != scope {
			return fail("comment %s belongs to %s", c.ID, c.Scope())
		}
		if c.Lft >= c.Rgt {
			return fail("comment %s has lft %d >= rgt %d", c.ID, c.Lft, c.Rgt)
		}
		if err := mark(c, c.Lft); err != nil {
			return err
		}
		if err := mark(c, c.Rgt); err != nil {
			return err
		}

		for len(stack) > 0 && stack[len(stack)-1].Rgt < c.Lft {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			if c.Rgt > top.Rgt {
				return fail("comment %s %s overlaps %s %s", c.ID, c.Interval(), top.ID, top.Interval())
			}
			if c.ParentID == nil || *c.ParentID != top.ID {
				return fail("comment %s is inside %s but has parent %s", c.ID, top.ID, parentString(c))
			}
		} else if c.ParentID != nil {
			return fail("comment %s is a root by position but has parent %s", c.ID, *c.ParentID)
		}
		stack = append(stack, c)
	}
	return nil
}

func parentString(c *model.Comment) string {
	if c.ParentID == nil {
		return "<none>"
	}
	return *c.ParentID
}
