package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/nestedset"
)

const indentWidth = 2

// Options control comment rendering.
type Options struct {
	Width  int  // line budget; bodies are truncated to fit. 0 means no limit
	Bounds bool // show (lft,rgt) for each comment
}

// WriteComment writes one comment line indented by depth levels.
func WriteComment(w io.Writer, c *model.Comment, depth int, opts Options) error {
	indent := strings.Repeat(" ", depth*indentWidth)
	head := indent + RenderID(c.ID) + " " + RenderAuthor(c.AuthorID)
	plainLen := len(indent) + len(c.ID) + 1 + len(c.AuthorID)
	if opts.Bounds {
		b := fmt.Sprintf(" (%d,%d)", c.Lft, c.Rgt)
		head += RenderMuted(b)
		plainLen += len(b)
	}

	body := strings.Join(strings.Fields(c.Body), " ")
	if opts.Width > 0 {
		body = truncate(body, opts.Width-plainLen-2)
	}
	_, err := fmt.Fprintf(w, "%s: %s\n", head, body)
	return err
}

// WriteList writes comments flat, in the order given.
func WriteList(w io.Writer, comments []*model.Comment, opts Options) error {
	for _, c := range comments {
		if err := WriteComment(w, c, 0, opts); err != nil {
			return err
		}
	}
	return nil
}

// WriteTree writes comments indented under their parents. The input must
// be in tree order; depth is relative to the shallowest comment.
func WriteTree(w io.Writer, comments []*model.Comment, opts Options) error {
	var walk func(nodes []*nestedset.Node, depth int) error
	walk = func(nodes []*nestedset.Node, depth int) error {
		for _, n := range nodes {
			if err := WriteComment(w, n.Comment, depth, opts); err != nil {
				return err
			}
			if err := walk(n.Children, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(nestedset.BuildTree(comments), 0)
}

// WritePageFooter writes a muted "page x of y" line.
func WritePageFooter(w io.Writer, info model.PageInfo) error {
	_, err := fmt.Fprintln(w, RenderMuted(fmt.Sprintf("page %d of %d (%d total)",
		info.CurrentPage, info.PageCount, info.TotalCount)))
	return err
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
