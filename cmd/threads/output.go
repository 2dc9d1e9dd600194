package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printComment(w io.Writer, c *model.Comment) error {
	if jsonOutput {
		return printJSON(w, c)
	}
	fmt.Fprintf(w, "ID:          %s\n", ui.RenderID(c.ID))
	fmt.Fprintf(w, "Forest:      %s/%s\n", c.CommentableType, c.CommentableID)
	fmt.Fprintf(w, "Author:      %s\n", ui.RenderAuthor(c.AuthorID))
	if c.ParentID != nil {
		fmt.Fprintf(w, "Parent:      %s\n", *c.ParentID)
	}
	fmt.Fprintf(w, "Bounds:      %s\n", ui.RenderMuted(c.Interval().String()))
	fmt.Fprintf(w, "Depth:       %d\n", c.Depth)
	fmt.Fprintf(w, "Created At:  %s\n", c.CreatedAt.Format("2006-01-02 15:04:05"))
	_, err := fmt.Fprintf(w, "\n%s\n", c.Body)
	return err
}

// printPage writes a page as JSON, an indented tree, or a flat list.
func printPage(w io.Writer, page *model.Page, tree, bounds bool) error {
	if jsonOutput {
		return printJSON(w, page)
	}
	if len(page.Comments) == 0 {
		_, err := fmt.Fprintln(w, "no comments")
		return err
	}
	opts := ui.Options{Width: ui.Width(), Bounds: bounds}
	var err error
	if tree {
		err = ui.WriteTree(w, page.Comments, opts)
	} else {
		err = ui.WriteList(w, page.Comments, opts)
	}
	if err != nil {
		return err
	}
	return ui.WritePageFooter(w, page.Info)
}
