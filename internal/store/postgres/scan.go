package postgres

import (
	"database/sql"

	"github.com/alfredjeanlab/threads/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanComment scans a single row into a model.Comment.
// The row must contain commentColumns followed by depth.
func scanComment(row scannable) (*model.Comment, error) {
	var (
		c        model.Comment
		parentID sql.NullString
	)
	err := row.Scan(
		&c.ID,
		&c.CommentableType,
		&c.CommentableID,
		&c.AuthorID,
		&c.Body,
		&parentID,
		&c.Lft,
		&c.Rgt,
		&c.CreatedAt,
		&c.Depth,
	)
	if err != nil {
		return nil, err
	}
	c.ParentID = stringPtr(parentID)
	return &c, nil
}

// scanCommentWithTotal scans a row with a leading total_count column.
func scanCommentWithTotal(row scannable, total *int) (*model.Comment, error) {
	var (
		c        model.Comment
		parentID sql.NullString
	)
	err := row.Scan(
		total,
		&c.ID,
		&c.CommentableType,
		&c.CommentableID,
		&c.AuthorID,
		&c.Body,
		&parentID,
		&c.Lft,
		&c.Rgt,
		&c.CreatedAt,
		&c.Depth,
	)
	if err != nil {
		return nil, err
	}
	c.ParentID = stringPtr(parentID)
	return &c, nil
}

// scanComments scans all rows into a slice of model.Comment.
func scanComments(rows *sql.Rows) ([]*model.Comment, error) {
	var comments []*model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// nullStringPtr converts a *string to sql.NullString.
func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// stringPtr converts sql.NullString back to *string.
func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
