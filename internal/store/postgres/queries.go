package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/nestedset"
)

// commentColumns is the column list used for SELECT statements on the comments table.
const commentColumns = `id, commentable_type, commentable_id, author_id, body, parent_id, lft, rgt, created_at`

// depthColumn counts the intervals strictly containing c.
const depthColumn = `(SELECT COUNT(*) FROM comments a
		WHERE a.commentable_type = c.commentable_type AND a.commentable_id = c.commentable_id
		AND a.lft < c.lft AND a.rgt > c.rgt) AS depth`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryInsertComment(ctx context.Context, db executor, c *model.Comment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO comments (
			id, commentable_type, commentable_id, author_id, body, parent_id, lft, rgt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID,
		c.CommentableType,
		c.CommentableID,
		c.AuthorID,
		c.Body,
		nullStringPtr(c.ParentID),
		c.Lft,
		c.Rgt,
		c.CreatedAt,
	)
	return err
}

func queryGetComment(ctx context.Context, db executor, scope model.Scope, id string) (*model.Comment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+commentColumns+`, `+depthColumn+`
		FROM comments c
		WHERE id = $1 AND commentable_type = $2 AND commentable_id = $3`,
		id, scope.Type, scope.ID)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Kind: "comment", ID: id}
	}
	return c, err
}

func queryListComments(ctx context.Context, db executor, filter model.CommentFilter) ([]*model.Comment, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Scope != nil {
		whereClauses = append(whereClauses, "c.commentable_type = "+nextArg(), "c.commentable_id = "+nextArg())
		args = append(args, filter.Scope.Type, filter.Scope.ID)
	}

	if filter.RootsOnly {
		whereClauses = append(whereClauses, "c.parent_id IS NULL")
	}

	if filter.Within != nil {
		whereClauses = append(whereClauses, "c.lft > "+nextArg(), "c.rgt < "+nextArg())
		args = append(args, filter.Within.Left, filter.Within.Right)
	}

	if filter.Span != nil {
		whereClauses = append(whereClauses, "c.lft >= "+nextArg(), "c.rgt <= "+nextArg())
		args = append(args, filter.Span.Left, filter.Span.Right)
	}

	if filter.AuthorID != "" {
		whereClauses = append(whereClauses, "c.author_id = "+nextArg())
		args = append(args, filter.AuthorID)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	inner := "SELECT " + commentColumns + ", " + depthColumn + " FROM comments c" + whereSQL

	outerWhere := ""
	if filter.MaxDepth != nil {
		outerWhere = " WHERE t.depth <= " + nextArg()
		args = append(args, *filter.MaxDepth)
	}
	countArgs := append([]any(nil), args...)

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, t.* FROM (" + inner + ") t" + outerWhere +
		" ORDER BY " + orderClause(filter)

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var (
		comments []*model.Comment
		total    int
	)
	for rows.Next() {
		c, err := scanCommentWithTotal(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate comments: %w", err)
	}

	// A page past the end carries no window count.
	if len(comments) == 0 && filter.Offset > 0 {
		countQuery := "SELECT COUNT(*) FROM (" + inner + ") t" + outerWhere
		if err := db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count comments: %w", err)
		}
	}

	return comments, total, nil
}

// orderClause returns lft order for tree listings and created_at order otherwise.
func orderClause(filter model.CommentFilter) string {
	if filter.TreeOrder || filter.Within != nil || filter.Span != nil {
		return "t.lft ASC"
	}
	if filter.Order == model.OrderAsc {
		return "t.created_at ASC, t.id ASC"
	}
	return "t.created_at DESC, t.id DESC"
}

func queryAncestors(ctx context.Context, db executor, c *model.Comment) ([]*model.Comment, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+commentColumns+`, `+depthColumn+`
		FROM comments c
		WHERE commentable_type = $1 AND commentable_id = $2 AND lft < $3 AND rgt > $4
		ORDER BY lft ASC`,
		c.CommentableType, c.CommentableID, c.Lft, c.Rgt)
	if err != nil {
		return nil, fmt.Errorf("ancestors: %w", err)
	}
	defer rows.Close()
	return scanComments(rows)
}

func queryDescendants(ctx context.Context, db executor, c *model.Comment) ([]*model.Comment, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+commentColumns+`, `+depthColumn+`
		FROM comments c
		WHERE commentable_type = $1 AND commentable_id = $2 AND lft > $3 AND rgt < $4
		ORDER BY lft ASC`,
		c.CommentableType, c.CommentableID, c.Lft, c.Rgt)
	if err != nil {
		return nil, fmt.Errorf("descendants: %w", err)
	}
	defer rows.Close()
	return scanComments(rows)
}

func queryCountComments(ctx context.Context, db executor, scope model.Scope) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE commentable_type = $1 AND commentable_id = $2`,
		scope.Type, scope.ID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

func queryAuthors(ctx context.Context, db executor, scope model.Scope, span *model.Interval) ([]string, error) {
	query := `SELECT DISTINCT author_id FROM comments WHERE commentable_type = $1 AND commentable_id = $2`
	args := []any{scope.Type, scope.ID}
	if span != nil {
		query += ` AND lft >= $3 AND rgt <= $4`
		args = append(args, span.Left, span.Right)
	}
	query += ` ORDER BY author_id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("authors: %w", err)
	}
	defer rows.Close()

	var authors []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

func queryListScopes(ctx context.Context, db executor) ([]model.Scope, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT commentable_type, commentable_id
		FROM comments
		ORDER BY commentable_type, commentable_id`)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	defer rows.Close()

	var scopes []model.Scope
	for rows.Next() {
		var s model.Scope
		if err := rows.Scan(&s.Type, &s.ID); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		scopes = append(scopes, s)
	}
	return scopes, rows.Err()
}

func queryMaxRight(ctx context.Context, db executor, scope model.Scope) (int64, error) {
	var max int64
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(rgt), 0) FROM comments WHERE commentable_type = $1 AND commentable_id = $2`,
		scope.Type, scope.ID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max right: %w", err)
	}
	return max, nil
}

// queryShiftBounds moves every bound >= shift.From by shift.Delta in one
// statement. Rows whose rgt is below From have no bound to move.
func queryShiftBounds(ctx context.Context, db executor, scope model.Scope, shift nestedset.Shift) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE comments SET
			lft = CASE WHEN lft >= $3 THEN lft + $4 ELSE lft END,
			rgt = CASE WHEN rgt >= $3 THEN rgt + $4 ELSE rgt END
		WHERE commentable_type = $1 AND commentable_id = $2 AND rgt >= $3`,
		scope.Type, scope.ID, shift.From, shift.Delta)
	if err != nil {
		return 0, fmt.Errorf("shift bounds: %w", err)
	}
	return res.RowsAffected()
}

func queryDeleteRange(ctx context.Context, db executor, scope model.Scope, span model.Interval) (int64, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM comments
		WHERE commentable_type = $1 AND commentable_id = $2 AND lft >= $3 AND lft <= $4`,
		scope.Type, scope.ID, span.Left, span.Right)
	if err != nil {
		return 0, fmt.Errorf("delete range: %w", err)
	}
	return res.RowsAffected()
}

func queryLockScope(ctx context.Context, db executor, scope model.Scope) error {
	_, err := db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scopeKey(scope))
	if err != nil {
		return fmt.Errorf("lock scope %s: %w", scope, err)
	}
	return nil
}

// scopeKey is the advisory-lock key text for a scope. The length prefix keeps
// ("a:b", "c") and ("a", "b:c") apart.
func scopeKey(scope model.Scope) string {
	return fmt.Sprintf("%d:%s:%s", len(scope.Type), scope.Type, scope.ID)
}
