package store

import (
	"context"

	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/nestedset"
)

// Store defines the persistence interface for comment forests.
//
// Tree maintenance methods (MaxRight, ShiftBounds, DeleteRange) leave the
// forest inconsistent on their own; callers run them inside
// RunInTransaction after LockScope.
type Store interface {
	// Comments
	InsertComment(ctx context.Context, c *model.Comment) error
	GetComment(ctx context.Context, scope model.Scope, id string) (*model.Comment, error)
	ListComments(ctx context.Context, filter model.CommentFilter) ([]*model.Comment, int, error) // returns comments, total count, error
	Ancestors(ctx context.Context, c *model.Comment) ([]*model.Comment, error)                 // lft ascending, depth filled
	Descendants(ctx context.Context, c *model.Comment) ([]*model.Comment, error)               // lft ascending, depth filled
	CountComments(ctx context.Context, scope model.Scope) (int, error)
	Authors(ctx context.Context, scope model.Scope, span *model.Interval) ([]string, error)
	ListScopes(ctx context.Context) ([]model.Scope, error)

	// Tree maintenance
	MaxRight(ctx context.Context, scope model.Scope) (int64, error) // 0 for an empty forest
	ShiftBounds(ctx context.Context, scope model.Scope, shift nestedset.Shift) (int64, error)
	DeleteRange(ctx context.Context, scope model.Scope, span model.Interval) (int64, error)
	LockScope(ctx context.Context, scope model.Scope) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error
	RunReadOnly(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
