// Package client provides a transport-agnostic interface for the threads
// service, with HTTP/JSON and gRPC implementations.
package client

import (
	"context"

	"github.com/alfredjeanlab/threads/internal/model"
)

// ThreadsClient is what the CLI uses to talk to a threads server.
type ThreadsClient interface {
	AddComment(ctx context.Context, scope model.Scope, in model.NewComment) (*model.Comment, error)
	GetComment(ctx context.Context, scope model.Scope, id string) (*model.Comment, error)

	RootComments(ctx context.Context, scope model.Scope, opts ListOptions) (*model.Page, error)
	NestedComments(ctx context.Context, scope model.Scope, opts ListOptions) (*model.Page, error)
	Comments(ctx context.Context, scope model.Scope, opts ListOptions) (*model.Page, error)
	Subtree(ctx context.Context, scope model.Scope, id string, opts ListOptions) (*model.Page, error)
	Ancestors(ctx context.Context, scope model.Scope, id string) ([]*model.Comment, error)
	// CommentsByUser lists across every forest when scope is nil.
	CommentsByUser(ctx context.Context, userID string, scope *model.Scope, opts ListOptions) (*model.Page, error)

	DeleteComment(ctx context.Context, scope model.Scope, id string) (int, error)
	DeleteForest(ctx context.Context, scope model.Scope) (int, error)
	HasComments(ctx context.Context, scope model.Scope) (bool, error)
	Verify(ctx context.Context, scope model.Scope) (*VerifyResult, error)

	Health(ctx context.Context) (string, error)
	Close() error
}

// ListOptions selects a page and shapes a listing. Zero values take the
// server defaults.
type ListOptions struct {
	Page  int    `json:"page,omitempty"`
	Items int    `json:"items,omitempty"`
	Depth string `json:"depth,omitempty"` // nested and subtree listings only
	Order string `json:"order,omitempty"` // "asc" or "desc"
}

// VerifyResult is the outcome of a forest consistency check.
type VerifyResult struct {
	Consistent bool   `json:"consistent"`
	Comments   int    `json:"comments"`
	Detail     string `json:"detail,omitempty"`
}
