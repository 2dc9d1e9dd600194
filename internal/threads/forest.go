package threads

import (
	"context"

	"github.com/alfredjeanlab/threads/internal/model"
)

// Forest is the comment forest of one commentable.
type Forest struct {
	svc   *Service
	scope model.Scope
}

// For returns the forest owned by c.
func (s *Service) For(c model.Commentable) *Forest {
	return &Forest{svc: s, scope: model.ScopeOf(c)}
}

func (f *Forest) Scope() model.Scope {
	return f.scope
}

func (f *Forest) RootComments(ctx context.Context, page, items int) (*model.Page, error) {
	return f.svc.RootComments(ctx, f.scope, model.PageRequest{Page: page, Items: items}, model.OrderDesc)
}

func (f *Forest) NestedComments(ctx context.Context, depth model.Depth, page, items int) (*model.Page, error) {
	return f.svc.NestedComments(ctx, f.scope, depth, model.PageRequest{Page: page, Items: items})
}

func (f *Forest) CommentsOrderedBySubmission(ctx context.Context, page, items int) (*model.Page, error) {
	return f.svc.CommentsOrderedBySubmission(ctx, f.scope, model.PageRequest{Page: page, Items: items}, model.OrderDesc)
}

// AddComment adds a root comment, or a reply when parentID is non-nil.
func (f *Forest) AddComment(ctx context.Context, body, authorID string, parentID *string) (*model.Comment, error) {
	return f.svc.AddComment(ctx, f.scope, model.NewComment{Body: body, AuthorID: authorID, ParentID: parentID})
}

func (f *Forest) HasComments(ctx context.Context) (bool, error) {
	return f.svc.HasComments(ctx, f.scope)
}

// CommentsByUser lists userID's comments in this forest.
func (f *Forest) CommentsByUser(ctx context.Context, userID string, page, items int) (*model.Page, error) {
	return f.svc.CommentsByUser(ctx, userID, &f.scope, model.PageRequest{Page: page, Items: items}, model.OrderDesc)
}

func (f *Forest) Subtree(ctx context.Context, rootID string, depth model.Depth, page, items int) (*model.Page, error) {
	return f.svc.Subtree(ctx, f.scope, rootID, depth, model.PageRequest{Page: page, Items: items})
}

func (f *Forest) Ancestors(ctx context.Context, id string) ([]*model.Comment, error) {
	return f.svc.Ancestors(ctx, f.scope, id)
}

// Delete removes the comment id and its replies.
func (f *Forest) Delete(ctx context.Context, id string) (int, error) {
	return f.svc.DeleteSubtree(ctx, f.scope, id)
}

// Destroy removes the whole forest.
func (f *Forest) Destroy(ctx context.Context) (int, error) {
	return f.svc.DeleteForest(ctx, f.scope)
}

func (f *Forest) Verify(ctx context.Context) (int, error) {
	return f.svc.Verify(ctx, f.scope)
}
