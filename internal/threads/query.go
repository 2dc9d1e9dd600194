package threads

import (
	"context"

	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/store"
)

func validatePage(scope model.Scope, req model.PageRequest) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return req.Validate()
}

func validateOrder(o model.Order) error {
	if o.IsValid() {
		return nil
	}
	return &model.ValidationError{Errors: []model.FieldError{{
		Field:   "order",
		Message: "must be asc or desc",
	}}}
}

func orderKey(o model.Order) string {
	if o == "" {
		return string(model.OrderDesc)
	}
	return string(o)
}

func depthKey(d model.Depth) string {
	return "d" + d.String()
}

// RootComments lists one page of scope's root comments, newest first unless
// order is OrderAsc.
func (s *Service) RootComments(ctx context.Context, scope model.Scope, req model.PageRequest, order model.Order) (*model.Page, error) {
	if err := validatePage(scope, req); err != nil {
		return nil, err
	}
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	key := pageKey(scope, "roots", req, orderKey(order))
	return s.cachedPage(ctx, "roots", forestPrefix(scope), key, func(ctx context.Context) (*model.Page, error) {
		return s.list(ctx, "root comments", model.CommentFilter{
			Scope:     &scope,
			RootsOnly: true,
			Order:     order,
		}, req)
	})
}

// CommentsOrderedBySubmission lists every comment of scope regardless of
// nesting, newest first unless order is OrderAsc.
func (s *Service) CommentsOrderedBySubmission(ctx context.Context, scope model.Scope, req model.PageRequest, order model.Order) (*model.Page, error) {
	if err := validatePage(scope, req); err != nil {
		return nil, err
	}
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	key := pageKey(scope, "submitted", req, orderKey(order))
	return s.cachedPage(ctx, "submitted", forestPrefix(scope), key, func(ctx context.Context) (*model.Page, error) {
		return s.list(ctx, "comments by submission", model.CommentFilter{
			Scope: &scope,
			Order: order,
		}, req)
	})
}

// NestedComments pages through scope's roots in creation order and returns
// each page's roots with their descendants down to depth levels below the
// roots, in pre-order. Page info counts roots only.
func (s *Service) NestedComments(ctx context.Context, scope model.Scope, depth model.Depth, req model.PageRequest) (*model.Page, error) {
	if err := validatePage(scope, req); err != nil {
		return nil, err
	}
	if err := depth.Validate(); err != nil {
		return nil, err
	}
	key := pageKey(scope, "nested", req, depthKey(depth))
	return s.cachedPage(ctx, "nested", forestPrefix(scope), key, func(ctx context.Context) (*model.Page, error) {
		return s.nested(ctx, scope, depth, req)
	})
}

func (s *Service) nested(ctx context.Context, scope model.Scope, depth model.Depth, req model.PageRequest) (*model.Page, error) {
	var page model.Page
	err := s.store.RunReadOnly(ctx, func(tx store.Store) error {
		roots, total, err := tx.ListComments(ctx, model.CommentFilter{
			Scope:     &scope,
			RootsOnly: true,
			TreeOrder: true,
			Limit:     req.Items,
			Offset:    req.Offset(),
		})
		if err != nil {
			return err
		}
		page.Info = model.NewPageInfo(total, req)
		page.Comments = roots

		levels, bounded := depth.Bounded()
		if len(roots) == 0 || (bounded && levels == 0) {
			return nil
		}

		// Roots of one page are adjacent in lft order, so their subtrees
		// fill one contiguous span.
		span := model.Interval{Left: roots[0].Lft, Right: roots[len(roots)-1].Rgt}
		filter := model.CommentFilter{Scope: &scope, Span: &span}
		if bounded {
			filter.MaxDepth = &levels
		}
		page.Comments, _, err = tx.ListComments(ctx, filter)
		return err
	})
	if err != nil {
		return nil, classify("nested comments", err)
	}
	if page.Comments == nil {
		page.Comments = []*model.Comment{}
	}
	return &page, nil
}

// Subtree pages through the comment rootID and its descendants down to
// depth levels below it, in pre-order.
func (s *Service) Subtree(ctx context.Context, scope model.Scope, rootID string, depth model.Depth, req model.PageRequest) (*model.Page, error) {
	if err := validatePage(scope, req); err != nil {
		return nil, err
	}
	if err := depth.Validate(); err != nil {
		return nil, err
	}
	key := pageKey(scope, "subtree", req, rootID, depthKey(depth))
	return s.cachedPage(ctx, "subtree", forestPrefix(scope), key, func(ctx context.Context) (*model.Page, error) {
		var page *model.Page
		err := s.store.RunReadOnly(ctx, func(tx store.Store) error {
			root, err := tx.GetComment(ctx, scope, rootID)
			if err != nil {
				return err
			}
			span := root.Interval()
			filter := model.CommentFilter{Scope: &scope, Span: &span}
			if levels, bounded := depth.Bounded(); bounded {
				deepest := root.Depth + levels
				filter.MaxDepth = &deepest
			}
			page, err = listPage(ctx, tx, filter, req)
			return err
		})
		if err != nil {
			return nil, classify("subtree", err)
		}
		return page, nil
	})
}

// Ancestors returns the chain of comments above id, outermost first.
func (s *Service) Ancestors(ctx context.Context, scope model.Scope, id string) ([]*model.Comment, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	var out []*model.Comment
	err := s.store.RunReadOnly(ctx, func(tx store.Store) error {
		c, err := tx.GetComment(ctx, scope, id)
		if err != nil {
			return err
		}
		out, err = tx.Ancestors(ctx, c)
		return err
	})
	if err != nil {
		return nil, classify("ancestors", err)
	}
	if out == nil {
		out = []*model.Comment{}
	}
	return out, nil
}

// GetComment returns a single comment with its depth.
func (s *Service) GetComment(ctx context.Context, scope model.Scope, id string) (*model.Comment, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	c, err := s.store.GetComment(ctx, scope, id)
	if err != nil {
		return nil, classify("get comment", err)
	}
	return c, nil
}

// HasComments reports whether scope has at least one comment.
func (s *Service) HasComments(ctx context.Context, scope model.Scope) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}
	n, err := s.store.CountComments(ctx, scope)
	if err != nil {
		return false, classify("has comments", err)
	}
	return n > 0, nil
}

// CommentsByUser lists userID's comments, newest first unless order is
// OrderAsc. A nil scope lists across every forest; those listings are not
// cached since no single forest prefix covers them.
func (s *Service) CommentsByUser(ctx context.Context, userID string, scope *model.Scope, req model.PageRequest, order model.Order) (*model.Page, error) {
	if userID == "" {
		return nil, &model.ValidationError{Errors: []model.FieldError{{Field: "user_id", Message: "is required"}}}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	filter := model.CommentFilter{AuthorID: userID, Order: order}
	if scope == nil {
		return s.list(ctx, "comments by user", filter, req)
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	filter.Scope = scope
	key := pageKey(*scope, "user", req, userID, orderKey(order))
	return s.cachedPage(ctx, "user", forestPrefix(*scope), key, func(ctx context.Context) (*model.Page, error) {
		return s.list(ctx, "comments by user", filter, req)
	})
}

// listPage runs one paginated listing against st.
func listPage(ctx context.Context, st store.Store, filter model.CommentFilter, req model.PageRequest) (*model.Page, error) {
	filter.Limit = req.Items
	filter.Offset = req.Offset()
	rows, total, err := st.ListComments(ctx, filter)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*model.Comment{}
	}
	return &model.Page{Info: model.NewPageInfo(total, req), Comments: rows}, nil
}

func (s *Service) list(ctx context.Context, op string, filter model.CommentFilter, req model.PageRequest) (*model.Page, error) {
	page, err := listPage(ctx, s.store, filter, req)
	if err != nil {
		return nil, classify(op, err)
	}
	return page, nil
}
