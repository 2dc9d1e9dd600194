package threads

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/threads/internal/events"
	"github.com/alfredjeanlab/threads/internal/metrics"
	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/nestedset"
	"github.com/alfredjeanlab/threads/internal/store"
)

// invalidateTimeout bounds the post-commit cache purge.
const invalidateTimeout = 5 * time.Second

// AddComment appends a comment to scope's forest, as the last child of
// input.ParentID or as a new last root.
func (s *Service) AddComment(ctx context.Context, scope model.Scope, input model.NewComment) (*model.Comment, error) {
	start := time.Now()
	c, err := s.addComment(ctx, scope, input)
	metrics.ObserveMutation("add", resultLabel(err), start)
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, scope, events.TopicCommentAdded, events.CommentAdded{
		EventID: events.NewEventID(),
		Comment: c,
	})
	return c, nil
}

func (s *Service) addComment(ctx context.Context, scope model.Scope, input model.NewComment) (*model.Comment, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := model.ValidateNewComment(&input); err != nil {
		return nil, err
	}
	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generating comment id: %w", err)
	}

	c := &model.Comment{
		ID:              id,
		CommentableType: scope.Type,
		CommentableID:   scope.ID,
		AuthorID:        input.AuthorID,
		Body:            input.Body,
		ParentID:        input.ParentID,
		CreatedAt:       s.now(),
	}

	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.LockScope(ctx, scope); err != nil {
			return err
		}

		var parent *model.Interval
		if input.ParentID != nil {
			p, err := tx.GetComment(ctx, scope, *input.ParentID)
			if model.IsNotFound(err) {
				return &model.NotFoundError{Kind: "parent comment", ID: *input.ParentID}
			}
			if err != nil {
				return err
			}
			iv := p.Interval()
			parent = &iv
			c.Depth = p.Depth + 1
		}

		var maxRight int64
		if parent == nil {
			var err error
			if maxRight, err = tx.MaxRight(ctx, scope); err != nil {
				return err
			}
		}

		point := nestedset.InsertionPoint(parent, maxRight)
		shifted, err := tx.ShiftBounds(ctx, scope, nestedset.InsertShift(point))
		if err != nil {
			return err
		}
		metrics.ShiftedRows.Observe(float64(shifted))

		leaf := nestedset.Leaf(point)
		c.Lft, c.Rgt = leaf.Left, leaf.Right
		return tx.InsertComment(ctx, c)
	})
	if err != nil {
		return nil, classify("add comment", err)
	}

	s.log.Debug("comment added", "scope", scope.String(), "id", c.ID, "lft", c.Lft, "rgt", c.Rgt)
	return c, nil
}

// DeleteSubtree removes a comment and every descendant, closing the gap in
// the forest's numbering. It returns the number of comments removed.
func (s *Service) DeleteSubtree(ctx context.Context, scope model.Scope, id string) (int, error) {
	start := time.Now()
	removed, authors, err := s.deleteSubtree(ctx, scope, id)
	metrics.ObserveMutation("delete_subtree", resultLabel(err), start)
	if err != nil {
		return 0, err
	}

	s.afterMutation(ctx, scope, events.TopicCommentDeleted, events.CommentDeleted{
		EventID:   events.NewEventID(),
		Scope:     scope,
		CommentID: id,
		Removed:   removed,
		Authors:   authors,
	})
	return removed, nil
}

func (s *Service) deleteSubtree(ctx context.Context, scope model.Scope, id string) (int, []string, error) {
	if err := scope.Validate(); err != nil {
		return 0, nil, err
	}

	var removed int64
	var authors []string
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.LockScope(ctx, scope); err != nil {
			return err
		}
		c, err := tx.GetComment(ctx, scope, id)
		if err != nil {
			return err
		}
		iv := c.Interval()
		if authors, err = tx.Authors(ctx, scope, &iv); err != nil {
			return err
		}
		if removed, err = tx.DeleteRange(ctx, scope, iv); err != nil {
			return err
		}
		if removed != iv.Size() {
			return &model.ConsistencyError{
				Scope:  scope,
				Detail: fmt.Sprintf("subtree %s spans %s but %d rows were removed", id, iv, removed),
			}
		}
		shifted, err := tx.ShiftBounds(ctx, scope, nestedset.DeleteShift(iv))
		if err != nil {
			return err
		}
		metrics.ShiftedRows.Observe(float64(shifted))
		return nil
	})
	if err != nil {
		return 0, nil, classify("delete subtree", err)
	}

	s.log.Debug("subtree deleted", "scope", scope.String(), "id", id, "removed", removed)
	return int(removed), authors, nil
}

// DeleteForest removes every comment of scope. It is what callers run when
// the commentable itself is destroyed.
func (s *Service) DeleteForest(ctx context.Context, scope model.Scope) (int, error) {
	start := time.Now()
	removed, authors, err := s.deleteForest(ctx, scope)
	metrics.ObserveMutation("delete_forest", resultLabel(err), start)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}

	s.afterMutation(ctx, scope, events.TopicForestDeleted, events.ForestDeleted{
		EventID: events.NewEventID(),
		Scope:   scope,
		Removed: removed,
		Authors: authors,
	})
	return removed, nil
}

func (s *Service) deleteForest(ctx context.Context, scope model.Scope) (int, []string, error) {
	if err := scope.Validate(); err != nil {
		return 0, nil, err
	}

	var removed int64
	var authors []string
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.LockScope(ctx, scope); err != nil {
			return err
		}
		maxRight, err := tx.MaxRight(ctx, scope)
		if err != nil || maxRight == 0 {
			return err
		}
		all := model.Interval{Left: 1, Right: maxRight}
		if authors, err = tx.Authors(ctx, scope, &all); err != nil {
			return err
		}
		removed, err = tx.DeleteRange(ctx, scope, all)
		return err
	})
	if err != nil {
		return 0, nil, classify("delete forest", err)
	}

	s.log.Debug("forest deleted", "scope", scope.String(), "removed", removed)
	return int(removed), authors, nil
}

// afterMutation purges the scope's cached pages and then announces the
// mutation. It runs after commit, so a canceled request context must not
// skip it.
func (s *Service) afterMutation(ctx context.Context, scope model.Scope, topic string, event any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()

	prefix := forestPrefix(scope)
	s.bumpGeneration(prefix)
	if _, err := s.cache.DeleteByPrefix(ctx, prefix); err != nil {
		metrics.CacheErrors.WithLabelValues("invalidate").Inc()
		s.log.Warn("cache invalidation failed", "prefix", prefix, "err", err)
	} else {
		metrics.CacheInvalidations.WithLabelValues("local").Inc()
	}

	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.log.Warn("publishing event failed", "topic", topic, "err", err)
	}
	inv := events.CacheInvalidated{
		EventID:  events.NewEventID(),
		Origin:   s.origin,
		Scope:    scope,
		Prefixes: []string{prefix},
	}
	if err := s.publisher.Publish(ctx, events.TopicCacheInvalidated, inv); err != nil {
		s.log.Warn("publishing invalidation failed", "prefix", prefix, "err", err)
	}
}

// Verify checks scope's forest against the nested-set invariants and
// returns the number of comments it holds.
func (s *Service) Verify(ctx context.Context, scope model.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	var nodes []*model.Comment
	err := s.store.RunReadOnly(ctx, func(tx store.Store) error {
		var err error
		nodes, _, err = tx.ListComments(ctx, model.CommentFilter{Scope: &scope, TreeOrder: true})
		return err
	})
	if err != nil {
		return 0, classify("verify", err)
	}
	if err := nestedset.Check(scope, nodes); err != nil {
		return 0, err
	}
	for i, d := range nestedset.Depths(nodes) {
		if nodes[i].Depth != d {
			return 0, &model.ConsistencyError{
				Scope:  scope,
				Detail: fmt.Sprintf("comment %s reports depth %d, containment gives %d", nodes[i].ID, nodes[i].Depth, d),
			}
		}
	}
	return len(nodes), nil
}
