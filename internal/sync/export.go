package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	ForestCount  int       `json:"forest_count"`
	CommentCount int       `json:"comment_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// forest is the payload of a "forest" record: one scope's comments in
// pre-order.
type forest struct {
	Scope    model.Scope      `json:"scope"`
	Comments []*model.Comment `json:"comments"`
}

// ExportJSONL writes every forest in the store as JSONL to w: a header,
// then one record per scope ordered by type and id. Each forest is read
// from its own snapshot.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	scopes, err := s.ListScopes(ctx)
	if err != nil {
		return fmt.Errorf("list scopes: %w", err)
	}

	forests := make([]forest, 0, len(scopes))
	total := 0
	for _, scope := range scopes {
		scope := scope
		var comments []*model.Comment
		err := s.RunReadOnly(ctx, func(tx store.Store) error {
			var err error
			comments, _, err = tx.ListComments(ctx, model.CommentFilter{Scope: &scope, TreeOrder: true})
			return err
		})
		if err != nil {
			return fmt.Errorf("list comments for %s: %w", scope, err)
		}
		if len(comments) == 0 {
			continue
		}
		forests = append(forests, forest{Scope: scope, Comments: comments})
		total += len(comments)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		ForestCount:  len(forests),
		CommentCount: total,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, f := range forests {
		if err := enc.Encode(record{Type: "forest", Data: f}); err != nil {
			return fmt.Errorf("encode forest %s: %w", f.Scope, err)
		}
	}
	return nil
}
