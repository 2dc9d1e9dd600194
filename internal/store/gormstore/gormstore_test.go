package gormstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/threads/internal/logger"
	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/nestedset"
	"github.com/alfredjeanlab/threads/internal/store"
)

var testScope = model.Scope{Type: "Post", ID: "1"}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(":memory:", logger.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

// seed writes comments with fixed bounds:
//
//	r1 (1,6)
//	  c1 (2,5)
//	    g1 (3,4)
//	r2 (7,8)
func seed(t *testing.T, s *Store) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, c := range []*model.Comment{
		{ID: "r1", AuthorID: "alice", Body: "root one", Lft: 1, Rgt: 6},
		{ID: "c1", AuthorID: "bob", Body: "child", ParentID: strPtr("r1"), Lft: 2, Rgt: 5},
		{ID: "g1", AuthorID: "alice", Body: "grandchild", ParentID: strPtr("c1"), Lft: 3, Rgt: 4},
		{ID: "r2", AuthorID: "carol", Body: "root two", Lft: 7, Rgt: 8},
	} {
		c.CommentableType = testScope.Type
		c.CommentableID = testScope.ID
		c.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.InsertComment(context.Background(), c); err != nil {
			t.Fatalf("InsertComment(%s): %v", c.ID, err)
		}
	}
}

func ids(comments []*model.Comment) []string {
	out := make([]string, len(comments))
	for i, c := range comments {
		out[i] = c.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGetComment(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	g, err := s.GetComment(ctx, testScope, "g1")
	if err != nil {
		t.Fatalf("GetComment: %v", err)
	}
	if g.Depth != 2 || *g.ParentID != "c1" {
		t.Errorf("g1 depth=%d parent=%v, want 2/c1", g.Depth, *g.ParentID)
	}

	if _, err := s.GetComment(ctx, model.Scope{Type: "Post", ID: "2"}, "g1"); !model.IsNotFound(err) {
		t.Errorf("other scope: expected NotFoundError, got %v", err)
	}
	if _, err := s.GetComment(ctx, testScope, "nope"); !model.IsNotFound(err) {
		t.Errorf("missing: expected NotFoundError, got %v", err)
	}
}

func TestListComments(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()
	zero, one := 0, 1

	for _, tc := range []struct {
		name      string
		filter    model.CommentFilter
		want      []string
		wantTotal int
	}{
		{"roots newest first", model.CommentFilter{Scope: &testScope, RootsOnly: true}, []string{"r2", "r1"}, 2},
		{"roots oldest first", model.CommentFilter{Scope: &testScope, RootsOnly: true, Order: model.OrderAsc}, []string{"r1", "r2"}, 2},
		{"roots in tree order", model.CommentFilter{Scope: &testScope, RootsOnly: true, TreeOrder: true}, []string{"r1", "r2"}, 2},
		{"all by submission", model.CommentFilter{Scope: &testScope, Order: model.OrderAsc}, []string{"r1", "c1", "g1", "r2"}, 4},
		{"second page", model.CommentFilter{Scope: &testScope, Order: model.OrderAsc, Limit: 2, Offset: 2}, []string{"g1", "r2"}, 4},
		{"page past end", model.CommentFilter{Scope: &testScope, Limit: 2, Offset: 10}, []string{}, 4},
		{"within r1", model.CommentFilter{Scope: &testScope, Within: &model.Interval{Left: 1, Right: 6}}, []string{"c1", "g1"}, 2},
		{"span depth 0", model.CommentFilter{Scope: &testScope, Span: &model.Interval{Left: 1, Right: 8}, MaxDepth: &zero}, []string{"r1", "r2"}, 2},
		{"span depth 1", model.CommentFilter{Scope: &testScope, Span: &model.Interval{Left: 1, Right: 8}, MaxDepth: &one}, []string{"r1", "c1", "r2"}, 3},
		{"by author", model.CommentFilter{AuthorID: "alice", Order: model.OrderAsc}, []string{"r1", "g1"}, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, total, err := s.ListComments(ctx, tc.filter)
			if err != nil {
				t.Fatalf("ListComments: %v", err)
			}
			if !equal(ids(got), tc.want) {
				t.Errorf("ids = %v, want %v", ids(got), tc.want)
			}
			if total != tc.wantTotal {
				t.Errorf("total = %d, want %d", total, tc.wantTotal)
			}
		})
	}
}

func TestAncestorsDescendants(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	g, _ := s.GetComment(ctx, testScope, "g1")
	anc, err := s.Ancestors(ctx, g)
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if !equal(ids(anc), []string{"r1", "c1"}) {
		t.Errorf("ancestors = %v, want [r1 c1]", ids(anc))
	}

	r, _ := s.GetComment(ctx, testScope, "r1")
	desc, err := s.Descendants(ctx, r)
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	if !equal(ids(desc), []string{"c1", "g1"}) || desc[1].Depth != 2 {
		t.Errorf("descendants = %v", ids(desc))
	}
}

func TestShiftAndDelete(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	// Remove c1's subtree (2,5): two rows go, r1 and r2 close the gap.
	n, err := s.DeleteRange(ctx, testScope, model.Interval{Left: 2, Right: 5})
	if err != nil || n != 2 {
		t.Fatalf("DeleteRange = %d, %v; want 2", n, err)
	}
	if _, err := s.ShiftBounds(ctx, testScope, nestedset.DeleteShift(model.Interval{Left: 2, Right: 5})); err != nil {
		t.Fatalf("ShiftBounds: %v", err)
	}

	all, _, err := s.ListComments(ctx, model.CommentFilter{Scope: &testScope, TreeOrder: true})
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if err := nestedset.Check(testScope, all); err != nil {
		t.Fatalf("Check after delete: %v", err)
	}
	if max, _ := s.MaxRight(ctx, testScope); max != 4 {
		t.Errorf("MaxRight = %d, want 4", max)
	}
	if max, _ := s.MaxRight(ctx, model.Scope{Type: "Post", ID: "empty"}); max != 0 {
		t.Errorf("MaxRight(empty) = %d, want 0", max)
	}
}

func TestAuthorsAndScopes(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	authors, err := s.Authors(ctx, testScope, nil)
	if err != nil || !equal(authors, []string{"alice", "bob", "carol"}) {
		t.Errorf("Authors = %v, %v", authors, err)
	}
	authors, _ = s.Authors(ctx, testScope, &model.Interval{Left: 2, Right: 5})
	if !equal(authors, []string{"alice", "bob"}) {
		t.Errorf("Authors(c1 span) = %v", authors)
	}

	other := &model.Comment{ID: "p1", CommentableType: "Photo", CommentableID: "9", AuthorID: "dan", Body: "x", Lft: 1, Rgt: 2, CreatedAt: time.Now().UTC()}
	if err := s.InsertComment(ctx, other); err != nil {
		t.Fatal(err)
	}
	scopes, err := s.ListScopes(ctx)
	if err != nil {
		t.Fatalf("ListScopes: %v", err)
	}
	if len(scopes) != 2 || scopes[0] != (model.Scope{Type: "Photo", ID: "9"}) {
		t.Errorf("ListScopes = %v", scopes)
	}
	if n, _ := s.CountComments(ctx, testScope); n != 4 {
		t.Errorf("CountComments = %d, want 4", n)
	}
}

func TestLockScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.LockScope(ctx, testScope); err == nil {
		t.Error("LockScope outside a transaction should fail")
	}

	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.LockScope(ctx, testScope); err != nil {
			return err
		}
		// Re-locking in the same transaction must not deadlock.
		return tx.LockScope(ctx, testScope)
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if n := s.locks.held(); n != 0 {
		t.Errorf("%d locks still tracked after commit", n)
	}

	err = s.RunReadOnly(ctx, func(tx store.Store) error {
		return tx.LockScope(ctx, testScope)
	})
	if err == nil {
		t.Error("LockScope in a read-only transaction should fail")
	}
}

func TestRunInTransaction_Rollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		c := &model.Comment{ID: "r1", CommentableType: "Post", CommentableID: "1", AuthorID: "a", Body: "b", Lft: 1, Rgt: 2, CreatedAt: time.Now().UTC()}
		if err := tx.InsertComment(ctx, c); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n, _ := s.CountComments(ctx, testScope); n != 0 {
		t.Errorf("rolled back insert is visible: %d rows", n)
	}
	if n := s.locks.held(); n != 0 {
		t.Errorf("%d locks still tracked after rollback", n)
	}
}

func TestScopeLocks_ContextCancel(t *testing.T) {
	l := newScopeLocks()
	release, err := l.acquire(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.acquire(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// Other keys are independent.
	releaseOther, err := l.acquire(context.Background(), "other")
	if err != nil {
		t.Fatal(err)
	}
	releaseOther()

	release()
	if n := l.held(); n != 0 {
		t.Errorf("held = %d after release, want 0", n)
	}
}

func TestScopeLocks_MutualExclusion(t *testing.T) {
	l := newScopeLocks()
	const workers = 16
	var (
		inside, peak atomic.Int32
		wg           sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.acquire(context.Background(), "k")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	if p := peak.Load(); p != 1 {
		t.Errorf("%d holders of one key at once, want 1", p)
	}
	if n := l.held(); n != 0 {
		t.Errorf("held = %d after all releases, want 0", n)
	}
}
