package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/threads/internal/model"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	// captured from the request
	method      string
	path        string
	rawPath     string // URL-encoded path (for testing PathEscape)
	query       string
	body        string
	contentType string
	auth        string

	// canned response
	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.rawPath = r.URL.RawPath
	h.query = r.URL.RawQuery
	h.contentType = r.Header.Get("Content-Type")
	h.auth = r.Header.Get("Authorization")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

// newTestClient creates an HTTPClient pointed at a test server with the given handler.
func newTestClient(h http.Handler, opts ...Option) (*HTTPClient, *httptest.Server) {
	srv := httptest.NewServer(h)
	c := NewHTTPClient(srv.URL, opts...)
	return c, srv
}

var post = model.Scope{Type: "Post", ID: "1"}

const pageJSON = `{"page":{"total_count":2,"page_count":1,"current_page":1,"items_per_page":20},
"comments":[{"id":"cm-1","commentable_type":"Post","commentable_id":"1","author_id":"u1","body":"hi","lft":1,"rgt":4,"depth":0,"created_at":"2026-01-02T03:04:05Z"},
{"id":"cm-2","commentable_type":"Post","commentable_id":"1","author_id":"u2","body":"re","parent_id":"cm-1","lft":2,"rgt":3,"depth":1,"created_at":"2026-01-02T03:04:06Z"}]}`

func TestHTTPClient_AddComment(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusCreated,
		responseBody: `{"id":"cm-2","commentable_type":"Post","commentable_id":"1","author_id":"u2","body":"re","parent_id":"cm-1","lft":2,"rgt":3,"depth":1,"created_at":"2026-01-02T03:04:06Z"}`,
	}
	c, srv := newTestClient(h, WithToken("s3cret"))
	defer srv.Close()

	parent := "cm-1"
	got, err := c.AddComment(context.Background(), post, model.NewComment{Body: "re", AuthorID: "u2", ParentID: &parent})
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	if h.method != http.MethodPost {
		t.Errorf("method = %q, want POST", h.method)
	}
	if h.path != "/v1/forests/Post/1/comments" {
		t.Errorf("path = %q", h.path)
	}
	if h.contentType != "application/json" {
		t.Errorf("content-type = %q", h.contentType)
	}
	if h.auth != "Bearer s3cret" {
		t.Errorf("authorization = %q", h.auth)
	}

	var sent map[string]any
	if err := json.Unmarshal([]byte(h.body), &sent); err != nil {
		t.Fatalf("decoding sent body: %v", err)
	}
	if sent["body"] != "re" || sent["author_id"] != "u2" || sent["parent_id"] != "cm-1" {
		t.Errorf("sent body = %v", sent)
	}

	if got.ID != "cm-2" || got.Lft != 2 || got.Rgt != 3 || got.Depth != 1 {
		t.Errorf("got %+v", got)
	}
	if got.ParentID == nil || *got.ParentID != "cm-1" {
		t.Errorf("parent = %v, want cm-1", got.ParentID)
	}
}

func TestHTTPClient_Listings(t *testing.T) {
	for _, tc := range []struct {
		name      string
		call      func(c *HTTPClient) (*model.Page, error)
		wantPath  string
		wantQuery string
	}{
		{
			"roots",
			func(c *HTTPClient) (*model.Page, error) {
				return c.RootComments(context.Background(), post, ListOptions{Page: 2, Items: 5, Order: "asc"})
			},
			"/v1/forests/Post/1/comments/roots", "items=5&order=asc&page=2",
		},
		{
			"nested",
			func(c *HTTPClient) (*model.Page, error) {
				return c.NestedComments(context.Background(), post, ListOptions{Depth: "1"})
			},
			"/v1/forests/Post/1/comments/nested", "depth=1",
		},
		{
			"submission",
			func(c *HTTPClient) (*model.Page, error) {
				return c.Comments(context.Background(), post, ListOptions{})
			},
			"/v1/forests/Post/1/comments", "",
		},
		{
			"subtree",
			func(c *HTTPClient) (*model.Page, error) {
				return c.Subtree(context.Background(), post, "cm-1", ListOptions{Depth: "all"})
			},
			"/v1/forests/Post/1/comments/cm-1/subtree", "depth=all",
		},
		{
			"user unscoped",
			func(c *HTTPClient) (*model.Page, error) {
				return c.CommentsByUser(context.Background(), "u1", nil, ListOptions{Items: 3})
			},
			"/v1/users/u1/comments", "items=3",
		},
		{
			"user scoped",
			func(c *HTTPClient) (*model.Page, error) {
				return c.CommentsByUser(context.Background(), "u1", &post, ListOptions{})
			},
			"/v1/forests/Post/1/users/u1/comments", "",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := &testHandler{responseBody: pageJSON}
			c, srv := newTestClient(h)
			defer srv.Close()

			page, err := tc.call(c)
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			if h.method != http.MethodGet {
				t.Errorf("method = %q, want GET", h.method)
			}
			if h.path != tc.wantPath {
				t.Errorf("path = %q, want %q", h.path, tc.wantPath)
			}
			if h.query != tc.wantQuery {
				t.Errorf("query = %q, want %q", h.query, tc.wantQuery)
			}
			if page.Info.TotalCount != 2 || len(page.Comments) != 2 {
				t.Fatalf("page = %+v", page)
			}
			if page.Comments[1].Depth != 1 {
				t.Errorf("second comment depth = %d, want 1", page.Comments[1].Depth)
			}
		})
	}
}

func TestHTTPClient_URLEscaping(t *testing.T) {
	h := &testHandler{responseBody: `{"has_comments":true}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	has, err := c.HasComments(context.Background(), model.Scope{Type: "Blog/Post", ID: "a b"})
	if err != nil {
		t.Fatalf("HasComments: %v", err)
	}
	if !has {
		t.Error("expected has_comments true")
	}
	if h.rawPath != "/v1/forests/Blog%2FPost/a%20b/exists" {
		t.Errorf("raw path = %q", h.rawPath)
	}
}

func TestHTTPClient_Deletes(t *testing.T) {
	h := &testHandler{responseBody: `{"removed":3}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	n, err := c.DeleteComment(context.Background(), post, "cm-1")
	if err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}
	if n != 3 || h.method != http.MethodDelete || h.path != "/v1/forests/Post/1/comments/cm-1" {
		t.Errorf("removed %d via %s %s", n, h.method, h.path)
	}

	if _, err := c.DeleteForest(context.Background(), post); err != nil {
		t.Fatalf("DeleteForest: %v", err)
	}
	if h.method != http.MethodDelete || h.path != "/v1/forests/Post/1" {
		t.Errorf("forest delete via %s %s", h.method, h.path)
	}
}

func TestHTTPClient_VerifyAndAncestors(t *testing.T) {
	h := &testHandler{responseBody: `{"consistent":false,"comments":0,"detail":"gap at 3"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	res, err := c.Verify(context.Background(), post)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Consistent || res.Detail != "gap at 3" {
		t.Errorf("verify = %+v", res)
	}

	h.responseBody = `{"comments":[{"id":"cm-1","lft":1,"rgt":4}]}`
	anc, err := c.Ancestors(context.Background(), post, "cm-2")
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if len(anc) != 1 || anc[0].ID != "cm-1" || h.path != "/v1/forests/Post/1/comments/cm-2/ancestors" {
		t.Errorf("ancestors = %v via %s", anc, h.path)
	}
}

func TestHTTPClient_ErrorResponses(t *testing.T) {
	for _, tc := range []struct {
		name       string
		status     int
		body       string
		wantMsg    string
		wantFields int
		notFound   bool
		conflict   bool
	}{
		{"validation", http.StatusBadRequest, `{"error":"validation failed","fields":[{"field":"body","message":"is required"}]}`, "validation failed", 1, false, false},
		{"not found", http.StatusNotFound, `{"error":"parent comment cm-x not found"}`, "parent comment cm-x not found", 0, true, false},
		{"conflict", http.StatusConflict, `{"error":"conflict"}`, "conflict", 0, false, true},
		{"plain text", http.StatusBadGateway, "upstream down\n", "upstream down", 0, false, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := &testHandler{statusCode: tc.status, responseBody: tc.body}
			c, srv := newTestClient(h)
			defer srv.Close()

			_, err := c.GetComment(context.Background(), post, "cm-x")
			if err == nil {
				t.Fatal("expected error")
			}
			ae, ok := err.(*APIError)
			if !ok {
				t.Fatalf("error type = %T, want *APIError", err)
			}
			if ae.StatusCode != tc.status || ae.Message != tc.wantMsg || len(ae.Fields) != tc.wantFields {
				t.Errorf("APIError = %+v", ae)
			}
			if IsNotFound(err) != tc.notFound || IsConflict(err) != tc.conflict {
				t.Errorf("IsNotFound=%v IsConflict=%v", IsNotFound(err), IsConflict(err))
			}
		})
	}
}

// flakyHandler answers 409 for the first n requests.
type flakyHandler struct {
	conflicts int32
	calls     atomic.Int32
}

func (h *flakyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.calls.Add(1) <= h.conflicts {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"scope busy"}`))
		return
	}
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"id":"cm-1","lft":1,"rgt":2}`))
}

func TestHTTPClient_RetriesConflicts(t *testing.T) {
	h := &flakyHandler{conflicts: 2}
	c, srv := newTestClient(h, WithRetries(2), WithBackoff(time.Millisecond))
	defer srv.Close()

	got, err := c.AddComment(context.Background(), post, model.NewComment{Body: "x", AuthorID: "u"})
	if err != nil {
		t.Fatalf("AddComment after retries: %v", err)
	}
	if got.ID != "cm-1" || h.calls.Load() != 3 {
		t.Errorf("got %+v after %d calls", got, h.calls.Load())
	}
}

func TestHTTPClient_RetriesExhausted(t *testing.T) {
	h := &flakyHandler{conflicts: 5}
	c, srv := newTestClient(h, WithRetries(1), WithBackoff(time.Millisecond))
	defer srv.Close()

	_, err := c.AddComment(context.Background(), post, model.NewComment{Body: "x", AuthorID: "u"})
	if !IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if h.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", h.calls.Load())
	}
}

func TestHTTPClient_NoRetryByDefault(t *testing.T) {
	h := &flakyHandler{conflicts: 1}
	c, srv := newTestClient(h)
	defer srv.Close()

	if _, err := c.AddComment(context.Background(), post, model.NewComment{Body: "x", AuthorID: "u"}); !IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if h.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", h.calls.Load())
	}
}

func TestHTTPClient_Health(t *testing.T) {
	h := &testHandler{responseBody: `{"status":"ok"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	got, err := c.Health(context.Background())
	if err != nil || got != "ok" {
		t.Fatalf("Health = %q, %v", got, err)
	}
	if h.path != "/v1/health" {
		t.Errorf("path = %q", h.path)
	}
}
