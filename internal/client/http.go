package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/threads/internal/model"
)

// HTTPClient implements ThreadsClient using the threads HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	retries    int
	backoff    time.Duration
	httpClient *http.Client
}

type Option func(*HTTPClient)

// WithToken sets a bearer token on every request.
func WithToken(token string) Option {
	return func(c *HTTPClient) { c.token = token }
}

// WithRetries retries a request up to n more times when the server reports
// a conflicting mutation (409).
func WithRetries(n int) Option {
	return func(c *HTTPClient) { c.retries = n }
}

// WithBackoff sets the base delay between retries; attempt i waits i times
// the base.
func WithBackoff(d time.Duration) Option {
	return func(c *HTTPClient) { c.backoff = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// NewHTTPClient creates a client targeting baseURL (e.g.
// "http://localhost:8080").
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		backoff:    100 * time.Millisecond,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ThreadsClient = (*HTTPClient)(nil)

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func forestPath(scope model.Scope) string {
	return "/v1/forests/" + url.PathEscape(scope.Type) + "/" + url.PathEscape(scope.ID)
}

func commentPath(scope model.Scope, id string) string {
	return forestPath(scope) + "/comments/" + url.PathEscape(id)
}

func withQuery(path string, opts ListOptions) string {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Items > 0 {
		q.Set("items", strconv.Itoa(opts.Items))
	}
	if opts.Depth != "" {
		q.Set("depth", opts.Depth)
	}
	if opts.Order != "" {
		q.Set("order", opts.Order)
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func (c *HTTPClient) AddComment(ctx context.Context, scope model.Scope, in model.NewComment) (*model.Comment, error) {
	var comment model.Comment
	if err := c.doJSON(ctx, http.MethodPost, forestPath(scope)+"/comments", in, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (c *HTTPClient) GetComment(ctx context.Context, scope model.Scope, id string) (*model.Comment, error) {
	var comment model.Comment
	if err := c.doJSON(ctx, http.MethodGet, commentPath(scope, id), nil, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (c *HTTPClient) page(ctx context.Context, path string, opts ListOptions) (*model.Page, error) {
	var page model.Page
	if err := c.doJSON(ctx, http.MethodGet, withQuery(path, opts), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) RootComments(ctx context.Context, scope model.Scope, opts ListOptions) (*model.Page, error) {
	return c.page(ctx, forestPath(scope)+"/comments/roots", opts)
}

func (c *HTTPClient) NestedComments(ctx context.Context, scope model.Scope, opts ListOptions) (*model.Page, error) {
	return c.page(ctx, forestPath(scope)+"/comments/nested", opts)
}

func (c *HTTPClient) Comments(ctx context.Context, scope model.Scope, opts ListOptions) (*model.Page, error) {
	return c.page(ctx, forestPath(scope)+"/comments", opts)
}

func (c *HTTPClient) Subtree(ctx context.Context, scope model.Scope, id string, opts ListOptions) (*model.Page, error) {
	return c.page(ctx, commentPath(scope, id)+"/subtree", opts)
}

func (c *HTTPClient) Ancestors(ctx context.Context, scope model.Scope, id string) ([]*model.Comment, error) {
	var resp struct {
		Comments []*model.Comment `json:"comments"`
	}
	if err := c.doJSON(ctx, http.MethodGet, commentPath(scope, id)+"/ancestors", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

func (c *HTTPClient) CommentsByUser(ctx context.Context, userID string, scope *model.Scope, opts ListOptions) (*model.Page, error) {
	path := "/v1/users/" + url.PathEscape(userID) + "/comments"
	if scope != nil {
		path = forestPath(*scope) + path[len("/v1"):]
	}
	return c.page(ctx, path, opts)
}

func (c *HTTPClient) DeleteComment(ctx context.Context, scope model.Scope, id string) (int, error) {
	return c.removed(ctx, commentPath(scope, id))
}

func (c *HTTPClient) DeleteForest(ctx context.Context, scope model.Scope) (int, error) {
	return c.removed(ctx, forestPath(scope))
}

func (c *HTTPClient) removed(ctx context.Context, path string) (int, error) {
	var resp struct {
		Removed int `json:"removed"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (c *HTTPClient) HasComments(ctx context.Context, scope model.Scope) (bool, error) {
	var resp struct {
		HasComments bool `json:"has_comments"`
	}
	if err := c.doJSON(ctx, http.MethodGet, forestPath(scope)+"/exists", nil, &resp); err != nil {
		return false, err
	}
	return resp.HasComments, nil
}

func (c *HTTPClient) Verify(ctx context.Context, scope model.Scope) (*VerifyResult, error) {
	var resp VerifyResult
	if err := c.doJSON(ctx, http.MethodGet, forestPath(scope)+"/verify", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Fields     []model.FieldError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether err is a 409 from the server.
func IsConflict(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusConflict
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// doJSON performs a request, retrying conflicts, and decodes the JSON
// response into result unless it is nil.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = c.do(ctx, method, path, payload, result)
		if err == nil || !IsConflict(err) || attempt >= c.retries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * c.backoff):
		}
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload []byte, result any) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error  string             `json:"error"`
			Fields []model.FieldError `json:"fields"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Fields: errResp.Fields}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
