package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/threads/internal/model"
)

const grpcService = "/threads.v1.Threads/"

// GRPCClient implements ThreadsClient over the threads.v1.Threads service.
// Messages are google.protobuf.Struct values shaped like the HTTP bodies.
type GRPCClient struct {
	conn    *grpc.ClientConn
	token   string
	retries int
	backoff time.Duration
}

// NewGRPCClient connects to addr. Extra dial options are appended after the
// insecure transport credentials.
func NewGRPCClient(addr, token string, retries int, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token, retries: retries, backoff: 100 * time.Millisecond}, nil
}

var _ ThreadsClient = (*GRPCClient)(nil)

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// grpcRequest mirrors the server's request fields.
type grpcRequest struct {
	CommentableType string  `json:"commentable_type,omitempty"`
	CommentableID   string  `json:"commentable_id,omitempty"`
	CommentID       string  `json:"comment_id,omitempty"`
	UserID          string  `json:"user_id,omitempty"`
	Body            string  `json:"body,omitempty"`
	AuthorID        string  `json:"author_id,omitempty"`
	ParentID        *string `json:"parent_id,omitempty"`
	ListOptions
}

func scoped(scope model.Scope) grpcRequest {
	return grpcRequest{CommentableType: scope.Type, CommentableID: scope.ID}
}

// invoke calls method, retrying Aborted up to c.retries times, and decodes
// the reply into result.
func (c *GRPCClient) invoke(ctx context.Context, method string, req grpcRequest, result any) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	in := new(structpb.Struct)
	if err := in.UnmarshalJSON(raw); err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	out := new(structpb.Struct)
	for attempt := 0; ; attempt++ {
		err = c.conn.Invoke(ctx, grpcService+method, in, out)
		if err == nil || status.Code(err) != codes.Aborted || attempt >= c.retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * c.backoff):
		}
	}
	if err != nil {
		return err
	}

	data, err := out.MarshalJSON()
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *GRPCClient) AddComment(ctx context.Context, scope model.Scope, in model.NewComment) (*model.Comment, error) {
	req := scoped(scope)
	req.Body, req.AuthorID, req.ParentID = in.Body, in.AuthorID, in.ParentID
	var comment model.Comment
	if err := c.invoke(ctx, "AddComment", req, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (c *GRPCClient) GetComment(ctx context.Context, scope model.Scope, id string) (*model.Comment, error) {
	req := scoped(scope)
	req.CommentID = id
	var comment model.Comment
	if err := c.invoke(ctx, "GetComment", req, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (c *GRPCClient) page(ctx context.Context, method string, req grpcRequest) (*model.Page, error) {
	var page model.Page
	if err := c.invoke(ctx, method, req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *GRPCClient) RootComments(ctx context.Context, scope model.Scope, opts ListOptions) (*model.Page, error) {
	req := scoped(scope)
	req.ListOptions = opts
	return c.page(ctx, "RootComments", req)
}

func (c *GRPCClient) NestedComments(ctx context.Context, scope model.Scope, opts ListOptions) (*model.Page, error) {
	req := scoped(scope)
	req.ListOptions = opts
	return c.page(ctx, "NestedComments", req)
}

func (c *GRPCClient) Comments(ctx context.Context, scope model.Scope, opts ListOptions) (*model.Page, error) {
	req := scoped(scope)
	req.ListOptions = opts
	return c.page(ctx, "CommentsBySubmission", req)
}

func (c *GRPCClient) Subtree(ctx context.Context, scope model.Scope, id string, opts ListOptions) (*model.Page, error) {
	req := scoped(scope)
	req.CommentID = id
	req.ListOptions = opts
	return c.page(ctx, "Subtree", req)
}

func (c *GRPCClient) Ancestors(ctx context.Context, scope model.Scope, id string) ([]*model.Comment, error) {
	req := scoped(scope)
	req.CommentID = id
	var resp struct {
		Comments []*model.Comment `json:"comments"`
	}
	if err := c.invoke(ctx, "Ancestors", req, &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

func (c *GRPCClient) CommentsByUser(ctx context.Context, userID string, scope *model.Scope, opts ListOptions) (*model.Page, error) {
	var req grpcRequest
	if scope != nil {
		req = scoped(*scope)
	}
	req.UserID = userID
	req.ListOptions = opts
	return c.page(ctx, "CommentsByUser", req)
}

func (c *GRPCClient) removed(ctx context.Context, method string, req grpcRequest) (int, error) {
	var resp struct {
		Removed int `json:"removed"`
	}
	if err := c.invoke(ctx, method, req, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (c *GRPCClient) DeleteComment(ctx context.Context, scope model.Scope, id string) (int, error) {
	req := scoped(scope)
	req.CommentID = id
	return c.removed(ctx, "DeleteComment", req)
}

func (c *GRPCClient) DeleteForest(ctx context.Context, scope model.Scope) (int, error) {
	return c.removed(ctx, "DeleteForest", scoped(scope))
}

func (c *GRPCClient) HasComments(ctx context.Context, scope model.Scope) (bool, error) {
	var resp struct {
		HasComments bool `json:"has_comments"`
	}
	if err := c.invoke(ctx, "HasComments", scoped(scope), &resp); err != nil {
		return false, err
	}
	return resp.HasComments, nil
}

func (c *GRPCClient) Verify(ctx context.Context, scope model.Scope) (*VerifyResult, error) {
	var resp VerifyResult
	if err := c.invoke(ctx, "Verify", scoped(scope), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.invoke(ctx, "Health", grpcRequest{}, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}
