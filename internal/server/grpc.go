package server

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/threads/internal/logger"
	"github.com/alfredjeanlab/threads/internal/model"
)

const serviceName = "threads.v1.Threads"

// ThreadsRPC is the gRPC surface. Every method takes and returns a
// google.protobuf.Struct whose fields mirror the HTTP JSON bodies.
type ThreadsRPC interface {
	AddComment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetComment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RootComments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NestedComments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CommentsBySubmission(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Subtree(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Ancestors(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteComment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteForest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	HasComments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CommentsByUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Verify(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ ThreadsRPC = (*ThreadsServer)(nil)

type rpcMethod func(ThreadsRPC, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call rpcMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ThreadsRPC), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ThreadsRPC), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes threads.v1.Threads for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ThreadsRPC)(nil),
	Methods: []grpc.MethodDesc{
		unary("AddComment", ThreadsRPC.AddComment),
		unary("GetComment", ThreadsRPC.GetComment),
		unary("RootComments", ThreadsRPC.RootComments),
		unary("NestedComments", ThreadsRPC.NestedComments),
		unary("CommentsBySubmission", ThreadsRPC.CommentsBySubmission),
		unary("Subtree", ThreadsRPC.Subtree),
		unary("Ancestors", ThreadsRPC.Ancestors),
		unary("DeleteComment", ThreadsRPC.DeleteComment),
		unary("DeleteForest", ThreadsRPC.DeleteForest),
		unary("HasComments", ThreadsRPC.HasComments),
		unary("CommentsByUser", ThreadsRPC.CommentsByUser),
		unary("Verify", ThreadsRPC.Verify),
		unary("Health", ThreadsRPC.Health),
	},
	Metadata: "threads/v1/threads.proto",
}

// NewGRPCServer creates a gRPC server with recovery, logging and auth
// interceptors and registers the Threads service and reflection.
func NewGRPCServer(ts *ThreadsServer, authToken string, log *logger.Logger) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(log),
			LoggingInterceptor(log),
			AuthInterceptor(authToken),
		),
	)
	srv.RegisterService(&ServiceDesc, ts)
	reflection.Register(srv)
	return srv
}

// rpcRequest is the union of every RPC's input fields.
type rpcRequest struct {
	CommentableType string  `json:"commentable_type"`
	CommentableID   string  `json:"commentable_id"`
	CommentID       string  `json:"comment_id"`
	UserID          string  `json:"user_id"`
	Body            string  `json:"body"`
	AuthorID        string  `json:"author_id"`
	ParentID        *string `json:"parent_id"`
	listParams
}

func (r rpcRequest) scope() model.Scope {
	return model.Scope{Type: r.CommentableType, ID: r.CommentableID}
}

func decode(in *structpb.Struct) (rpcRequest, error) {
	var req rpcRequest
	raw, err := in.MarshalJSON()
	if err != nil {
		return req, status.Errorf(codes.InvalidArgument, "request: %v", err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, status.Errorf(codes.InvalidArgument, "request: %v", err)
	}
	return req, nil
}

// encode converts v to a Struct through its JSON form.
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "response: %v", err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, status.Errorf(codes.Internal, "response: %v", err)
	}
	return out, nil
}

// respond encodes v, or maps err to a status.
func respond(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, grpcError(err)
	}
	return encode(v)
}

func (s *ThreadsServer) AddComment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode(in)
	if err != nil {
		return nil, err
	}
	return respond(s.svc.AddComment(ctx, req.scope(), model.NewComment{
		Body:     req.Body,
		AuthorID: req.AuthorID,
		ParentID: req.ParentID,
	}))
}

func (s *ThreadsServer) GetComment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode(in)
	if err != nil {
		return nil, err
	}
	return respond(s.svc.GetComment(ctx, req.scope(), req.CommentID))
}

func (s *ThreadsServer) RootComments(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode(in)
	if err != nil {
		return nil, err
	}
	return respond(s.svc.RootComments(ctx, req.scope(), req.pageRequest(), req.order()))
}

func (s *ThreadsServer) NestedComments(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode(in)
	if err != nil {
		return nil, err
	}
	depth, err := req.depth()
	if err != nil {
		return nil, grpcError(err)
	}
	return respond(s.svc.NestedComments(ctx, req.scope(), depth, req.pageRequest()))
}

func (s *ThreadsServer) CommentsBySubmission(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode(in)
	if err != nil {
		return nil, err
	}
	return respond(s.svc.CommentsOrderedBySubmission(ctx, req.scope(), req.pageRequest(), req.order()))
}

func (s *ThreadsServer) Subtree(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode(in)
	if err != nil {
		return nil, err
	}
	depth, err := req.depth()
	if err != nil {
		return nil, grpcError(err)
	}
	return respond(s.svc.Subtree(ctx, req.scope(), req.CommentID, depth, req.pageRequest()))
}

func (s *ThreadsServer) Ancestors(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode(in)
	if err != nil {
		return nil, err
	}
	anc, err := s.svc.Ancestors(ctx, req.scope(), req.CommentID)
	return respond(map[string]any{"comments": anc}, err)
}

func (s *ThreadsServer) DeleteComment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode(in)
	if err != nil {
		return nil, err
	}
	n, err := s.svc.DeleteSubtree(ctx, req.scope(), req.CommentID)
	return respond(map[string]int{"removed": n}, err)
}

func (s *ThreadsServer) DeleteForest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode(in)
	if err != nil {
		return nil, err
	}
	n, err := s.svc.DeleteForest(ctx, req.scope())
	return respond(map[string]int{"removed": n}, err)
}

func (s *ThreadsServer) HasComments(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode(in)
	if err != nil {
		return nil, err
	}
	has, err := s.svc.HasComments(ctx, req.scope())
	return respond(map[string]bool{"has_comments": has}, err)
}

func (s *ThreadsServer) CommentsByUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode(in)
	if err != nil {
		return nil, err
	}
	var scope *model.Scope
	if req.CommentableType != "" || req.CommentableID != "" {
		sc := req.scope()
		scope = &sc
	}
	return respond(s.svc.CommentsByUser(ctx, req.UserID, scope, req.pageRequest(), req.order()))
}

func (s *ThreadsServer) Verify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode(in)
	if err != nil {
		return nil, err
	}
	n, err := s.svc.Verify(ctx, req.scope())
	if model.IsConsistency(err) {
		return encode(verifyResult{Consistent: false, Detail: err.Error()})
	}
	return respond(verifyResult{Consistent: true, Comments: n}, err)
}

func (s *ThreadsServer) Health(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "ok"})
}
