package oracle

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region wire

// The inference service exposes one unary method. Requests and replies are
// structpb.Struct values:
//
//	request: {"model": string, "messages": [{"role": string, "content": string}]}
//	reply:   {"text": string, "finish_reason": string}
const (
	serviceName    = "scenegen.oracle.v1.Oracle"
	completeMethod = "/" + serviceName + "/Complete"
)

func encodeRequest(model string, messages []Message) (*structpb.Struct, error) {
	list := make([]any, len(messages))
	for i, m := range messages {
		list[i] = map[string]any{"role": string(m.Role), "content": m.Content}
	}
	return structpb.NewStruct(map[string]any{"model": model, "messages": list})
}

func decodeRequest(req *structpb.Struct) (string, []Message) {
	fields := req.GetFields()
	model := fields["model"].GetStringValue()
	var messages []Message
	for _, v := range fields["messages"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		messages = append(messages, Message{
			Role:    Role(f["role"].GetStringValue()),
			Content: f["content"].GetStringValue(),
		})
	}
	return model, messages
}

// #endregion wire

// #region grpc-backend

// GRPCBackend calls a remote inference service over gRPC.
type GRPCBackend struct {
	conn   grpc.ClientConnInterface
	closer func() error
}

// NewGRPCBackend connects to the inference server at addr.
func NewGRPCBackend(addr string) (*GRPCBackend, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPCBackend{conn: conn, closer: conn.Close}, nil
}

// NewGRPCBackendWithConn wraps an existing connection. The caller owns it.
func NewGRPCBackendWithConn(conn grpc.ClientConnInterface) *GRPCBackend {
	return &GRPCBackend{conn: conn}
}

// Close shuts down a connection opened by NewGRPCBackend.
func (b *GRPCBackend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

// Name implements Backend.
func (b *GRPCBackend) Name() string { return "grpc" }

// Complete implements Backend.
func (b *GRPCBackend) Complete(ctx context.Context, model string, messages []Message) (Completion, error) {
	req, err := encodeRequest(model, messages)
	if err != nil {
		return Completion{}, fmt.Errorf("encode request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := b.conn.Invoke(ctx, completeMethod, req, resp); err != nil {
		return Completion{}, fmt.Errorf("grpc complete: %w", err)
	}
	fields := resp.GetFields()
	return Completion{
		Text:         fields["text"].GetStringValue(),
		FinishReason: fields["finish_reason"].GetStringValue(),
	}, nil
}

// #endregion grpc-backend

// #region grpc-server

// CompletionServer is the server side of the inference service.
type CompletionServer interface {
	Complete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterCompletionServer mounts srv on s.
func RegisterCompletionServer(s *grpc.Server, srv CompletionServer) {
	s.RegisterService(&completionServiceDesc, srv)
}

var completionServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CompletionServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Complete",
		Handler:    completeHandler,
	}},
	Streams: []grpc.StreamDesc{},
}

func completeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CompletionServer).Complete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: completeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CompletionServer).Complete(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// BackendServer serves any Backend over gRPC, e.g. to front a local model
// for several workers.
type BackendServer struct {
	Backend Backend
}

// Complete implements CompletionServer.
func (s BackendServer) Complete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	model, messages := decodeRequest(req)
	comp, err := s.Backend.Complete(ctx, model, messages)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{"text": comp.Text, "finish_reason": comp.FinishReason})
}

// #endregion grpc-server
