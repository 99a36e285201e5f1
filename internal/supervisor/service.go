package supervisor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	TerminalServiceName = "supervisor.TerminalService"

	listFullMethod   = "/supervisor.TerminalService/List"
	listenFullMethod = "/supervisor.TerminalService/Listen"
	writeFullMethod  = "/supervisor.TerminalService/Write"
)

// TerminalServiceServer is the subset of the supervisor terminal service
// that mirroring relies on.
type TerminalServiceServer interface {
	List(context.Context, *ListTerminalsRequest) (*ListTerminalsResponse, error)
	Listen(*ListenTerminalRequest, grpc.ServerStreamingServer[ListenTerminalResponse]) error
	Write(context.Context, *WriteTerminalRequest) (*WriteTerminalResponse, error)
}

// UnimplementedTerminalServiceServer can be embedded to get forward
// compatible implementations.
type UnimplementedTerminalServiceServer struct{}

func (UnimplementedTerminalServiceServer) List(context.Context, *ListTerminalsRequest) (*ListTerminalsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method List not implemented")
}

func (UnimplementedTerminalServiceServer) Listen(*ListenTerminalRequest, grpc.ServerStreamingServer[ListenTerminalResponse]) error {
	return status.Error(codes.Unimplemented, "method Listen not implemented")
}

func (UnimplementedTerminalServiceServer) Write(context.Context, *WriteTerminalRequest) (*WriteTerminalResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Write not implemented")
}

// RegisterTerminalServiceServer registers srv on s. The server must be
// created with ServerCodec.
func RegisterTerminalServiceServer(s grpc.ServiceRegistrar, srv TerminalServiceServer) {
	s.RegisterService(&terminalServiceDesc, srv)
}

func listHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListTerminalsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TerminalServiceServer).List(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TerminalServiceServer).List(ctx, req.(*ListTerminalsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listenHandler(srv any, stream grpc.ServerStream) error {
	in := new(ListenTerminalRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TerminalServiceServer).Listen(in, &grpc.GenericServerStream[ListenTerminalRequest, ListenTerminalResponse]{ServerStream: stream})
}

func writeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(WriteTerminalRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TerminalServiceServer).Write(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: writeFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TerminalServiceServer).Write(ctx, req.(*WriteTerminalRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var listenStreamDesc = grpc.StreamDesc{
	StreamName:    "Listen",
	Handler:       listenHandler,
	ServerStreams: true,
}

var terminalServiceDesc = grpc.ServiceDesc{
	ServiceName: TerminalServiceName,
	HandlerType: (*TerminalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "List", Handler: listHandler},
		{MethodName: "Write", Handler: writeHandler},
	},
	Streams:  []grpc.StreamDesc{listenStreamDesc},
	Metadata: "supervisor/terminal.proto",
}
