package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "flashkv.v1.RecordService"

// Full method names used by clients
const (
	MethodFind    = "/" + ServiceName + "/Find"
	MethodGet     = "/" + ServiceName + "/Get"
	MethodPut     = "/" + ServiceName + "/Put"
	MethodDelete  = "/" + ServiceName + "/Delete"
	MethodList    = "/" + ServiceName + "/List"
	MethodUsage   = "/" + ServiceName + "/Usage"
	MethodStats   = "/" + ServiceName + "/Stats"
	MethodCompact = "/" + ServiceName + "/Compact"
	MethodFormat  = "/" + ServiceName + "/Format"
)

// RecordServiceServer is the server API of the record service. Messages are
// protobuf well-known types so no generated code is needed.
type RecordServiceServer interface {
	// Find returns the header of the live record under a name
	Find(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// Get returns the payload of the live record under a name
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	// Put writes {"name": string, "value": base64 string}
	Put(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	List(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Usage(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Compact(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Format(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// unary builds a method handler that decodes a Req and dispatches it
// through the optional interceptor.
func unary[Req, Resp any](fullMethod string, call func(RecordServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RecordServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RecordServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RecordServiceDesc describes the record service for grpc.Server.RegisterService
var RecordServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecordServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Find", Handler: unary(MethodFind, RecordServiceServer.Find)},
		{MethodName: "Get", Handler: unary(MethodGet, RecordServiceServer.Get)},
		{MethodName: "Put", Handler: unary(MethodPut, RecordServiceServer.Put)},
		{MethodName: "Delete", Handler: unary(MethodDelete, RecordServiceServer.Delete)},
		{MethodName: "List", Handler: unary(MethodList, RecordServiceServer.List)},
		{MethodName: "Usage", Handler: unary(MethodUsage, RecordServiceServer.Usage)},
		{MethodName: "Stats", Handler: unary(MethodStats, RecordServiceServer.Stats)},
		{MethodName: "Compact", Handler: unary(MethodCompact, RecordServiceServer.Compact)},
		{MethodName: "Format", Handler: unary(MethodFormat, RecordServiceServer.Format)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flashkv/v1/record.proto",
}

// RegisterRecordServiceServer registers srv with s
func RegisterRecordServiceServer(s grpc.ServiceRegistrar, srv RecordServiceServer) {
	s.RegisterService(&RecordServiceDesc, srv)
}
