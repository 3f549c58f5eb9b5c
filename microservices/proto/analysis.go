// Package proto holds the AnalysisService gRPC contract. Requests and
// responses are google.protobuf.Struct documents carrying the same JSON
// shapes as the HTTP API.
package proto

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "babelfish.AnalysisService"

const (
	AnalysisService_Analyze_FullMethodName      = "/" + ServiceName + "/Analyze"
	AnalysisService_WalkPV_FullMethodName       = "/" + ServiceName + "/WalkPV"
	AnalysisService_ClassifyMove_FullMethodName = "/" + ServiceName + "/ClassifyMove"

	AnalysisService_AnalyzeVariations_FullMethodName = "/" + ServiceName + "/AnalyzeVariations"
)

type AnalysisServiceServer interface {
	Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WalkPV(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClassifyMove(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AnalyzeVariations(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedAnalysisServiceServer can be embedded to keep servers
// compiling when methods are added.
type UnimplementedAnalysisServiceServer struct{}

func (UnimplementedAnalysisServiceServer) Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Analyze not implemented")
}

func (UnimplementedAnalysisServiceServer) WalkPV(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method WalkPV not implemented")
}

func (UnimplementedAnalysisServiceServer) ClassifyMove(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ClassifyMove not implemented")
}

func (UnimplementedAnalysisServiceServer) AnalyzeVariations(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method AnalyzeVariations not implemented")
}

type unaryCall func(AnalysisServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AnalysisServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AnalysisServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var AnalysisService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalysisServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Analyze",
			Handler: unaryHandler(AnalysisService_Analyze_FullMethodName, func(s AnalysisServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.Analyze(ctx, in)
			}),
		},
		{
			MethodName: "WalkPV",
			Handler: unaryHandler(AnalysisService_WalkPV_FullMethodName, func(s AnalysisServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.WalkPV(ctx, in)
			}),
		},
		{
			MethodName: "ClassifyMove",
			Handler: unaryHandler(AnalysisService_ClassifyMove_FullMethodName, func(s AnalysisServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.ClassifyMove(ctx, in)
			}),
		},
		{
			MethodName: "AnalyzeVariations",
			Handler: unaryHandler(AnalysisService_AnalyzeVariations_FullMethodName, func(s AnalysisServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.AnalyzeVariations(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "babelfish/analysis.proto",
}

func RegisterAnalysisServiceServer(s grpc.ServiceRegistrar, srv AnalysisServiceServer) {
	s.RegisterService(&AnalysisService_ServiceDesc, srv)
}

type AnalysisServiceClient interface {
	Analyze(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	WalkPV(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ClassifyMove(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	AnalyzeVariations(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type analysisServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAnalysisServiceClient(cc grpc.ClientConnInterface) AnalysisServiceClient {
	return &analysisServiceClient{cc}
}

func (c *analysisServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *analysisServiceClient) Analyze(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AnalysisService_Analyze_FullMethodName, in, opts)
}

func (c *analysisServiceClient) WalkPV(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AnalysisService_WalkPV_FullMethodName, in, opts)
}

func (c *analysisServiceClient) ClassifyMove(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AnalysisService_ClassifyMove_FullMethodName, in, opts)
}

func (c *analysisServiceClient) AnalyzeVariations(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AnalysisService_AnalyzeVariations_FullMethodName, in, opts)
}

// Encode converts a JSON-serialisable object into a Struct.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// Decode fills dst from s through its JSON form.
func Decode(s *structpb.Struct, dst any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
