package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "diagnosis.v1.Diagnosis"

const (
	Diagnosis_ClassifyImage_FullMethodName    = "/" + ServiceName + "/ClassifyImage"
	Diagnosis_ClassifySymptoms_FullMethodName = "/" + ServiceName + "/ClassifySymptoms"
	Diagnosis_ClassifyCombined_FullMethodName = "/" + ServiceName + "/ClassifyCombined"
)

// DiagnosisServer is the server API for the Diagnosis service.
type DiagnosisServer interface {
	ClassifyImage(context.Context, *ClassifyImageRequest) (*ClassifyResponse, error)
	ClassifySymptoms(context.Context, *ClassifySymptomsRequest) (*ClassifyResponse, error)
	ClassifyCombined(context.Context, *ClassifyCombinedRequest) (*ClassifyResponse, error)
}

// UnimplementedDiagnosisServer can be embedded to have forward compatible implementations.
type UnimplementedDiagnosisServer struct{}

func (UnimplementedDiagnosisServer) ClassifyImage(context.Context, *ClassifyImageRequest) (*ClassifyResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ClassifyImage not implemented")
}

func (UnimplementedDiagnosisServer) ClassifySymptoms(context.Context, *ClassifySymptomsRequest) (*ClassifyResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ClassifySymptoms not implemented")
}

func (UnimplementedDiagnosisServer) ClassifyCombined(context.Context, *ClassifyCombinedRequest) (*ClassifyResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ClassifyCombined not implemented")
}

// RegisterDiagnosisServer registers srv on s.
func RegisterDiagnosisServer(s grpc.ServiceRegistrar, srv DiagnosisServer) {
	s.RegisterService(&Diagnosis_ServiceDesc, srv)
}

func _Diagnosis_ClassifyImage_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ClassifyImageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiagnosisServer).ClassifyImage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Diagnosis_ClassifyImage_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DiagnosisServer).ClassifyImage(ctx, req.(*ClassifyImageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Diagnosis_ClassifySymptoms_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ClassifySymptomsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiagnosisServer).ClassifySymptoms(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Diagnosis_ClassifySymptoms_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DiagnosisServer).ClassifySymptoms(ctx, req.(*ClassifySymptomsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Diagnosis_ClassifyCombined_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ClassifyCombinedRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiagnosisServer).ClassifyCombined(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Diagnosis_ClassifyCombined_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DiagnosisServer).ClassifyCombined(ctx, req.(*ClassifyCombinedRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Diagnosis_ServiceDesc is the grpc.ServiceDesc for the Diagnosis service.
var Diagnosis_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DiagnosisServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ClassifyImage", Handler: _Diagnosis_ClassifyImage_Handler},
		{MethodName: "ClassifySymptoms", Handler: _Diagnosis_ClassifySymptoms_Handler},
		{MethodName: "ClassifyCombined", Handler: _Diagnosis_ClassifyCombined_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "diagnosis/v1/diagnosis.json",
}

// DiagnosisClient is the client API for the Diagnosis service.
type DiagnosisClient interface {
	ClassifyImage(ctx context.Context, in *ClassifyImageRequest, opts ...grpc.CallOption) (*ClassifyResponse, error)
	ClassifySymptoms(ctx context.Context, in *ClassifySymptomsRequest, opts ...grpc.CallOption) (*ClassifyResponse, error)
	ClassifyCombined(ctx context.Context, in *ClassifyCombinedRequest, opts ...grpc.CallOption) (*ClassifyResponse, error)
}

type diagnosisClient struct {
	cc grpc.ClientConnInterface
}

// NewDiagnosisClient returns a client that sends every call with the JSON content subtype.
func NewDiagnosisClient(cc grpc.ClientConnInterface) DiagnosisClient {
	return &diagnosisClient{cc: cc}
}

func (c *diagnosisClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *diagnosisClient) ClassifyImage(ctx context.Context, in *ClassifyImageRequest, opts ...grpc.CallOption) (*ClassifyResponse, error) {
	out := new(ClassifyResponse)
	if err := c.invoke(ctx, Diagnosis_ClassifyImage_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *diagnosisClient) ClassifySymptoms(ctx context.Context, in *ClassifySymptomsRequest, opts ...grpc.CallOption) (*ClassifyResponse, error) {
	out := new(ClassifyResponse)
	if err := c.invoke(ctx, Diagnosis_ClassifySymptoms_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *diagnosisClient) ClassifyCombined(ctx context.Context, in *ClassifyCombinedRequest, opts ...grpc.CallOption) (*ClassifyResponse, error) {
	out := new(ClassifyResponse)
	if err := c.invoke(ctx, Diagnosis_ClassifyCombined_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
