package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/victornm/examprep/internal/errors"
)

const (
	ServiceName = "examprep.v1.AttemptService"

	// CodecName is the gRPC content subtype of the service's JSON messages.
	CodecName = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

// AttemptServiceServer is the gRPC surface of the attempt lifecycle.
type AttemptServiceServer interface {
	Start(context.Context, *StartRequest) (*AttemptView, error)
	SubmitAnswer(context.Context, *SubmitAnswerRequest) (*AnswerResult, error)
	Finalize(context.Context, *AttemptRequest) (*FinalResult, error)
	GetInProgress(context.Context, *AttemptRequest) (*ProgressView, error)
	GetFinalized(context.Context, *AttemptRequest) (*DetailedResult, error)
	ListAttempts(context.Context, *ListAttemptsRequest) (*ListAttemptsResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AttemptServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Start", AttemptServiceServer.Start),
		unary("SubmitAnswer", AttemptServiceServer.SubmitAnswer),
		unary("Finalize", AttemptServiceServer.Finalize),
		unary("GetInProgress", AttemptServiceServer.GetInProgress),
		unary("GetFinalized", AttemptServiceServer.GetFinalized),
		unary("ListAttempts", AttemptServiceServer.ListAttempts),
	},
	Metadata: "examprep/v1/attempt.json",
}

func RegisterAttemptServiceServer(s grpc.ServiceRegistrar, srv AttemptServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unary[Req, Resp any](method string, call func(AttemptServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method

	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			handle := func(ctx context.Context, req any) (any, error) {
				resp, err := call(srv.(AttemptServiceServer), ctx, req.(*Req))
				if err != nil {
					return nil, errors.Convert(err)
				}
				return resp, nil
			}

			if interceptor == nil {
				return handle(ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}

			return interceptor(ctx, in, info, handle)
		},
	}
}

// AttemptClient calls AttemptService over a gRPC connection using the JSON codec.
type AttemptClient struct {
	cc grpc.ClientConnInterface
}

func NewAttemptClient(cc grpc.ClientConnInterface) *AttemptClient {
	return &AttemptClient{cc: cc}
}

func (c *AttemptClient) Start(ctx context.Context, in *StartRequest, opts ...grpc.CallOption) (*AttemptView, error) {
	return invoke[AttemptView](ctx, c.cc, "Start", in, opts)
}

func (c *AttemptClient) SubmitAnswer(ctx context.Context, in *SubmitAnswerRequest, opts ...grpc.CallOption) (*AnswerResult, error) {
	return invoke[AnswerResult](ctx, c.cc, "SubmitAnswer", in, opts)
}

func (c *AttemptClient) Finalize(ctx context.Context, in *AttemptRequest, opts ...grpc.CallOption) (*FinalResult, error) {
	return invoke[FinalResult](ctx, c.cc, "Finalize", in, opts)
}

func (c *AttemptClient) GetInProgress(ctx context.Context, in *AttemptRequest, opts ...grpc.CallOption) (*ProgressView, error) {
	return invoke[ProgressView](ctx, c.cc, "GetInProgress", in, opts)
}

func (c *AttemptClient) GetFinalized(ctx context.Context, in *AttemptRequest, opts ...grpc.CallOption) (*DetailedResult, error) {
	return invoke[DetailedResult](ctx, c.cc, "GetFinalized", in, opts)
}

func (c *AttemptClient) ListAttempts(ctx context.Context, in *ListAttemptsRequest, opts ...grpc.CallOption) (*ListAttemptsResponse, error) {
	return invoke[ListAttemptsResponse](ctx, c.cc, "ListAttempts", in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)

	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
