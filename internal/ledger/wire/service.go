package wire

import (
	"context"

	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"google.golang.org/grpc"
)

const (
	ServiceName = "bucketkeeper.ledger.Ledger"

	BucketMethod   = "/" + ServiceName + "/Bucket"
	MessagesMethod = "/" + ServiceName + "/Messages"
	SubmitMethod   = "/" + ServiceName + "/Submit"
	PingMethod     = "/" + ServiceName + "/Ping"
)

// SubmitServer streams the status updates of one call to the client.
type SubmitServer = grpc.ServerStreamingServer[ledger.TxUpdate]

// SubmitClient receives the status updates of one call.
type SubmitClient = grpc.ServerStreamingClient[ledger.TxUpdate]

// LedgerServer is implemented by the ledger node.
type LedgerServer interface {
	Bucket(context.Context, *BucketRequest) (*BucketResponse, error)
	Messages(context.Context, *MessagesRequest) (*MessagesResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	Submit(*SubmitRequest, SubmitServer) error
}

// RegisterLedgerServer registers srv on s.
func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req any](method string, call func(LedgerServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func submitHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubmitRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(LedgerServer).Submit(in, &grpc.GenericServerStream[SubmitRequest, ledger.TxUpdate]{ServerStream: stream})
}

// ServiceDesc describes the ledger service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Bucket",
			Handler: unary(BucketMethod, func(s LedgerServer, ctx context.Context, in *BucketRequest) (any, error) {
				return s.Bucket(ctx, in)
			}),
		},
		{
			MethodName: "Messages",
			Handler: unary(MessagesMethod, func(s LedgerServer, ctx context.Context, in *MessagesRequest) (any, error) {
				return s.Messages(ctx, in)
			}),
		},
		{
			MethodName: "Ping",
			Handler: unary(PingMethod, func(s LedgerServer, ctx context.Context, in *PingRequest) (any, error) {
				return s.Ping(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Submit",
			Handler:       submitHandler,
			ServerStreams: true,
		},
	},
}

// LedgerClient is the client stub of the ledger service.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *LedgerClient) Bucket(ctx context.Context, in *BucketRequest, opts ...grpc.CallOption) (*BucketResponse, error) {
	out := new(BucketResponse)
	if err := c.cc.Invoke(ctx, BucketMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) Messages(ctx context.Context, in *MessagesRequest, opts ...grpc.CallOption) (*MessagesResponse, error) {
	out := new(MessagesResponse)
	if err := c.cc.Invoke(ctx, MessagesMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	out := new(PingResponse)
	if err := c.cc.Invoke(ctx, PingMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) Submit(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (SubmitClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], SubmitMethod, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[SubmitRequest, ledger.TxUpdate]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
