package node

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/auth"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/wire"
	"github.com/dmitrijs2005/bucketkeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Server serves the ledger gRPC service.
type Server struct {
	address  string
	store    Store
	producer *Producer
	metrics  *Metrics
	logger   logging.Logger
}

func NewServer(address string, store Store, producer *Producer, m *Metrics, l logging.Logger) *Server {
	return &Server{
		address:  address,
		store:    store,
		producer: producer,
		metrics:  m,
		logger:   l.With("module", "grpc_server"),
	}
}

// NewGRPCServer creates a grpc.Server with the ledger service and the
// metrics interceptors registered.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(s.metricsUnaryInterceptor),
		grpc.ChainStreamInterceptor(s.metricsStreamInterceptor),
	)
	srv := grpc.NewServer(opts...)
	wire.RegisterLedgerServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewGRPCServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}

func (s *Server) Bucket(ctx context.Context, req *wire.BucketRequest) (*wire.BucketResponse, error) {
	b, err := s.store.Bucket(ctx, req.BucketID)
	if err != nil {
		return nil, toStatus(err)
	}
	if b.NamespaceID != req.NamespaceID {
		return nil, status.Error(codes.NotFound, "bucket not found")
	}
	return &wire.BucketResponse{Bucket: *b}, nil
}

func (s *Server) Messages(ctx context.Context, req *wire.MessagesRequest) (*wire.MessagesResponse, error) {
	entries, err := s.store.Messages(ctx, req.BucketID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &wire.MessagesResponse{Entries: entries}, nil
}

func (s *Server) Ping(ctx context.Context, _ *wire.PingRequest) (*wire.PingResponse, error) {
	h, err := s.store.Height(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &wire.PingResponse{Height: h}, nil
}

// Submit authorizes the call, queues it for the next block and streams its
// status updates. A call that was queued is applied even if the client
// goes away.
func (s *Server) Submit(req *wire.SubmitRequest, stream wire.SubmitServer) error {
	ctx := stream.Context()

	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(wire.AuthorizationKey); len(values) > 0 {
			token = values[0]
		}
	}
	if token == "" {
		return status.Error(codes.Unauthenticated, "missing authorization")
	}
	caller, txHash, err := auth.VerifyCall(token, req.Call)
	if err != nil {
		return toStatus(err)
	}

	sub := newSubmission(caller, txHash, req.Call)
	if err := s.producer.enqueue(ctx, sub); err != nil {
		return toStatus(err)
	}
	s.logger.Info(ctx, "call queued", "method", string(req.Call.Method), "tx_hash", txHash, "caller", caller)

	if err := stream.Send(&ledger.TxUpdate{Status: ledger.StatusReady, TxHash: txHash}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return toStatus(ctx.Err())
		case u := <-sub.updates:
			if err := stream.Send(&u); err != nil {
				return err
			}
			if u.Status == ledger.StatusFinalized || u.Status == ledger.StatusDropped {
				return nil
			}
		}
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func (s *Server) metricsUnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.metrics.RPCDuration.WithLabelValues(info.FullMethod, status.Code(err).String()).Observe(time.Since(start).Seconds())
	return resp, err
}

func (s *Server) metricsStreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	s.metrics.RPCDuration.WithLabelValues(info.FullMethod, status.Code(err).String()).Observe(time.Since(start).Seconds())
	if err != nil && status.Code(err) == codes.Internal {
		s.logger.Error(ss.Context(), "stream failed", "method", info.FullMethod, "error", err.Error())
	}
	return err
}
