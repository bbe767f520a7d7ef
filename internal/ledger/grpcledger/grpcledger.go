// Package grpcledger connects the client to a ledger node over gRPC.
package grpcledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/auth"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Conn is a ledger connection over a gRPC client connection.
type Conn struct {
	cc     *grpc.ClientConn
	client *wire.LedgerClient
}

// Dialer returns a DialFunc connecting to address. Without options the
// connection is plaintext.
func Dialer(address string, opts ...grpc.DialOption) ledger.DialFunc {
	return func(ctx context.Context) (ledger.Ledger, error) {
		return Dial(ctx, address, opts...)
	}
}

// Dial connects to the node at address and pings it once.
func Dial(ctx context.Context, address string, opts ...grpc.DialOption) (*Conn, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	cc, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrNotConnected, err)
	}

	c := &Conn{cc: cc, client: wire.NewLedgerClient(cc)}
	if err := c.Ping(ctx); err != nil {
		_ = cc.Close()
		return nil, err
	}
	return c, nil
}

// mapError converts gRPC status codes to sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, st.Message())
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", common.ErrNotConnected, st.Message())
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", common.ErrUnauthorized, st.Message())
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return err
}

func (c *Conn) Bucket(ctx context.Context, namespaceID, bucketID uint64) (*ledger.Bucket, error) {
	resp, err := c.client.Bucket(ctx, &wire.BucketRequest{NamespaceID: namespaceID, BucketID: bucketID})
	if err != nil {
		return nil, mapError(err)
	}
	return &resp.Bucket, nil
}

func (c *Conn) Messages(ctx context.Context, bucketID uint64) ([]ledger.MessageEntry, error) {
	resp, err := c.client.Messages(ctx, &wire.MessagesRequest{BucketID: bucketID})
	if err != nil {
		return nil, mapError(err)
	}
	return resp.Entries, nil
}

func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.client.Ping(ctx, &wire.PingRequest{})
	if err != nil {
		err = mapError(err)
		if !errors.Is(err, common.ErrNotConnected) {
			err = fmt.Errorf("%w: %v", common.ErrNotConnected, err)
		}
		return err
	}
	return nil
}

// Submit authorizes call with signer and opens its status stream. The
// stream outlives ctx only until Unsubscribe.
func (c *Conn) Submit(ctx context.Context, signer ledger.Signer, call ledger.Call) (ledger.Subscription, error) {
	token, err := auth.SignCall(signer, call, auth.DefaultValidity)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sctx = metadata.AppendToOutgoingContext(sctx, wire.AuthorizationKey, token)

	stream, err := c.client.Submit(sctx, &wire.SubmitRequest{Call: call})
	if err != nil {
		cancel()
		return nil, mapError(err)
	}

	sub := &subscription{
		updates: make(chan ledger.TxUpdate, 3),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go sub.receive(stream)
	return sub, nil
}

func (c *Conn) Close() error {
	return c.cc.Close()
}

type subscription struct {
	updates chan ledger.TxUpdate
	done    chan struct{}
	once    sync.Once
	cancel  context.CancelFunc
}

func (s *subscription) Updates() <-chan ledger.TxUpdate {
	return s.updates
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
	})
}

// receive forwards stream updates and closes updates when the stream ends.
func (s *subscription) receive(stream wire.SubmitClient) {
	defer close(s.updates)
	defer s.cancel()
	for {
		u, err := stream.Recv()
		if err != nil {
			return
		}
		select {
		case s.updates <- *u:
		case <-s.done:
			return
		}
	}
}
