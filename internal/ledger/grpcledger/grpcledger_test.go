package grpcledger

import (
	"context"
	"crypto/rand"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/node"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/pallet"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/wire"
	"github.com/dmitrijs2005/bucketkeeper/internal/logging"
	"github.com/dmitrijs2005/bucketkeeper/internal/txwatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

type testNode struct {
	lis  *bufconn.Listener
	root *ledger.KeyringSigner
}

func startNode(t *testing.T) *testNode {
	t.Helper()
	root, err := ledger.GenerateKeyringSigner(rand.Reader)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	store := node.NewMemStore()
	metrics := node.NewMetrics(prometheus.NewRegistry())
	producer := node.NewProducer(store, pallet.New(root.Address()), 5*time.Millisecond, metrics, logging.NewNopLogger())
	go producer.Run(ctx)

	lis := bufconn.Listen(bufSize)
	srv := node.NewServer("bufnet", store, producer, metrics, logging.NewNopLogger()).NewGRPCServer()
	go func() { _ = srv.Serve(lis) }()

	t.Cleanup(func() {
		cancel()
		srv.Stop()
	})
	return &testNode{lis: lis, root: root}
}

func (n *testNode) dialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return n.lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
}

func (n *testNode) dial(t *testing.T) *Conn {
	t.Helper()
	c, err := Dial(context.Background(), "passthrough:///bufnet", n.dialOptions()...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newSigner(t *testing.T) *ledger.KeyringSigner {
	t.Helper()
	s, err := ledger.GenerateKeyringSigner(rand.Reader)
	require.NoError(t, err)
	return s
}

func collect(t *testing.T, sub ledger.Subscription) []ledger.TxUpdate {
	t.Helper()
	defer sub.Unsubscribe()

	var out []ledger.TxUpdate
	timeout := time.After(3 * time.Second)
	for {
		select {
		case u, ok := <-sub.Updates():
			if !ok {
				return out
			}
			out = append(out, u)
			if u.Status == ledger.StatusFinalized || u.Status == ledger.StatusDropped {
				return out
			}
		case <-timeout:
			t.Fatal("timed out waiting for updates")
		}
	}
}

func TestSubmit_Lifecycle(t *testing.T) {
	n := startNode(t)
	c := n.dial(t)
	manager := newSigner(t)

	sub, err := c.Submit(context.Background(), manager, ledger.CreateNamespace(1, nil))
	require.NoError(t, err)
	updates := collect(t, sub)

	require.Len(t, updates, 3)
	assert.Equal(t, ledger.StatusReady, updates[0].Status)
	assert.Equal(t, ledger.StatusInBlock, updates[1].Status)
	assert.Equal(t, ledger.StatusFinalized, updates[2].Status)
	assert.Equal(t, updates[0].TxHash, updates[2].TxHash)
	assert.NotZero(t, updates[1].BlockNumber)
	require.Len(t, updates[1].Events, 1)
	assert.True(t, updates[1].Events[0].Is(ledger.EventNamespaceCreated))
	assert.Equal(t, manager.Address(), updates[1].Events[0].Account)
}

func TestSubmit_DispatchErrorTravels(t *testing.T) {
	n := startNode(t)
	c := n.dial(t)

	sub, err := c.Submit(context.Background(), newSigner(t), ledger.RemoveNamespace(1))
	require.NoError(t, err)
	updates := collect(t, sub)

	require.Len(t, updates, 3)
	require.NotNil(t, updates[1].DispatchError)
	assert.Equal(t, "BadOrigin", updates[1].DispatchError.Name)
}

func TestSubmit_WithTxWatch(t *testing.T) {
	n := startNode(t)
	c := n.dial(t)
	ctx := context.Background()
	m := newSigner(t)

	_, err := txwatch.SubmitAndWatch(ctx, c, m, ledger.CreateNamespace(4, nil),
		txwatch.EventIs(ledger.EventNamespaceCreated),
		func(e ledger.Event) (uint64, bool) { return e.NamespaceID, e.NamespaceID == 4 },
		txwatch.Config{Timeout: 3 * time.Second})
	require.NoError(t, err)

	res, err := txwatch.SubmitAndWatch(ctx, c, m, ledger.CreateBucket(4, nil),
		txwatch.EventIs(ledger.EventBucketCreated),
		func(e ledger.Event) (uint64, bool) { return e.BucketID, e.NamespaceID == 4 },
		txwatch.Config{Timeout: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Data)

	_, err = txwatch.SubmitAndWatch(ctx, c, m, ledger.CreateNamespace(4, nil),
		txwatch.EventIs(ledger.EventNamespaceCreated),
		func(e ledger.Event) (uint64, bool) { return e.NamespaceID, true },
		txwatch.Config{Timeout: 3 * time.Second})
	var ce *common.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "NamespaceAlreadyExists", ce.Name)
}

func TestQueries(t *testing.T) {
	n := startNode(t)
	c := n.dial(t)
	ctx := context.Background()
	m := newSigner(t)

	for _, call := range []ledger.Call{
		ledger.CreateNamespace(1, nil),
		ledger.CreateBucket(1, nil),
		ledger.AddAdmin(1, 1, m.Address()),
		ledger.ResumeWriting(1, 1, 3),
		ledger.Write(1, 1, []byte("ref-1"), ledger.KeySharingTag, nil),
		ledger.Write(1, 1, []byte("ref-2"), "", nil),
	} {
		sub, err := c.Submit(ctx, m, call)
		require.NoError(t, err)
		updates := collect(t, sub)
		require.Nil(t, updates[len(updates)-1].DispatchError, call.Method)
	}

	b, err := c.Bucket(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, ledger.WritableWithKey(3), b.Status)
	assert.Equal(t, []string{m.Address()}, b.Admins)

	_, err = c.Bucket(ctx, 2, 1)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = c.Bucket(ctx, 1, 99)
	assert.ErrorIs(t, err, common.ErrNotFound)

	msgs, err := c.Messages(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("ref-1"), msgs[0].Reference)
	assert.True(t, msgs[0].IsKeySharing())
	assert.Equal(t, m.Address(), msgs[1].Contributor)
	assert.Less(t, msgs[0].MessageID, msgs[1].MessageID)
}

func TestSubmit_MissingAuthorization(t *testing.T) {
	n := startNode(t)
	c := n.dial(t)

	stream, err := c.client.Submit(context.Background(), &wire.SubmitRequest{Call: ledger.CreateNamespace(1, nil)})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.ErrorIs(t, mapError(err), common.ErrUnauthorized)
}

func TestDial_Unreachable(t *testing.T) {
	n := startNode(t)
	require.NoError(t, n.lis.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := Dial(ctx, "passthrough:///bufnet", n.dialOptions()...)
	assert.ErrorIs(t, err, common.ErrNotConnected)
}

func TestDialer(t *testing.T) {
	n := startNode(t)
	l, err := Dialer("passthrough:///bufnet", n.dialOptions()...)(context.Background())
	require.NoError(t, err)
	defer l.Close()
	assert.NoError(t, l.Ping(context.Background()))
}
