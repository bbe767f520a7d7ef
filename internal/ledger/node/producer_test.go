package node

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/pallet"
	"github.com/dmitrijs2005/bucketkeeper/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newProducer(t *testing.T, store Store) (*Producer, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	return NewProducer(store, pallet.New(""), time.Hour, m, logging.NewNopLogger()), m
}

func account(t *testing.T) string {
	t.Helper()
	s, err := ledger.GenerateKeyringSigner(rand.Reader)
	require.NoError(t, err)
	return s.Address()
}

func TestProducer_BlockWithMixedOutcomes(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	p, m := newProducer(t, store)
	alice := account(t)

	ok := newSubmission(alice, "0x1", ledger.CreateNamespace(1, nil))
	dup := newSubmission(alice, "0x2", ledger.CreateNamespace(1, nil))
	bucket := newSubmission(alice, "0x3", ledger.CreateBucket(1, nil))
	for _, s := range []*submission{ok, dup, bucket} {
		require.NoError(t, p.enqueue(ctx, s))
	}

	p.produce(ctx, p.drain())

	u := <-ok.updates
	assert.Equal(t, ledger.StatusInBlock, u.Status)
	assert.Equal(t, uint64(1), u.BlockNumber)
	assert.True(t, u.Events[0].Is(ledger.EventNamespaceCreated))
	assert.Equal(t, ledger.StatusFinalized, (<-ok.updates).Status)

	u = <-dup.updates
	require.NotNil(t, u.DispatchError)
	assert.Equal(t, "NamespaceAlreadyExists", u.DispatchError.Name)
	assert.Equal(t, ledger.EventExtrinsicFailed, u.Events[0].Name)

	u = <-bucket.updates
	assert.Nil(t, u.DispatchError)
	assert.Equal(t, uint64(1), u.Events[0].BucketID)

	h, err := store.Height(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Height))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Calls.WithLabelValues("create_namespace", outcomeRejected)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DispatchErrors.WithLabelValues("NamespaceAlreadyExists")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Events.WithLabelValues(string(ledger.EventBucketCreated))))
}

type failingStore struct {
	Store
}

func (failingStore) InBlock(context.Context, func(context.Context, pallet.State) error) (uint64, error) {
	return 0, errors.New("disk full")
}

func TestProducer_StoreFailureDropsBlock(t *testing.T) {
	ctx := context.Background()
	p, m := newProducer(t, failingStore{Store: NewMemStore()})

	s := newSubmission(account(t), "0x1", ledger.CreateNamespace(1, nil))
	p.produce(ctx, []*submission{s})

	u := <-s.updates
	assert.Equal(t, ledger.StatusDropped, u.Status)
	assert.Equal(t, "0x1", u.TxHash)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Calls.WithLabelValues("create_namespace", outcomeDropped)))
}

func TestProducer_RunProducesOnTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMetrics(prometheus.NewRegistry())
	p := NewProducer(NewMemStore(), pallet.New(""), 5*time.Millisecond, m, logging.NewNopLogger())
	go p.Run(ctx)

	s := newSubmission(account(t), "0x1", ledger.CreateNamespace(9, nil))
	require.NoError(t, p.enqueue(ctx, s))

	select {
	case u := <-s.updates:
		assert.Equal(t, ledger.StatusInBlock, u.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no block produced")
	}
}

func TestEnqueue_ContextDone(t *testing.T) {
	p, _ := newProducer(t, NewMemStore())
	p.queue = make(chan *submission)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.enqueue(ctx, newSubmission("a", "0x1", ledger.CreateNamespace(1, nil)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{common.ErrNotFound, codes.NotFound},
		{common.ErrUnauthorized, codes.Unauthenticated},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(toStatus(tt.err)), tt.err.Error())
	}
}
