package memledger

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u := <-sub.Updates():
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
	ctx := context.Background()
	chain := New("root")
	conn, err := chain.Connect(ctx)
	require.NoError(t, err)
	manager := newSigner(t)

	sub, err := conn.Submit(ctx, manager, ledger.CreateNamespace(1, nil))
	require.NoError(t, err)
	updates := collect(t, sub)

	require.Len(t, updates, 3)
	assert.Equal(t, ledger.StatusReady, updates[0].Status)
	assert.Equal(t, ledger.StatusInBlock, updates[1].Status)
	assert.Equal(t, ledger.StatusFinalized, updates[2].Status)
	assert.NotEmpty(t, updates[0].TxHash)
	assert.Equal(t, updates[0].TxHash, updates[2].TxHash)
	require.Len(t, updates[1].Events, 1)
	assert.True(t, updates[1].Events[0].Is(ledger.EventNamespaceCreated))
	assert.Equal(t, manager.Address(), updates[1].Events[0].Account)
	assert.Nil(t, updates[1].DispatchError)
}

func TestSubmit_DispatchError(t *testing.T) {
	ctx := context.Background()
	chain := New("root")
	conn, err := chain.Connect(ctx)
	require.NoError(t, err)

	sub, err := conn.Submit(ctx, newSigner(t), ledger.CreateBucket(42, nil))
	require.NoError(t, err)
	updates := collect(t, sub)

	require.NotNil(t, updates[1].DispatchError)
	assert.Equal(t, "NamespaceNotFound", updates[1].DispatchError.Name)
	assert.Equal(t, ledger.EventExtrinsicFailed, updates[1].Events[0].Name)
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	chain := New("root")
	conn, err := chain.Connect(ctx)
	require.NoError(t, err)
	m := newSigner(t)

	for _, call := range []ledger.Call{
		ledger.CreateNamespace(1, nil),
		ledger.CreateBucket(1, nil),
		ledger.AddAdmin(1, 1, m.Address()),
		ledger.ResumeWriting(1, 1, 5),
		ledger.Write(1, 1, []byte("ref"), "", nil),
	} {
		sub, err := conn.Submit(ctx, m, call)
		require.NoError(t, err)
		updates := collect(t, sub)
		require.Nil(t, updates[len(updates)-1].DispatchError, call.Method)
	}

	b, err := conn.Bucket(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, ledger.WritableWithKey(5), b.Status)

	_, err = conn.Bucket(ctx, 2, 1)
	assert.ErrorIs(t, err, common.ErrNotFound)

	msgs, err := conn.Messages(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("ref"), msgs[0].Reference)
}

func TestOfflineAndClose(t *testing.T) {
	ctx := context.Background()
	chain := New("root")
	conn, err := chain.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Ping(ctx))

	chain.SetOnline(false)
	assert.ErrorIs(t, conn.Ping(ctx), common.ErrNotConnected)
	_, err = chain.Connect(ctx)
	assert.ErrorIs(t, err, common.ErrNotConnected)

	chain.SetOnline(true)
	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Ping(ctx), common.ErrNotConnected)
	_, err = conn.Messages(ctx, 1)
	assert.ErrorIs(t, err, common.ErrNotConnected)

	dial := chain.Dialer()
	l, err := dial(ctx)
	require.NoError(t, err)
	assert.NoError(t, l.Ping(ctx))
}

func TestUnsubscribeBeforeInclusion(t *testing.T) {
	ctx := context.Background()
	chain := New("root", WithBlockTime(20*time.Millisecond))
	conn, err := chain.Connect(ctx)
	require.NoError(t, err)

	sub, err := conn.Submit(ctx, newSigner(t), ledger.CreateNamespace(3, nil))
	require.NoError(t, err)
	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.True(t, sub.(*subscription).Unsubscribed())

	require.Eventually(t, func() bool {
		chain.mu.Lock()
		defer chain.mu.Unlock()
		_, err := chain.state.Namespace(ctx, 3)
		return err == nil
	}, time.Second, 10*time.Millisecond, "the call is still applied")
}
