package txwatch

import (
	"context"
	"crypto/rand"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	ch           chan ledger.TxUpdate
	unsubscribed atomic.Int32
}

func (s *fakeSub) Updates() <-chan ledger.TxUpdate { return s.ch }
func (s *fakeSub) Unsubscribe()                    { s.unsubscribed.Add(1) }

// fakeLedger replays scripted updates for every submission.
type fakeLedger struct {
	ledger.Ledger
	script    []ledger.TxUpdate
	close     bool
	submitErr error
	sub       *fakeSub
}

func (l *fakeLedger) Submit(_ context.Context, _ ledger.Signer, _ ledger.Call) (ledger.Subscription, error) {
	if l.submitErr != nil {
		return nil, l.submitErr
	}
	l.sub = &fakeSub{ch: make(chan ledger.TxUpdate, len(l.script)+1)}
	for _, u := range l.script {
		l.sub.ch <- u
	}
	if l.close {
		close(l.sub.ch)
	}
	return l.sub, nil
}

func signer(t *testing.T) ledger.Signer {
	t.Helper()
	s, err := ledger.GenerateKeyringSigner(rand.Reader)
	require.NoError(t, err)
	return s
}

func writableEvent(bucketID, keyID uint64) ledger.Event {
	return ledger.Event{Module: ledger.Module, Name: ledger.EventBucketWritableWithKey, NamespaceID: 1, BucketID: bucketID, KeyID: keyID}
}

func matchBucket(bucketID, keyID uint64) Validator[uint64] {
	return func(e ledger.Event) (uint64, bool) {
		if e.BucketID == bucketID && e.KeyID == keyID {
			return e.KeyID, true
		}
		return 0, false
	}
}

func run(t *testing.T, l *fakeLedger, cfg Config) (Result[uint64], error) {
	t.Helper()
	return SubmitAndWatch(context.Background(), l, signer(t), ledger.ResumeWriting(1, 2, 3),
		EventIs(ledger.EventBucketWritableWithKey), matchBucket(2, 3), cfg)
}

func TestResolvesOnValidatedEvent(t *testing.T) {
	l := &fakeLedger{script: []ledger.TxUpdate{
		{Status: ledger.StatusReady, TxHash: "0xabc"},
		{Status: ledger.StatusInBlock, TxHash: "0xabc", BlockNumber: 9, Events: []ledger.Event{
			{Module: ledger.Module, Name: ledger.EventNewMessage, BucketID: 2},
			writableEvent(2, 3),
		}},
		{Status: ledger.StatusFinalized, TxHash: "0xabc", BlockNumber: 9},
	}}

	res, err := run(t, l, Config{})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", res.TxHash)
	assert.Equal(t, uint64(9), res.BlockNumber)
	assert.Equal(t, uint64(3), res.Data)
	assert.Equal(t, int32(1), l.sub.unsubscribed.Load())
}

func TestResolvesOnFinalizedEvent(t *testing.T) {
	l := &fakeLedger{script: []ledger.TxUpdate{
		{Status: ledger.StatusInBlock, TxHash: "0x1"},
		{Status: ledger.StatusFinalized, TxHash: "0x1", Events: []ledger.Event{writableEvent(2, 3)}},
	}}

	res, err := run(t, l, Config{})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Data)
}

func TestIgnoresEventForOtherBucket(t *testing.T) {
	other := writableEvent(99, 3)
	l := &fakeLedger{script: []ledger.TxUpdate{
		{Status: ledger.StatusReady},
		{Status: ledger.StatusInBlock, Events: []ledger.Event{other}},
		{Status: ledger.StatusFinalized, BlockNumber: 4, Events: []ledger.Event{other}},
	}}

	_, err := run(t, l, Config{})
	assert.ErrorIs(t, err, common.ErrExpectedEventMissing)
	assert.Equal(t, int32(1), l.sub.unsubscribed.Load())
}

func TestDispatchErrorFailsImmediately(t *testing.T) {
	l := &fakeLedger{script: []ledger.TxUpdate{
		{Status: ledger.StatusInBlock, DispatchError: &ledger.DispatchError{Module: ledger.Module, Name: "NoPermission", Docs: "caller lacks the required role"}},
	}}

	_, err := run(t, l, Config{})
	require.ErrorIs(t, err, common.ErrCallFailed)

	var ce *common.CallError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Buckets", ce.Module)
	assert.Equal(t, "NoPermission", ce.Name)
	assert.Equal(t, int32(1), l.sub.unsubscribed.Load())
}

func TestDeadline(t *testing.T) {
	l := &fakeLedger{script: []ledger.TxUpdate{{Status: ledger.StatusReady}}}

	start := time.Now()
	_, err := run(t, l, Config{Timeout: 30 * time.Millisecond})
	assert.ErrorIs(t, err, common.ErrExpectedEventMissing)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), l.sub.unsubscribed.Load())
}

func TestDroppedAndClosedStreams(t *testing.T) {
	dropped := &fakeLedger{script: []ledger.TxUpdate{{Status: ledger.StatusDropped}}}
	_, err := run(t, dropped, Config{})
	assert.ErrorIs(t, err, common.ErrExpectedEventMissing)

	closed := &fakeLedger{close: true}
	_, err = run(t, closed, Config{})
	assert.ErrorIs(t, err, common.ErrExpectedEventMissing)
}

func TestSubmitError(t *testing.T) {
	l := &fakeLedger{submitErr: common.ErrNotConnected}
	_, err := run(t, l, Config{})
	assert.ErrorIs(t, err, common.ErrNotConnected)
}

func TestFuture_CancelledContext(t *testing.T) {
	l := &fakeLedger{script: []ledger.TxUpdate{{Status: ledger.StatusReady}}}
	ctx, cancel := context.WithCancel(context.Background())

	f, err := Submit(ctx, l, signer(t), ledger.PauseWriting(1, 2),
		EventIs(ledger.EventPausedBucket), func(ledger.Event) (struct{}, bool) { return struct{}{}, true }, Config{})
	require.NoError(t, err)

	cancel()
	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("future did not resolve after cancel")
	}
	_, err = f.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), l.sub.unsubscribed.Load())
}
