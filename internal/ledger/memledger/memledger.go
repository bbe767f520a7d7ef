// Package memledger is an in-process ledger: the pallet rules over a
// MemState, one block per submitted call, and a status stream per call
// that mirrors what a networked node reports. It backs tests and local
// runs of the client.
package memledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/auth"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/pallet"
)

// Chain is the shared ledger state. Connections opened with Connect share it.
type Chain struct {
	mu        sync.Mutex
	pallet    *pallet.Pallet
	state     *pallet.MemState
	block     uint64
	online    atomic.Bool
	blockTime time.Duration
}

// Option configures a Chain.
type Option func(*Chain)

// WithBlockTime delays inclusion and finalization of each call.
func WithBlockTime(d time.Duration) Option {
	return func(c *Chain) { c.blockTime = d }
}

// New creates a chain whose governance account is root.
func New(root string, opts ...Option) *Chain {
	c := &Chain{pallet: pallet.New(root), state: pallet.NewMemState()}
	c.online.Store(true)
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetOnline simulates the node becoming unreachable or reachable again.
func (c *Chain) SetOnline(online bool) {
	c.online.Store(online)
}

// Dialer returns a DialFunc that opens connections to c.
func (c *Chain) Dialer() ledger.DialFunc {
	return func(ctx context.Context) (ledger.Ledger, error) {
		return c.Connect(ctx)
	}
}

// Connect opens a connection handle.
func (c *Chain) Connect(_ context.Context) (*Conn, error) {
	if !c.online.Load() {
		return nil, fmt.Errorf("%w: node offline", common.ErrNotConnected)
	}
	return &Conn{chain: c}, nil
}

// apply runs call in a new block and returns the block number.
func (c *Chain) apply(ctx context.Context, caller string, call ledger.Call) (uint64, []ledger.Event, *ledger.DispatchError, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.block++
	events, err := c.pallet.Apply(ctx, c.state, caller, call)

	var de *ledger.DispatchError
	if errors.As(err, &de) {
		failed := ledger.Event{Module: "System", Name: ledger.EventExtrinsicFailed, Account: caller}
		return c.block, []ledger.Event{failed}, de, nil
	}
	if err != nil {
		return c.block, nil, nil, err
	}
	return c.block, events, nil, nil
}

// Conn is a connection to a Chain.
type Conn struct {
	chain  *Chain
	closed atomic.Bool
}

func (l *Conn) check() error {
	if l.closed.Load() {
		return fmt.Errorf("%w: connection closed", common.ErrNotConnected)
	}
	if !l.chain.online.Load() {
		return fmt.Errorf("%w: node offline", common.ErrNotConnected)
	}
	return nil
}

func (l *Conn) Bucket(ctx context.Context, namespaceID, bucketID uint64) (*ledger.Bucket, error) {
	if err := l.check(); err != nil {
		return nil, err
	}

	l.chain.mu.Lock()
	defer l.chain.mu.Unlock()

	b, err := l.chain.state.Bucket(ctx, bucketID)
	if err != nil {
		return nil, err
	}
	if b.NamespaceID != namespaceID {
		return nil, common.ErrNotFound
	}
	return b, nil
}

func (l *Conn) Messages(ctx context.Context, bucketID uint64) ([]ledger.MessageEntry, error) {
	if err := l.check(); err != nil {
		return nil, err
	}

	l.chain.mu.Lock()
	defer l.chain.mu.Unlock()

	return l.chain.state.Messages(ctx, bucketID)
}

func (l *Conn) Submit(ctx context.Context, signer ledger.Signer, call ledger.Call) (ledger.Subscription, error) {
	if err := l.check(); err != nil {
		return nil, err
	}

	token, err := auth.SignCall(signer, call, auth.DefaultValidity)
	if err != nil {
		return nil, err
	}
	caller, txHash, err := auth.VerifyCall(token, call)
	if err != nil {
		return nil, err
	}

	sub := newSubscription()
	go l.chain.run(sub, caller, txHash, call)
	return sub, nil
}

// run reports the lifecycle of one call. The call is applied even when the
// subscriber has already gone away.
func (c *Chain) run(sub *subscription, caller, txHash string, call ledger.Call) {
	sub.send(ledger.TxUpdate{Status: ledger.StatusReady, TxHash: txHash})
	time.Sleep(c.blockTime)

	block, events, de, err := c.apply(context.Background(), caller, call)
	if err != nil {
		sub.send(ledger.TxUpdate{Status: ledger.StatusDropped, TxHash: txHash})
		return
	}

	inBlock := ledger.TxUpdate{Status: ledger.StatusInBlock, TxHash: txHash, BlockNumber: block, Events: events, DispatchError: de}
	sub.send(inBlock)
	time.Sleep(c.blockTime)

	finalized := inBlock
	finalized.Status = ledger.StatusFinalized
	sub.send(finalized)
}

func (l *Conn) Ping(_ context.Context) error {
	return l.check()
}

func (l *Conn) Close() error {
	l.closed.Store(true)
	return nil
}
