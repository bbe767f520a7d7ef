// Package node is a single-authority ledger node. It batches submitted calls
// into blocks, applies them through the pallet rules against a Store, and
// serves queries and per-call status streams over gRPC.
package node

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/pallet"
)

// Store persists ledger state.
type Store interface {
	// InBlock runs fn against the state in one isolated unit and returns the
	// number of the new block. If fn fails nothing is persisted.
	InBlock(ctx context.Context, fn func(ctx context.Context, st pallet.State) error) (uint64, error)

	Bucket(ctx context.Context, id uint64) (*ledger.Bucket, error)
	Messages(ctx context.Context, bucketID uint64) ([]ledger.MessageEntry, error)
	Height(ctx context.Context) (uint64, error)
}

// MemStore keeps the state in memory. Blocks whose fn fails are not rolled
// back, so it is meant for tests and throwaway nodes.
type MemStore struct {
	mu     sync.Mutex
	state  *pallet.MemState
	height uint64
}

func NewMemStore() *MemStore {
	return &MemStore{state: pallet.NewMemState()}
}

func (s *MemStore) InBlock(ctx context.Context, fn func(ctx context.Context, st pallet.State) error) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(ctx, s.state); err != nil {
		return 0, err
	}
	s.height++
	return s.height, nil
}

func (s *MemStore) Bucket(ctx context.Context, id uint64) (*ledger.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Bucket(ctx, id)
}

func (s *MemStore) Messages(ctx context.Context, bucketID uint64) ([]ledger.MessageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Messages(ctx, bucketID)
}

func (s *MemStore) Height(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height, nil
}
