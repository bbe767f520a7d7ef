// Package pallet applies ledger calls to ledger state. It owns the
// permission model and the bucket key status machine; storage of the state
// is left to a State implementation.
package pallet

import (
	"context"

	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
)

// State is the storage behind the pallet. Lookups of absent records return
// common.ErrNotFound. A State is used from one goroutine at a time; the
// caller provides isolation (a mutex or a database transaction).
type State interface {
	Namespace(ctx context.Context, id uint64) (*ledger.Namespace, error)
	PutNamespace(ctx context.Context, ns *ledger.Namespace) error
	DeleteNamespace(ctx context.Context, id uint64) error

	Bucket(ctx context.Context, id uint64) (*ledger.Bucket, error)
	PutBucket(ctx context.Context, b *ledger.Bucket) error
	// DeleteBucket also drops the messages of the bucket.
	DeleteBucket(ctx context.Context, id uint64) error
	NextBucketID(ctx context.Context) (uint64, error)

	Message(ctx context.Context, bucketID, messageID uint64) (*ledger.MessageEntry, error)
	PutMessage(ctx context.Context, m *ledger.MessageEntry) error
	DeleteMessage(ctx context.Context, bucketID, messageID uint64) error
	NextMessageID(ctx context.Context, bucketID uint64) (uint64, error)
}
