// Package ledger defines the contract between the client and the bucket
// ledger: read queries, call submission and the per-call stream of status
// updates, plus the data model those operations exchange.
package ledger

import (
	"context"
)

// Status is the lifecycle stage of a submitted call.
type Status int

const (
	StatusReady Status = iota
	StatusInBlock
	StatusFinalized
	StatusDropped
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusInBlock:
		return "in_block"
	case StatusFinalized:
		return "finalized"
	case StatusDropped:
		return "dropped"
	}
	return "unknown"
}

// TxUpdate is one status report for a submitted call. Events are set once
// the call is in a block. DispatchError is set when the call was included
// but rejected by the ledger rules.
type TxUpdate struct {
	Status        Status
	TxHash        string
	BlockNumber   uint64
	Events        []Event
	DispatchError *DispatchError
}

// Subscription delivers the updates of one submitted call. Unsubscribe is
// idempotent and must be called on every exit path.
type Subscription interface {
	Updates() <-chan TxUpdate
	Unsubscribe()
}

// Ledger is an open connection to the bucket ledger.
type Ledger interface {
	// Bucket returns the bucket state, or common.ErrNotFound.
	Bucket(ctx context.Context, namespaceID, bucketID uint64) (*Bucket, error)

	// Messages returns all message entries of a bucket in ascending id order.
	Messages(ctx context.Context, bucketID uint64) ([]MessageEntry, error)

	// Submit signs call with signer and starts watching it.
	Submit(ctx context.Context, signer Signer, call Call) (Subscription, error)

	// Ping checks that the connection is usable.
	Ping(ctx context.Context) error

	Close() error
}

// DialFunc opens a ledger connection.
type DialFunc func(ctx context.Context) (Ledger, error)
