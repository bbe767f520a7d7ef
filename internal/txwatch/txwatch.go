// Package txwatch submits ledger calls and waits for the event that proves
// the call had its intended effect.
//
// A submission resolves exactly once: with the first event that satisfies
// both the finder and the validator (seen in an InBlock or Finalized
// update), with a CallError when the ledger rejects the call, or with
// common.ErrExpectedEventMissing when the call finalizes, is dropped or
// times out without such an event. The status subscription is released on
// every path.
package txwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/logging"
)

// DefaultTimeout is used when Config.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// Finder selects candidate events, typically by event name.
type Finder func(ledger.Event) bool

// Validator extracts typed data from a candidate event. It returns false
// when the event belongs to some other call (another bucket, another key).
type Validator[T any] func(ledger.Event) (T, bool)

// EventIs is a Finder matching a bucket event name.
func EventIs(name ledger.EventName) Finder {
	return func(e ledger.Event) bool { return e.Is(name) }
}

// Result is a resolved submission.
type Result[T any] struct {
	TxHash      string
	BlockNumber uint64
	Data        T
}

// Config tunes a submission.
type Config struct {
	Timeout time.Duration
	Logger  logging.Logger
}

// Future is the pending outcome of a submission.
type Future[T any] struct {
	done chan struct{}
	res  Result[T]
	err  error
}

// Done is closed once the future has resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (Result[T], error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return Result[T]{}, ctx.Err()
	}
}

// Submit sends call and returns a future that resolves as described in the
// package documentation. Cancelling ctx abandons the watch.
func Submit[T any](ctx context.Context, l ledger.Ledger, signer ledger.Signer, call ledger.Call,
	find Finder, validate Validator[T], cfg Config) (*Future[T], error) {

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	sub, err := l.Submit(ctx, signer, call)
	if err != nil {
		return nil, err
	}

	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer sub.Unsubscribe()
		f.res, f.err = watch(ctx, sub, call, find, validate, cfg)
	}()
	return f, nil
}

// SubmitAndWatch is Submit followed by Wait.
func SubmitAndWatch[T any](ctx context.Context, l ledger.Ledger, signer ledger.Signer, call ledger.Call,
	find Finder, validate Validator[T], cfg Config) (Result[T], error) {

	f, err := Submit(ctx, l, signer, call, find, validate, cfg)
	if err != nil {
		return Result[T]{}, err
	}
	return f.Wait(ctx)
}

func watch[T any](ctx context.Context, sub ledger.Subscription, call ledger.Call,
	find Finder, validate Validator[T], cfg Config) (Result[T], error) {

	log := cfg.Logger.With("method", string(call.Method))
	deadline := time.NewTimer(cfg.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result[T]{}, ctx.Err()

		case <-deadline.C:
			return Result[T]{}, fmt.Errorf("%w: %s not confirmed within %s", common.ErrExpectedEventMissing, call.Method, cfg.Timeout)

		case u, ok := <-sub.Updates():
			if !ok {
				return Result[T]{}, fmt.Errorf("%w: %s status stream closed", common.ErrExpectedEventMissing, call.Method)
			}
			log.Debug(ctx, "transaction status", "status", u.Status.String(), "tx_hash", u.TxHash)

			if u.DispatchError != nil {
				log.Warn(ctx, "transaction failed", "tx_hash", u.TxHash, "error", u.DispatchError.Error())
				return Result[T]{}, u.DispatchError.CallError()
			}

			switch u.Status {
			case ledger.StatusInBlock, ledger.StatusFinalized:
				for _, e := range u.Events {
					if !find(e) {
						continue
					}
					if data, ok := validate(e); ok {
						log.Info(ctx, "transaction confirmed", "tx_hash", u.TxHash, "event", string(e.Name))
						return Result[T]{TxHash: u.TxHash, BlockNumber: u.BlockNumber, Data: data}, nil
					}
				}
				if u.Status == ledger.StatusFinalized {
					return Result[T]{}, fmt.Errorf("%w: %s finalized in block %d without the expected event",
						common.ErrExpectedEventMissing, call.Method, u.BlockNumber)
				}

			case ledger.StatusDropped:
				return Result[T]{}, fmt.Errorf("%w: %s dropped", common.ErrExpectedEventMissing, call.Method)
			}
		}
	}
}
