package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/pallet"
	"github.com/dmitrijs2005/bucketkeeper/internal/logging"
)

const (
	DefaultBlockInterval = time.Second
	queueSize            = 1024
)

// submission is a verified call waiting for a block.
type submission struct {
	caller  string
	txHash  string
	call    ledger.Call
	updates chan ledger.TxUpdate
}

func newSubmission(caller, txHash string, call ledger.Call) *submission {
	// InBlock and Finalized never block the producer.
	return &submission{caller: caller, txHash: txHash, call: call, updates: make(chan ledger.TxUpdate, 2)}
}

// Producer turns queued submissions into blocks, one block per interval.
type Producer struct {
	store    Store
	pallet   *pallet.Pallet
	interval time.Duration
	queue    chan *submission
	metrics  *Metrics
	logger   logging.Logger
}

func NewProducer(store Store, p *pallet.Pallet, interval time.Duration, m *Metrics, l logging.Logger) *Producer {
	if interval <= 0 {
		interval = DefaultBlockInterval
	}
	return &Producer{
		store:    store,
		pallet:   p,
		interval: interval,
		queue:    make(chan *submission, queueSize),
		metrics:  m,
		logger:   l.With("module", "producer"),
	}
}

func (p *Producer) enqueue(ctx context.Context, s *submission) error {
	select {
	case p.queue <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run produces blocks until ctx is done.
func (p *Producer) Run(ctx context.Context) {
	if h, err := p.store.Height(ctx); err == nil {
		p.metrics.Height.Set(float64(h))
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if batch := p.drain(); len(batch) > 0 {
				p.produce(ctx, batch)
			}
		}
	}
}

func (p *Producer) drain() []*submission {
	var batch []*submission
	for {
		select {
		case s := <-p.queue:
			batch = append(batch, s)
		default:
			return batch
		}
	}
}

type outcome struct {
	events []ledger.Event
	de     *ledger.DispatchError
}

func (p *Producer) produce(ctx context.Context, batch []*submission) {
	results := make([]outcome, len(batch))
	height, err := p.store.InBlock(ctx, func(ctx context.Context, st pallet.State) error {
		for i, s := range batch {
			events, err := p.pallet.Apply(ctx, st, s.caller, s.call)
			var de *ledger.DispatchError
			if errors.As(err, &de) {
				failed := ledger.Event{Module: "System", Name: ledger.EventExtrinsicFailed, Account: s.caller}
				results[i] = outcome{events: []ledger.Event{failed}, de: de}
				continue
			}
			if err != nil {
				return fmt.Errorf("apply %s: %w", s.call.Method, err)
			}
			results[i] = outcome{events: events}
		}
		return nil
	})
	if err != nil {
		p.logger.Error(ctx, "block failed", "calls", len(batch), "error", err.Error())
		for _, s := range batch {
			p.metrics.Calls.WithLabelValues(string(s.call.Method), outcomeDropped).Inc()
			s.updates <- ledger.TxUpdate{Status: ledger.StatusDropped, TxHash: s.txHash}
		}
		return
	}

	p.metrics.Height.Set(float64(height))
	p.logger.Debug(ctx, "block produced", "height", height, "calls", len(batch))

	for i, s := range batch {
		r := results[i]
		if r.de != nil {
			p.metrics.Calls.WithLabelValues(string(s.call.Method), outcomeRejected).Inc()
			p.metrics.DispatchErrors.WithLabelValues(r.de.Name).Inc()
		} else {
			p.metrics.Calls.WithLabelValues(string(s.call.Method), outcomeSuccess).Inc()
		}
		for _, e := range r.events {
			p.metrics.Events.WithLabelValues(string(e.Name)).Inc()
		}

		inBlock := ledger.TxUpdate{
			Status:        ledger.StatusInBlock,
			TxHash:        s.txHash,
			BlockNumber:   height,
			Events:        r.events,
			DispatchError: r.de,
		}
		s.updates <- inBlock
		// a single authority finalizes on inclusion
		inBlock.Status = ledger.StatusFinalized
		s.updates <- inBlock
	}
}
