package memledger

import (
	"sync"

	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
)

type subscription struct {
	updates chan ledger.TxUpdate
	done    chan struct{}
	once    sync.Once
}

func newSubscription() *subscription {
	return &subscription{
		updates: make(chan ledger.TxUpdate, 3),
		done:    make(chan struct{}),
	}
}

func (s *subscription) Updates() <-chan ledger.TxUpdate {
	return s.updates
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { close(s.done) })
}

// send delivers u unless the subscriber has gone away. The buffer holds a
// full lifecycle, so send never waits on a live subscriber.
func (s *subscription) send(u ledger.TxUpdate) {
	select {
	case s.updates <- u:
	case <-s.done:
	}
}

// Unsubscribed reports whether Unsubscribe was called.
func (s *subscription) Unsubscribed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
