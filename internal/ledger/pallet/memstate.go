package pallet

import (
	"context"
	"slices"
	"sort"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
)

// MemState is a map-backed State. Records are copied on the way in and out.
// It is not safe for concurrent use.
type MemState struct {
	namespaces   map[uint64]*ledger.Namespace
	buckets      map[uint64]*ledger.Bucket
	messages     map[uint64]map[uint64]*ledger.MessageEntry
	lastBucketID uint64
	lastMessage  map[uint64]uint64
}

func NewMemState() *MemState {
	return &MemState{
		namespaces:  make(map[uint64]*ledger.Namespace),
		buckets:     make(map[uint64]*ledger.Bucket),
		messages:    make(map[uint64]map[uint64]*ledger.MessageEntry),
		lastMessage: make(map[uint64]uint64),
	}
}

func copyNamespace(ns *ledger.Namespace) *ledger.Namespace {
	c := *ns
	c.Managers = slices.Clone(ns.Managers)
	c.Buckets = slices.Clone(ns.Buckets)
	c.Metadata = slices.Clone(ns.Metadata)
	return &c
}

func copyBucket(b *ledger.Bucket) *ledger.Bucket {
	c := *b
	c.Admins = slices.Clone(b.Admins)
	c.Contributors = slices.Clone(b.Contributors)
	c.Tags = slices.Clone(b.Tags)
	c.Metadata = slices.Clone(b.Metadata)
	return &c
}

func (s *MemState) Namespace(_ context.Context, id uint64) (*ledger.Namespace, error) {
	ns, ok := s.namespaces[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyNamespace(ns), nil
}

func (s *MemState) PutNamespace(_ context.Context, ns *ledger.Namespace) error {
	s.namespaces[ns.ID] = copyNamespace(ns)
	return nil
}

func (s *MemState) DeleteNamespace(_ context.Context, id uint64) error {
	if _, ok := s.namespaces[id]; !ok {
		return common.ErrNotFound
	}
	delete(s.namespaces, id)
	return nil
}

func (s *MemState) Bucket(_ context.Context, id uint64) (*ledger.Bucket, error) {
	b, ok := s.buckets[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyBucket(b), nil
}

func (s *MemState) PutBucket(_ context.Context, b *ledger.Bucket) error {
	s.buckets[b.ID] = copyBucket(b)
	return nil
}

func (s *MemState) DeleteBucket(_ context.Context, id uint64) error {
	if _, ok := s.buckets[id]; !ok {
		return common.ErrNotFound
	}
	delete(s.buckets, id)
	delete(s.messages, id)
	return nil
}

func (s *MemState) NextBucketID(_ context.Context) (uint64, error) {
	s.lastBucketID++
	return s.lastBucketID, nil
}

func (s *MemState) Message(_ context.Context, bucketID, messageID uint64) (*ledger.MessageEntry, error) {
	m, ok := s.messages[bucketID][messageID]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := *m
	return &c, nil
}

func (s *MemState) PutMessage(_ context.Context, m *ledger.MessageEntry) error {
	byID, ok := s.messages[m.BucketID]
	if !ok {
		byID = make(map[uint64]*ledger.MessageEntry)
		s.messages[m.BucketID] = byID
	}
	c := *m
	byID[m.MessageID] = &c
	return nil
}

func (s *MemState) DeleteMessage(_ context.Context, bucketID, messageID uint64) error {
	if _, ok := s.messages[bucketID][messageID]; !ok {
		return common.ErrNotFound
	}
	delete(s.messages[bucketID], messageID)
	return nil
}

// NextMessageID never reuses an id, even after removals.
func (s *MemState) NextMessageID(_ context.Context, bucketID uint64) (uint64, error) {
	s.lastMessage[bucketID]++
	return s.lastMessage[bucketID], nil
}

// Messages lists the messages of a bucket in ascending id order.
func (s *MemState) Messages(_ context.Context, bucketID uint64) ([]ledger.MessageEntry, error) {
	out := make([]ledger.MessageEntry, 0, len(s.messages[bucketID]))
	for _, m := range s.messages[bucketID] {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	return out, nil
}
