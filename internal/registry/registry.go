// Package registry reconstructs, for one reader, the bucket secret keys
// they can access by scanning the bucket's key-distribution messages.
//
// The newest distribution the reader can decrypt wins. Each distribution
// re-includes every older key the issuer held, so older distributions are
// never consulted once one succeeds.
package registry

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bucketkeeper/internal/didcomm"
	"github.com/dmitrijs2005/bucketkeeper/internal/jwe"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/logging"
	"github.com/dmitrijs2005/bucketkeeper/internal/storage"
	"github.com/go-jose/go-jose/v3"
)

// KeyMap is an immutable set of bucket secret keys indexed by kid.
type KeyMap struct {
	byKid map[string]jose.JSONWebKey
	order []string
	// MessageID is the distribution the map was read from.
	MessageID uint64
}

// NewKeyMap indexes keyList, oldest first. A later duplicate kid replaces
// an earlier one but keeps its position.
func NewKeyMap(messageID uint64, keyList []jose.JSONWebKey) *KeyMap {
	m := &KeyMap{byKid: make(map[string]jose.JSONWebKey, len(keyList)), MessageID: messageID}
	for _, k := range keyList {
		if _, ok := m.byKid[k.KeyID]; !ok {
			m.order = append(m.order, k.KeyID)
		}
		m.byKid[k.KeyID] = k
	}
	return m
}

// Get returns the secret key for kid.
func (m *KeyMap) Get(kid string) (*jose.JSONWebKey, bool) {
	if m == nil {
		return nil, false
	}
	k, ok := m.byKid[kid]
	if !ok {
		return nil, false
	}
	return &k, true
}

// Current returns the newest key, or nil for an empty map.
func (m *KeyMap) Current() *jose.JSONWebKey {
	if m == nil || len(m.order) == 0 {
		return nil
	}
	k := m.byKid[m.order[len(m.order)-1]]
	return &k
}

// Keys returns the keys oldest first.
func (m *KeyMap) Keys() []jose.JSONWebKey {
	if m == nil {
		return nil
	}
	out := make([]jose.JSONWebKey, 0, len(m.order))
	for _, kid := range m.order {
		out = append(out, m.byKid[kid])
	}
	return out
}

// KeyIDs returns the kids oldest first.
func (m *KeyMap) KeyIDs() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.order)
}

func (m *KeyMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Distributions returns the key-distribution entries of a bucket, newest
// first.
func Distributions(entries []ledger.MessageEntry) []ledger.MessageEntry {
	var out []ledger.MessageEntry
	for _, e := range entries {
		if e.IsKeySharing() {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b ledger.MessageEntry) int {
		return cmp.Compare(b.MessageID, a.MessageID)
	})
	return out
}

// Discover returns the key map of the newest distribution priv can open.
// It fails with common.ErrNoAccessibleKey when none can be opened.
func Discover(ctx context.Context, store storage.Provider, entries []ledger.MessageEntry,
	priv *jose.JSONWebKey, log logging.Logger) (*KeyMap, error) {

	candidates := Distributions(entries)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: bucket has no key distributions", common.ErrNoAccessibleKey)
	}

	var lastErr error
	for _, e := range candidates {
		km, err := Open(ctx, store, e, priv)
		if err == nil {
			log.Info(ctx, "bucket keys discovered",
				"bucket_id", e.BucketID, "message_id", e.MessageID, "keys", km.Len())
			return km, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Debug(ctx, "key distribution skipped",
			"bucket_id", e.BucketID, "message_id", e.MessageID, "reason", err.Error())
		lastErr = err
	}
	return nil, fmt.Errorf("%w: tried %d distributions, last: %v", common.ErrNoAccessibleKey, len(candidates), lastErr)
}

// Open reads one key-distribution entry: download, digest check,
// multi-recipient decryption and key-sharing parse.
func Open(ctx context.Context, store storage.Provider, e ledger.MessageEntry, priv *jose.JSONWebKey) (*KeyMap, error) {
	if !e.IsKeySharing() {
		return nil, fmt.Errorf("%w: message %d is not a key distribution", common.ErrInvalidMessage, e.MessageID)
	}
	ref, err := ledger.DecodeReference(e.Reference)
	if err != nil {
		return nil, err
	}
	blob, err := store.Download(ctx, ref.Reference)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", ref.Reference, err)
	}
	if err := cryptox.Verify(blob, ref.Digest); err != nil {
		return nil, err
	}

	pt, err := jwe.DecryptMultiple(string(blob), priv)
	if err != nil {
		return nil, err
	}
	msg, err := didcomm.Parse(pt)
	if err != nil {
		return nil, err
	}
	body, ok := msg.KeySharing()
	if !ok {
		return nil, fmt.Errorf("%w: distribution %d carries %s", common.ErrInvalidMessage, e.MessageID, msg.Type())
	}
	return NewKeyMap(e.MessageID, body.Keys), nil
}
