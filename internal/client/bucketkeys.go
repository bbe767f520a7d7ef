package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/didcomm"
	"github.com/dmitrijs2005/bucketkeeper/internal/jwe"
	"github.com/dmitrijs2005/bucketkeeper/internal/keys"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/registry"
	"github.com/go-jose/go-jose/v3"
)

// BucketPublicKey resolves the bucket's current public key: the key id
// from the ledger, the key from the key directory.
func (c *Client) BucketPublicKey(ctx context.Context, namespaceID, bucketID uint64) (*jose.JSONWebKey, error) {
	l, err := c.ledger()
	if err != nil {
		return nil, err
	}
	b, err := l.Bucket(ctx, namespaceID, bucketID)
	if err != nil {
		return nil, fmt.Errorf("bucket %d: %w", bucketID, err)
	}
	if !b.Status.Writable {
		return nil, fmt.Errorf("%w: bucket %d", common.ErrBucketLocked, bucketID)
	}

	pub, err := c.cfg.BucketKeys.Lookup(ctx, bucketID, keys.KeyID(b.Status.KeyID))
	if err != nil {
		return nil, fmt.Errorf("bucket %d public key %d: %w", bucketID, b.Status.KeyID, err)
	}
	return pub, nil
}

// RetrieveBucketKeys rebuilds the bucket secret keys accessible with the
// personal key priv. A reader left out of a later distribution gets the
// keys of the newest distribution it can open, without the current key.
// When the newest distribution predates the current key it fails with
// common.ErrKeyNotDistributed, retried for up to KeyDiscoveryRetry.
func (c *Client) RetrieveBucketKeys(ctx context.Context, namespaceID, bucketID uint64, priv *jose.JSONWebKey) (*registry.KeyMap, error) {
	if c.cfg.KeyDiscoveryRetry <= 0 {
		return c.retrieveBucketKeys(ctx, namespaceID, bucketID, priv)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = c.cfg.KeyDiscoveryRetry

	var km *registry.KeyMap
	err := backoff.Retry(func() error {
		var err error
		km, err = c.retrieveBucketKeys(ctx, namespaceID, bucketID, priv)
		if err != nil && !errors.Is(err, common.ErrKeyNotDistributed) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
	return km, err
}

func (c *Client) retrieveBucketKeys(ctx context.Context, namespaceID, bucketID uint64, priv *jose.JSONWebKey) (*registry.KeyMap, error) {
	l, err := c.ledger()
	if err != nil {
		return nil, err
	}
	b, err := l.Bucket(ctx, namespaceID, bucketID)
	if err != nil {
		return nil, fmt.Errorf("bucket %d: %w", bucketID, err)
	}
	entries, err := l.Messages(ctx, bucketID)
	if err != nil {
		return nil, fmt.Errorf("bucket %d messages: %w", bucketID, err)
	}

	dists := registry.Distributions(entries)
	if b.Status.Writable && len(dists) == 0 {
		return nil, fmt.Errorf("%w: bucket %d key %d", common.ErrKeyNotDistributed, bucketID, b.Status.KeyID)
	}

	km, err := registry.Discover(ctx, c.cfg.Storage, entries, priv, c.log)
	if err != nil {
		return nil, err
	}
	if !b.Status.Writable {
		return km, nil
	}
	kid := keys.KeyID(b.Status.KeyID)
	if _, ok := km.Get(kid); ok {
		return km, nil
	}
	// A newer distribution exists that priv cannot open: the reader was left
	// out of it and keeps the keys known at its last inclusion.
	if dists[0].MessageID > km.MessageID {
		c.log.Info(ctx, "current bucket key not shared with reader",
			"bucket_id", bucketID, "kid", kid, "distribution", km.MessageID)
		return km, nil
	}
	return nil, fmt.Errorf("%w: bucket %d key %d", common.ErrKeyNotDistributed, bucketID, b.Status.KeyID)
}

// existingKeys is the best-effort key history of the issuer. A bucket
// without readable distributions has none.
func (c *Client) existingKeys(ctx context.Context, bucketID uint64, issuer *jose.JSONWebKey) (*registry.KeyMap, error) {
	l, err := c.ledger()
	if err != nil {
		return nil, err
	}
	entries, err := l.Messages(ctx, bucketID)
	if err != nil {
		return nil, fmt.Errorf("bucket %d messages: %w", bucketID, err)
	}

	km, err := registry.Discover(ctx, c.cfg.Storage, entries, issuer, c.log)
	if errors.Is(err, common.ErrNoAccessibleKey) {
		c.log.Info(ctx, "no previous bucket keys", "bucket_id", bucketID)
		return registry.NewKeyMap(0, nil), nil
	}
	return km, err
}

// ShareBucketKey distributes every bucket key the issuer already holds plus
// pair to readers, the bucket itself and the issuer. pair is last in the
// list and is the current key.
func (c *Client) ShareBucketKey(ctx context.Context, namespaceID, bucketID uint64, pair *keys.Pair,
	readers []string, issuer *jose.JSONWebKey) (*Sent, error) {

	existing, err := c.existingKeys(ctx, bucketID, issuer)
	if err != nil {
		return nil, err
	}
	return c.share(ctx, namespaceID, bucketID, existing, pair, readers, issuer)
}

func (c *Client) share(ctx context.Context, namespaceID, bucketID uint64, existing *registry.KeyMap,
	pair *keys.Pair, readers []string, issuer *jose.JSONWebKey) (*Sent, error) {

	if pair == nil {
		return nil, fmt.Errorf("%w: no key pair to share", common.ErrKeyMismatch)
	}
	if err := keys.ValidateSecret(&pair.Secret); err != nil {
		return nil, err
	}

	keyList := make([]jose.JSONWebKey, 0, existing.Len()+1)
	for _, k := range existing.Keys() {
		if k.KeyID != pair.Secret.KeyID {
			keyList = append(keyList, k)
		}
	}
	keyList = append(keyList, pair.Secret)

	recipients := []*jose.JSONWebKey{&pair.Public}
	if issuer != nil {
		pub := issuer.Public()
		recipients = append(recipients, &pub)
	}
	resolved := 0
	for _, did := range readers {
		pub, err := c.cfg.Resolver.Resolve(ctx, did)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn(ctx, "reader skipped", "did", did, "error", err.Error())
			continue
		}
		recipients = append(recipients, pub)
		resolved++
	}
	if len(readers) > 0 && resolved == 0 {
		return nil, fmt.Errorf("%w: none of %d readers could be resolved", common.ErrNotFound, len(readers))
	}

	msg, err := didcomm.NewKeySharing(didcomm.Header{From: c.cfg.DID, To: readers}, keyList)
	if err != nil {
		return nil, err
	}
	pt, err := didcomm.Marshal(msg)
	if err != nil {
		return nil, err
	}
	env, err := jwe.EncryptMultiple(pt, recipients)
	if err != nil {
		return nil, err
	}

	sent, err := c.commit(ctx, namespaceID, bucketID, []byte(env), ledger.KeySharingTag)
	if err != nil {
		return nil, err
	}
	c.log.Info(ctx, "bucket keys shared", "bucket_id", bucketID, "keys", len(keyList),
		"readers", resolved, "message_id", sent.MessageID)
	return sent, nil
}

// Rotation is the outcome of RotateBucketKey.
type Rotation struct {
	KeyID        uint64
	Pair         *keys.Pair
	ResumeTxHash string
	Distribution *Sent
}

// RotateBucketKey generates the next bucket key, publishes its public half,
// makes it current on the ledger and distributes the key history to
// readers.
func (c *Client) RotateBucketKey(ctx context.Context, namespaceID, bucketID uint64,
	readers []string, issuer *jose.JSONWebKey) (*Rotation, error) {

	l, err := c.ledger()
	if err != nil {
		return nil, err
	}
	b, err := l.Bucket(ctx, namespaceID, bucketID)
	if err != nil {
		return nil, fmt.Errorf("bucket %d: %w", bucketID, err)
	}
	existing, err := c.existingKeys(ctx, bucketID, issuer)
	if err != nil {
		return nil, err
	}

	next := b.Status.KeyID
	for _, kid := range existing.KeyIDs() {
		if id, err := keys.ParseKeyID(kid); err == nil && id > next {
			next = id
		}
	}
	next++

	pair, err := keys.Generate(keys.KeyID(next))
	if err != nil {
		return nil, err
	}
	if err := c.cfg.BucketKeys.Publish(ctx, bucketID, &pair.Public); err != nil {
		return nil, fmt.Errorf("publish bucket key %d: %w", next, err)
	}

	txHash, err := c.SetBucketPublicKey(ctx, namespaceID, bucketID, next)
	if err != nil {
		return nil, err
	}
	sent, err := c.share(ctx, namespaceID, bucketID, existing, pair, readers, issuer)
	if err != nil {
		return nil, err
	}

	return &Rotation{KeyID: next, Pair: pair, ResumeTxHash: txHash, Distribution: sent}, nil
}
