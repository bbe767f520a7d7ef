package client

import (
	"context"

	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/txwatch"
)

// CreateNamespace registers namespace namespaceID with the caller as its
// first Manager.
func (c *Client) CreateNamespace(ctx context.Context, namespaceID uint64, metadata []byte) (string, error) {
	return c.confirm(ctx, ledger.CreateNamespace(namespaceID, metadata), ledger.EventNamespaceCreated,
		func(e ledger.Event) bool { return e.NamespaceID == namespaceID })
}

// CreateBucket creates a Locked bucket and returns the id assigned by the
// ledger.
func (c *Client) CreateBucket(ctx context.Context, namespaceID uint64, metadata []byte) (uint64, string, error) {
	res, err := submit(ctx, c, ledger.CreateBucket(namespaceID, metadata),
		txwatch.EventIs(ledger.EventBucketCreated),
		func(e ledger.Event) (uint64, bool) {
			return e.BucketID, e.NamespaceID == namespaceID
		})
	if err != nil {
		return 0, "", err
	}
	return res.Data, res.TxHash, nil
}

// SetBucketPublicKey makes the bucket Writable with keyID as its current
// key. The public key itself must already be published to the key
// directory.
func (c *Client) SetBucketPublicKey(ctx context.Context, namespaceID, bucketID, keyID uint64) (string, error) {
	return c.confirm(ctx, ledger.ResumeWriting(namespaceID, bucketID, keyID), ledger.EventBucketWritableWithKey,
		func(e ledger.Event) bool { return e.BucketID == bucketID && e.KeyID == keyID })
}

// PauseBucketWrites returns the bucket to Locked.
func (c *Client) PauseBucketWrites(ctx context.Context, namespaceID, bucketID uint64) (string, error) {
	return c.confirm(ctx, ledger.PauseWriting(namespaceID, bucketID), ledger.EventPausedBucket,
		func(e ledger.Event) bool { return e.BucketID == bucketID })
}

func (c *Client) AddManager(ctx context.Context, namespaceID uint64, account string) (string, error) {
	return c.confirm(ctx, ledger.AddManager(namespaceID, account), ledger.EventManagerAdded,
		namespaceMember(namespaceID, account))
}

func (c *Client) RemoveManager(ctx context.Context, namespaceID uint64, account string) (string, error) {
	return c.confirm(ctx, ledger.RemoveManager(namespaceID, account), ledger.EventManagerRemoved,
		namespaceMember(namespaceID, account))
}

func (c *Client) AddAdmin(ctx context.Context, namespaceID, bucketID uint64, account string) (string, error) {
	return c.confirm(ctx, ledger.AddAdmin(namespaceID, bucketID, account), ledger.EventAdminAdded,
		bucketMember(bucketID, account))
}

func (c *Client) RemoveAdmin(ctx context.Context, namespaceID, bucketID uint64, account string) (string, error) {
	return c.confirm(ctx, ledger.RemoveAdmin(namespaceID, bucketID, account), ledger.EventAdminRemoved,
		bucketMember(bucketID, account))
}

func (c *Client) AddContributor(ctx context.Context, namespaceID, bucketID uint64, account string) (string, error) {
	return c.confirm(ctx, ledger.AddContributor(namespaceID, bucketID, account), ledger.EventContributorAdded,
		bucketMember(bucketID, account))
}

func (c *Client) RemoveContributor(ctx context.Context, namespaceID, bucketID uint64, account string) (string, error) {
	return c.confirm(ctx, ledger.RemoveContributor(namespaceID, bucketID, account), ledger.EventContributorRemoved,
		bucketMember(bucketID, account))
}

// CreateTag allows tag on messages written to the bucket.
func (c *Client) CreateTag(ctx context.Context, bucketID uint64, tag string) (string, error) {
	return c.confirm(ctx, ledger.CreateTag(bucketID, tag), ledger.EventNewTag,
		func(e ledger.Event) bool { return e.BucketID == bucketID && e.Tag == tag })
}

// RemoveNamespace deletes a namespace with its buckets. Root only.
func (c *Client) RemoveNamespace(ctx context.Context, namespaceID uint64) (string, error) {
	return c.confirm(ctx, ledger.RemoveNamespace(namespaceID), ledger.EventNamespaceDeleted,
		func(e ledger.Event) bool { return e.NamespaceID == namespaceID })
}

// RemoveBucket deletes a bucket with its messages. Root only.
func (c *Client) RemoveBucket(ctx context.Context, namespaceID, bucketID uint64) (string, error) {
	return c.confirm(ctx, ledger.RemoveBucket(namespaceID, bucketID), ledger.EventBucketDeleted,
		func(e ledger.Event) bool { return e.BucketID == bucketID })
}

// RemoveMessage deletes one message entry. Root only.
func (c *Client) RemoveMessage(ctx context.Context, bucketID, messageID uint64) (string, error) {
	return c.confirm(ctx, ledger.RemoveMessage(bucketID, messageID), ledger.EventMessageDeleted,
		func(e ledger.Event) bool { return e.BucketID == bucketID && e.MessageID == messageID })
}

func namespaceMember(namespaceID uint64, account string) func(ledger.Event) bool {
	return func(e ledger.Event) bool { return e.NamespaceID == namespaceID && e.Account == account }
}

func bucketMember(bucketID uint64, account string) func(ledger.Event) bool {
	return func(e ledger.Event) bool { return e.BucketID == bucketID && e.Account == account }
}
