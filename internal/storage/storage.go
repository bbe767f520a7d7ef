// Package storage defines the off-chain blob store used for message
// ciphertexts and media files. Providers give no integrity guarantee;
// callers verify downloaded bytes against the on-chain digest.
package storage

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/multiformats/go-multibase"
)

// Provider stores and fetches opaque blobs. Download of an unknown
// identifier fails with common.ErrNotFound.
type Provider interface {
	Upload(ctx context.Context, data []byte) (string, error)
	Download(ctx context.Context, id string) ([]byte, error)
}

// LinkScheme prefixes storage identifiers in attachment links.
const LinkScheme = "ipfs://"

// Link renders id as an attachment link.
func Link(id string) string {
	return LinkScheme + id
}

// ParseLink extracts the storage identifier from an attachment link.
func ParseLink(link string) (string, error) {
	id, ok := strings.CutPrefix(link, LinkScheme)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: unsupported link %q", common.ErrNotFound, link)
	}
	return id, nil
}

// RetryPolicy bounds retries of transient provider failures.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultRetryPolicy suits public gateways that occasionally time out.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 200 * time.Millisecond,
	MaxElapsedTime:  10 * time.Second,
	MaxRetries:      4,
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxElapsedTime = p.MaxElapsedTime
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

type retrying struct {
	next   Provider
	policy RetryPolicy
}

// WithRetry wraps p so transient failures are retried with exponential
// backoff. ErrNotFound and context errors are returned at once.
func WithRetry(p Provider, policy RetryPolicy) Provider {
	return &retrying{next: p, policy: policy}
}

func permanent(err error) error {
	if errors.Is(err, common.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	return err
}

func (r *retrying) Upload(ctx context.Context, data []byte) (string, error) {
	var id string
	err := backoff.Retry(func() error {
		var err error
		id, err = r.next.Upload(ctx, data)
		return permanent(err)
	}, r.policy.backOff(ctx))
	return id, err
}

func (r *retrying) Download(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := backoff.Retry(func() error {
		var err error
		data, err = r.next.Download(ctx, id)
		return permanent(err)
	}, r.policy.backOff(ctx))
	return data, err
}

// ContentID derives the content address of data: the multibase base32
// form of its sha2-256 digest, prefixed with the sha2-256 multihash header.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	mh := append([]byte{0x12, 0x20}, sum[:]...)
	id, err := multibase.Encode(multibase.Base32, mh)
	if err != nil {
		// Base32 is always a known encoding.
		panic(err)
	}
	return id
}
