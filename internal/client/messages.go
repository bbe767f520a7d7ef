package client

import (
	"cmp"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bucketkeeper/internal/didcomm"
	"github.com/dmitrijs2005/bucketkeeper/internal/jwe"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/dmitrijs2005/bucketkeeper/internal/registry"
	"github.com/dmitrijs2005/bucketkeeper/internal/storage"
	"github.com/dmitrijs2005/bucketkeeper/internal/txwatch"
	"github.com/go-jose/go-jose/v3"
	"golang.org/x/sync/errgroup"
)

// SendOptions are the optional fields of an outgoing message.
type SendOptions struct {
	// Tag must exist on the bucket unless empty.
	Tag     string
	To      []string
	Expires time.Duration
}

func (o SendOptions) header(from string) didcomm.Header {
	return didcomm.Header{From: from, To: o.To, Expires: o.Expires}
}

// Sent describes a committed message.
type Sent struct {
	MessageID uint64
	TxHash    string
	StorageID string
	Digest    string
}

// SendDirectMessage encrypts a text message to the bucket's current key and
// commits it.
func (c *Client) SendDirectMessage(ctx context.Context, namespaceID, bucketID uint64, content string, opts SendOptions) (*Sent, error) {
	pub, err := c.BucketPublicKey(ctx, namespaceID, bucketID)
	if err != nil {
		return nil, err
	}
	msg, err := didcomm.NewDirect(opts.header(c.cfg.DID), content)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, namespaceID, bucketID, pub, msg, opts.Tag)
}

// send encrypts msg to pub, uploads it and commits its reference.
func (c *Client) send(ctx context.Context, namespaceID, bucketID uint64, pub *jose.JSONWebKey,
	msg *didcomm.Message, tag string) (*Sent, error) {

	pt, err := didcomm.Marshal(msg)
	if err != nil {
		return nil, err
	}
	env, err := jwe.EncryptSingle(pt, pub)
	if err != nil {
		return nil, err
	}
	return c.commit(ctx, namespaceID, bucketID, []byte(env), tag)
}

// commit uploads an envelope and writes its Reference Object.
func (c *Client) commit(ctx context.Context, namespaceID, bucketID uint64, envelope []byte, tag string) (*Sent, error) {
	id, err := c.cfg.Storage.Upload(ctx, envelope)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	digest := cryptox.Digest(envelope)

	ref, err := ledger.Reference{Reference: id, Digest: digest}.Encode()
	if err != nil {
		return nil, err
	}

	account := c.Address()
	res, err := submit(ctx, c, ledger.Write(namespaceID, bucketID, ref, tag, ledger.NewMetadata()),
		txwatch.EventIs(ledger.EventNewMessage),
		func(e ledger.Event) (uint64, bool) {
			return e.MessageID, e.BucketID == bucketID && e.Account == account && e.Tag == tag
		})
	if err != nil {
		return nil, err
	}
	return &Sent{MessageID: res.Data, TxHash: res.TxHash, StorageID: id, Digest: digest}, nil
}

// ReceiveMessage downloads, verifies and opens one message with the bucket
// secret key secret.
func (c *Client) ReceiveMessage(ctx context.Context, ref ledger.Reference, secret *jose.JSONWebKey) (*didcomm.Message, error) {
	env, err := c.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	pt, err := jwe.DecryptSingle(env, secret)
	if err != nil {
		return nil, err
	}
	return didcomm.Parse(pt)
}

func (c *Client) fetch(ctx context.Context, ref ledger.Reference) (string, error) {
	blob, err := c.cfg.Storage.Download(ctx, ref.Reference)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", ref.Reference, err)
	}
	if err := cryptox.Verify(blob, ref.Digest); err != nil {
		return "", err
	}
	return string(blob), nil
}

// HistoryEntry is one message of a bucket history. Exactly one of Message
// and Err is set; an entry with Err is a placeholder.
type HistoryEntry struct {
	MessageID   uint64
	Contributor string
	Tag         string
	KeyID       string
	Message     *didcomm.Message
	Err         error
}

// RetrieveBucketMessages opens every non-distribution message of the bucket
// with km. Failures are reported per entry; results are in ascending
// message id order.
func (c *Client) RetrieveBucketMessages(ctx context.Context, bucketID uint64, km *registry.KeyMap) ([]HistoryEntry, error) {
	l, err := c.ledger()
	if err != nil {
		return nil, err
	}
	all, err := l.Messages(ctx, bucketID)
	if err != nil {
		return nil, fmt.Errorf("bucket %d messages: %w", bucketID, err)
	}

	var entries []ledger.MessageEntry
	for _, e := range all {
		if !e.IsKeySharing() {
			entries = append(entries, e)
		}
	}
	slices.SortFunc(entries, func(a, b ledger.MessageEntry) int {
		return cmp.Compare(a.MessageID, b.MessageID)
	})

	out := make([]HistoryEntry, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.HistoryFanOut)
	for i, e := range entries {
		g.Go(func() error {
			out[i] = c.openEntry(gctx, e, km)
			if out[i].Err != nil {
				c.log.Warn(gctx, "message unavailable", "bucket_id", bucketID,
					"message_id", e.MessageID, "reason", out[i].Err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RetrieveBucketHistory rebuilds the bucket keys priv can read and opens
// the bucket messages with them. The key map is returned for
// DecryptAttachment.
func (c *Client) RetrieveBucketHistory(ctx context.Context, namespaceID, bucketID uint64,
	priv *jose.JSONWebKey) ([]HistoryEntry, *registry.KeyMap, error) {

	km, err := c.RetrieveBucketKeys(ctx, namespaceID, bucketID, priv)
	if err != nil {
		return nil, nil, err
	}
	h, err := c.RetrieveBucketMessages(ctx, bucketID, km)
	if err != nil {
		return nil, nil, err
	}
	return h, km, nil
}

func (c *Client) openEntry(ctx context.Context, e ledger.MessageEntry, km *registry.KeyMap) HistoryEntry {
	h := HistoryEntry{MessageID: e.MessageID, Contributor: e.Contributor, Tag: e.Tag}

	ref, err := ledger.DecodeReference(e.Reference)
	if err != nil {
		h.Err = err
		return h
	}
	env, err := c.fetch(ctx, ref)
	if err != nil {
		h.Err = err
		return h
	}
	if h.KeyID, err = jwe.KeyID(env); err != nil {
		h.Err = err
		return h
	}
	secret, ok := km.Get(h.KeyID)
	if !ok {
		h.Err = fmt.Errorf("%w: no bucket key %s", common.ErrKeyMismatch, h.KeyID)
		return h
	}
	pt, err := jwe.DecryptSingle(env, secret)
	if err != nil {
		h.Err = err
		return h
	}
	if h.Message, err = didcomm.Parse(pt); err != nil {
		h.Err = err
	}
	return h
}

// MediaFile is one file of an outgoing media message.
type MediaFile struct {
	Filename    string
	MediaType   string
	Description string
	Data        []byte
}

// SendMediaMessage encrypts each file under a one-time content key, stores
// the ciphertexts, and sends a media message that references them and
// carries the content keys wrapped to the bucket key.
func (c *Client) SendMediaMessage(ctx context.Context, namespaceID, bucketID uint64, files []MediaFile, opts SendOptions) (*Sent, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", common.ErrInvalidMessage)
	}
	pub, err := c.BucketPublicKey(ctx, namespaceID, bucketID)
	if err != nil {
		return nil, err
	}

	media := make([]didcomm.ReferencedMedia, 0, len(files))
	for _, f := range files {
		rm, err := c.uploadFile(ctx, pub, f)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", f.Filename, err)
		}
		media = append(media, rm)
	}

	msg, err := didcomm.NewMedia(opts.header(c.cfg.DID), media)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, namespaceID, bucketID, pub, msg, opts.Tag)
}

func (c *Client) uploadFile(ctx context.Context, pub *jose.JSONWebKey, f MediaFile) (didcomm.ReferencedMedia, error) {
	sealed, err := cryptox.SealFile(f.Data)
	if err != nil {
		return didcomm.ReferencedMedia{}, err
	}
	defer common.WipeByteArray(sealed.Key)

	id, err := c.cfg.Storage.Upload(ctx, sealed.Ciphertext)
	if err != nil {
		return didcomm.ReferencedMedia{}, fmt.Errorf("upload: %w", err)
	}
	wrapped, err := jwe.EncryptSingle(sealed.Key, pub)
	if err != nil {
		return didcomm.ReferencedMedia{}, err
	}

	return didcomm.ReferencedMedia{
		MediaType:   f.MediaType,
		Filename:    f.Filename,
		Description: f.Description,
		Link:        storage.Link(id),
		Hash:        cryptox.FileHash(f.Data),
		Ciphering: didcomm.Ciphering{
			Algorithm: didcomm.CipheringAlgorithm,
			Parameters: didcomm.CipheringParameters{
				IV:  hex.EncodeToString(sealed.Nonce),
				Key: wrapped,
			},
		},
	}, nil
}

// DecryptAttachment fetches and decrypts the file of media item itemID of
// msg. Any mismatch between the stored ciphertext and the recorded content
// fails with common.ErrFileIntegrityViolation.
func (c *Client) DecryptAttachment(ctx context.Context, msg *didcomm.Message, itemID string, km *registry.KeyMap) ([]byte, error) {
	body, ok := msg.Media()
	if !ok {
		return nil, fmt.Errorf("%w: message %s is not a media message", common.ErrInvalidMessage, msg.ID)
	}
	var item *didcomm.MediaItem
	for i := range body.Items {
		if body.Items[i].ID == itemID {
			item = &body.Items[i]
			break
		}
	}
	if item == nil {
		return nil, fmt.Errorf("%w: media item %s", common.ErrNotFound, itemID)
	}
	if item.Ciphering == nil {
		return nil, fmt.Errorf("%w: media item %s is not encrypted", common.ErrInvalidMessage, itemID)
	}
	att, ok := msg.Attachment(item.AttachmentID)
	if !ok || len(att.Data.Links) == 0 {
		return nil, fmt.Errorf("%w: attachment %s has no link", common.ErrInvalidMessage, item.AttachmentID)
	}

	wrapped := item.Ciphering.Parameters.Key
	kid, err := jwe.KeyID(wrapped)
	if err != nil {
		return nil, err
	}
	secret, ok := km.Get(kid)
	if !ok {
		return nil, fmt.Errorf("%w: no bucket key %s", common.ErrKeyMismatch, kid)
	}
	contentKey, err := jwe.DecryptSingle(wrapped, secret)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(contentKey)

	nonce, err := hex.DecodeString(item.Ciphering.Parameters.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: bad iv: %v", common.ErrInvalidMessage, err)
	}
	id, err := storage.ParseLink(att.Data.Links[0])
	if err != nil {
		return nil, err
	}
	ct, err := c.cfg.Storage.Download(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", id, err)
	}

	pt, err := cryptox.OpenFile(ct, contentKey, nonce)
	if errors.Is(err, common.ErrDecryptionFailed) {
		return nil, fmt.Errorf("%w: %v", common.ErrFileIntegrityViolation, err)
	}
	if err != nil {
		return nil, err
	}
	if err := cryptox.VerifyFile(pt, att.Data.Hash); err != nil {
		return nil, err
	}
	return pt, nil
}
