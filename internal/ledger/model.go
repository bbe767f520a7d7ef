package ledger

import "slices"

// KeySharingTag marks key-distribution messages. Every bucket accepts it.
const KeySharingTag = "didcomm/key-sharing-v1"

// BucketStatus is Locked (no current key) or Writable with a key id. A
// Locked bucket keeps the id of its last key, zero if it never had one, so
// key ids are never issued twice.
type BucketStatus struct {
	Writable bool
	KeyID    uint64
}

// Locked is the status of a bucket without a current public key.
func Locked() BucketStatus {
	return BucketStatus{}
}

// Paused is the status of a bucket locked after keyID was current.
func Paused(keyID uint64) BucketStatus {
	return BucketStatus{KeyID: keyID}
}

// WritableWithKey is the status of a bucket whose current key is keyID.
func WritableWithKey(keyID uint64) BucketStatus {
	return BucketStatus{Writable: true, KeyID: keyID}
}

// Namespace is a top-level ownership scope.
type Namespace struct {
	ID       uint64
	Metadata []byte
	Managers []string
	Buckets  []uint64
}

// IsManager reports whether account manages the namespace.
func (n *Namespace) IsManager(account string) bool {
	return slices.Contains(n.Managers, account)
}

// Bucket is an access-controlled message channel inside a namespace.
type Bucket struct {
	ID           uint64
	NamespaceID  uint64
	Metadata     []byte
	Status       BucketStatus
	Admins       []string
	Contributors []string
	Tags         []string
}

// IsAdmin reports whether account administers the bucket.
func (b *Bucket) IsAdmin(account string) bool {
	return slices.Contains(b.Admins, account)
}

// CanWrite reports whether account may write messages.
func (b *Bucket) CanWrite(account string) bool {
	return b.IsAdmin(account) || slices.Contains(b.Contributors, account)
}

// HasTag reports whether tag may be attached to messages of the bucket.
func (b *Bucket) HasTag(tag string) bool {
	return tag == "" || tag == KeySharingTag || slices.Contains(b.Tags, tag)
}

// MessageEntry is an append-only message record.
type MessageEntry struct {
	BucketID    uint64
	MessageID   uint64
	Reference   []byte
	Tag         string
	Metadata    []byte
	Contributor string
}

// IsKeySharing reports whether the entry is a key-distribution message.
func (m *MessageEntry) IsKeySharing() bool {
	return m.Tag == KeySharingTag
}
