package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Method names a ledger call.
type Method string

const (
	MethodCreateNamespace   Method = "create_namespace"
	MethodCreateBucket      Method = "create_bucket"
	MethodResumeWriting     Method = "resume_writing"
	MethodPauseWriting      Method = "pause_writing"
	MethodWrite             Method = "write"
	MethodAddAdmin          Method = "add_admin"
	MethodRemoveAdmin       Method = "remove_admin"
	MethodAddManager        Method = "add_manager"
	MethodRemoveManager     Method = "remove_manager"
	MethodAddContributor    Method = "add_contributor"
	MethodRemoveContributor Method = "remove_contributor"
	MethodCreateTag         Method = "create_tag"
	MethodRemoveNamespace   Method = "remove_namespace"
	MethodRemoveBucket      Method = "remove_bucket"
	MethodRemoveMessage     Method = "remove_message"
)

// Call is a state-changing ledger call. Only the fields relevant to Method
// are set; use the constructors below.
type Call struct {
	Method      Method `cbor:"1,keyasint"`
	NamespaceID uint64 `cbor:"2,keyasint,omitempty"`
	BucketID    uint64 `cbor:"3,keyasint,omitempty"`
	MessageID   uint64 `cbor:"4,keyasint,omitempty"`
	KeyID       uint64 `cbor:"5,keyasint,omitempty"`
	Account     string `cbor:"6,keyasint,omitempty"`
	Tag         string `cbor:"7,keyasint,omitempty"`
	Reference   []byte `cbor:"8,keyasint,omitempty"`
	Metadata    []byte `cbor:"9,keyasint,omitempty"`
}

func CreateNamespace(namespaceID uint64, metadata []byte) Call {
	return Call{Method: MethodCreateNamespace, NamespaceID: namespaceID, Metadata: metadata}
}

func CreateBucket(namespaceID uint64, metadata []byte) Call {
	return Call{Method: MethodCreateBucket, NamespaceID: namespaceID, Metadata: metadata}
}

func ResumeWriting(namespaceID, bucketID, keyID uint64) Call {
	return Call{Method: MethodResumeWriting, NamespaceID: namespaceID, BucketID: bucketID, KeyID: keyID}
}

func PauseWriting(namespaceID, bucketID uint64) Call {
	return Call{Method: MethodPauseWriting, NamespaceID: namespaceID, BucketID: bucketID}
}

// Write appends a message entry. reference is the encoded Reference object.
func Write(namespaceID, bucketID uint64, reference []byte, tag string, metadata []byte) Call {
	return Call{Method: MethodWrite, NamespaceID: namespaceID, BucketID: bucketID,
		Reference: reference, Tag: tag, Metadata: metadata}
}

func AddAdmin(namespaceID, bucketID uint64, account string) Call {
	return Call{Method: MethodAddAdmin, NamespaceID: namespaceID, BucketID: bucketID, Account: account}
}

func RemoveAdmin(namespaceID, bucketID uint64, account string) Call {
	return Call{Method: MethodRemoveAdmin, NamespaceID: namespaceID, BucketID: bucketID, Account: account}
}

func AddManager(namespaceID uint64, account string) Call {
	return Call{Method: MethodAddManager, NamespaceID: namespaceID, Account: account}
}

func RemoveManager(namespaceID uint64, account string) Call {
	return Call{Method: MethodRemoveManager, NamespaceID: namespaceID, Account: account}
}

func AddContributor(namespaceID, bucketID uint64, account string) Call {
	return Call{Method: MethodAddContributor, NamespaceID: namespaceID, BucketID: bucketID, Account: account}
}

func RemoveContributor(namespaceID, bucketID uint64, account string) Call {
	return Call{Method: MethodRemoveContributor, NamespaceID: namespaceID, BucketID: bucketID, Account: account}
}

func CreateTag(bucketID uint64, tag string) Call {
	return Call{Method: MethodCreateTag, BucketID: bucketID, Tag: tag}
}

func RemoveNamespace(namespaceID uint64) Call {
	return Call{Method: MethodRemoveNamespace, NamespaceID: namespaceID}
}

func RemoveBucket(namespaceID, bucketID uint64) Call {
	return Call{Method: MethodRemoveBucket, NamespaceID: namespaceID, BucketID: bucketID}
}

func RemoveMessage(bucketID, messageID uint64) Call {
	return Call{Method: MethodRemoveMessage, BucketID: bucketID, MessageID: messageID}
}

var callEncoding cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	callEncoding = em
}

// Encode returns the deterministic CBOR encoding of c.
func (c Call) Encode() ([]byte, error) {
	return callEncoding.Marshal(c)
}

// Hash returns the hex SHA-256 of the deterministic encoding of c.
func (c Call) Hash() (string, error) {
	b, err := c.Encode()
	if err != nil {
		return "", fmt.Errorf("encode call: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
