package wire

import "github.com/dmitrijs2005/bucketkeeper/internal/ledger"

// AuthorizationKey is the metadata key carrying the call authorization token.
const AuthorizationKey = "authorization"

type BucketRequest struct {
	NamespaceID uint64 `cbor:"1,keyasint"`
	BucketID    uint64 `cbor:"2,keyasint"`
}

type BucketResponse struct {
	Bucket ledger.Bucket `cbor:"1,keyasint"`
}

type MessagesRequest struct {
	BucketID uint64 `cbor:"1,keyasint"`
}

type MessagesResponse struct {
	Entries []ledger.MessageEntry `cbor:"1,keyasint"`
}

// SubmitRequest carries a call. The authorization travels in metadata
// under AuthorizationKey.
type SubmitRequest struct {
	Call ledger.Call `cbor:"1,keyasint"`
}

type PingRequest struct{}

type PingResponse struct {
	Height uint64 `cbor:"1,keyasint"`
}
