package ledger

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
)

// Reference is the on-chain commitment of an off-chain message: where the
// ciphertext is stored and its digest.
type Reference struct {
	Reference string `json:"reference"`
	Digest    string `json:"digest"`
}

// Encode serializes r for the reference field of a message entry.
func (r Reference) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeReference parses the reference field of a message entry.
func DecodeReference(b []byte) (Reference, error) {
	var r Reference
	if err := json.Unmarshal(b, &r); err != nil {
		return Reference{}, fmt.Errorf("%w: malformed reference: %v", common.ErrIntegrityViolation, err)
	}
	if r.Reference == "" || r.Digest == "" {
		return Reference{}, fmt.Errorf("%w: incomplete reference", common.ErrIntegrityViolation)
	}
	return r, nil
}

// Metadata is the free-form metadata attached to written messages.
type Metadata struct {
	Unique uint32 `json:"unique"`
}

// NewMetadata returns metadata with a random unique value so identical
// payloads still produce distinct entries.
func NewMetadata() []byte {
	b, _ := json.Marshal(Metadata{Unique: rand.Uint32N(1_000_000_000)})
	return b
}
