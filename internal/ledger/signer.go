package ledger

import (
	"crypto"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
)

// Signer is an account able to authorize calls.
type Signer interface {
	crypto.Signer
	Address() string
}

// KeyringSigner is an ed25519 account. Its address is the hex public key.
type KeyringSigner struct {
	key ed25519.PrivateKey
}

// NewKeyringSigner derives an account from a 32-byte seed.
func NewKeyringSigner(seed []byte) (*KeyringSigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("account seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &KeyringSigner{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// GenerateKeyringSigner creates a random account.
func GenerateKeyringSigner(rand io.Reader) (*KeyringSigner, error) {
	_, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return &KeyringSigner{key: priv}, nil
}

func (s *KeyringSigner) Public() crypto.PublicKey {
	return s.key.Public()
}

func (s *KeyringSigner) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return s.key.Sign(rand, digest, opts)
}

func (s *KeyringSigner) Address() string {
	return hex.EncodeToString(s.key.Public().(ed25519.PublicKey))
}

// Seed returns the seed the account was derived from.
func (s *KeyringSigner) Seed() []byte {
	return s.key.Seed()
}

// AccountPublicKey decodes an address back to its ed25519 public key.
func AccountPublicKey(address string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(address)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid account address %q", address)
	}
	return ed25519.PublicKey(b), nil
}
