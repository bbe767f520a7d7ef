// Package keys creates and validates the asymmetric key records used for
// bucket keys and personal identity keys. Records are P-256 EC JWKs whose
// kid is the on-chain numeric key id rendered as a decimal string.
package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/go-jose/go-jose/v3"
)

// UseEncryption is the JWK "use" value of every record.
const UseEncryption = "enc"

// Pair is a key pair in JWK form.
type Pair struct {
	Public jose.JSONWebKey
	Secret jose.JSONWebKey
}

// Generate creates a fresh P-256 key pair labelled with kid.
func Generate(kid string) (*Pair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	secret := jose.JSONWebKey{Key: priv, KeyID: kid, Use: UseEncryption}
	return &Pair{Public: secret.Public(), Secret: secret}, nil
}

// FromSecret rebuilds a pair from a secret record.
func FromSecret(secret jose.JSONWebKey) (*Pair, error) {
	if err := ValidateSecret(&secret); err != nil {
		return nil, err
	}
	return &Pair{Public: secret.Public(), Secret: secret}, nil
}

// KeyID renders an on-chain key id as a kid.
func KeyID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// ParseKeyID converts a kid back to the on-chain key id.
func ParseKeyID(kid string) (uint64, error) {
	id, err := strconv.ParseUint(kid, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: kid %q is not a numeric key id", common.ErrKeyMismatch, kid)
	}
	return id, nil
}

// ValidatePublic checks that k is a P-256 public key usable as an envelope
// recipient.
func ValidatePublic(k *jose.JSONWebKey) error {
	if k == nil || k.Key == nil {
		return fmt.Errorf("%w: missing public key", common.ErrKeyMismatch)
	}
	pub, ok := k.Key.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: expected EC public key, got %T", common.ErrKeyMismatch, k.Key)
	}
	if pub.Curve != elliptic.P256() {
		return fmt.Errorf("%w: unsupported curve %s", common.ErrKeyMismatch, pub.Curve.Params().Name)
	}
	return nil
}

// ValidateSecret checks that k is a P-256 private key carrying a kid.
func ValidateSecret(k *jose.JSONWebKey) error {
	if k == nil || k.Key == nil {
		return fmt.Errorf("%w: missing private key", common.ErrKeyMismatch)
	}
	priv, ok := k.Key.(*ecdsa.PrivateKey)
	if !ok {
		return fmt.Errorf("%w: expected EC private key, got %T", common.ErrKeyMismatch, k.Key)
	}
	if priv.Curve != elliptic.P256() {
		return fmt.Errorf("%w: unsupported curve %s", common.ErrKeyMismatch, priv.Curve.Params().Name)
	}
	if k.KeyID == "" {
		return fmt.Errorf("%w: private key has no kid", common.ErrKeyMismatch)
	}
	return nil
}

// ParseJWK decodes a single JWK document.
func ParseJWK(data []byte) (*jose.JSONWebKey, error) {
	var k jose.JSONWebKey
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parse jwk: %w", err)
	}
	return &k, nil
}
