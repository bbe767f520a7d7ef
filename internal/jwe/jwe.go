// Package jwe implements the envelope cipher: ECDH-ES+A256KW key wrapping
// with A256GCM content encryption over P-256 keys.
//
// Envelopes addressed to a single recipient (the bucket) use the compact
// serialization and carry the recipient kid in the protected header.
// Envelopes addressed to several recipients use the general JSON
// serialization with one entry per recipient sharing one content key.
package jwe

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/keys"
	"github.com/go-jose/go-jose/v3"
)

// ContentType is set as "cty" on every envelope.
const ContentType = "application/didcomm-plain+json"

var (
	keyAlgorithm     = jose.ECDH_ES_A256KW
	contentAlgorithm = jose.A256GCM
)

func recipient(pub *jose.JSONWebKey) (jose.Recipient, error) {
	if err := keys.ValidatePublic(pub); err != nil {
		return jose.Recipient{}, err
	}
	return jose.Recipient{
		Algorithm: keyAlgorithm,
		Key:       pub.Key.(*ecdsa.PublicKey),
		KeyID:     pub.KeyID,
	}, nil
}

func options() *jose.EncrypterOptions {
	return (&jose.EncrypterOptions{}).WithContentType(ContentType)
}

// EncryptSingle encrypts plaintext to one recipient and returns the compact
// envelope. The recipient key must carry a kid.
func EncryptSingle(plaintext []byte, pub *jose.JSONWebKey) (string, error) {
	if pub != nil && pub.KeyID == "" {
		return "", fmt.Errorf("%w: recipient key has no kid", common.ErrKeyMismatch)
	}
	r, err := recipient(pub)
	if err != nil {
		return "", err
	}

	enc, err := jose.NewEncrypter(contentAlgorithm, r, options())
	if err != nil {
		return "", fmt.Errorf("new encrypter: %w", err)
	}
	obj, err := enc.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return obj.CompactSerialize()
}

// DecryptSingle opens a compact envelope. It fails with ErrKeyMismatch when
// priv is not a P-256 private key or its kid differs from the envelope kid,
// and with ErrDecryptionFailed for any cryptographic failure.
func DecryptSingle(envelope string, priv *jose.JSONWebKey) ([]byte, error) {
	obj, err := parse(envelope)
	if err != nil {
		return nil, err
	}
	if err := keys.ValidateSecret(priv); err != nil {
		return nil, err
	}
	if kid := obj.Header.KeyID; kid != "" && kid != priv.KeyID {
		return nil, fmt.Errorf("%w: envelope kid %q, key kid %q", common.ErrKeyMismatch, kid, priv.KeyID)
	}

	pt, err := obj.Decrypt(priv.Key)
	if err != nil {
		return nil, decryptError(err)
	}
	return pt, nil
}

// EncryptMultiple encrypts plaintext once and wraps the content key for
// every recipient. The result is the general JSON serialization.
func EncryptMultiple(plaintext []byte, pubs []*jose.JSONWebKey) (string, error) {
	if len(pubs) == 0 {
		return "", errors.New("encrypt multiple: no recipients")
	}

	rs := make([]jose.Recipient, 0, len(pubs))
	for _, pub := range pubs {
		r, err := recipient(pub)
		if err != nil {
			return "", err
		}
		rs = append(rs, r)
	}

	enc, err := jose.NewMultiEncrypter(contentAlgorithm, rs, options())
	if err != nil {
		return "", fmt.Errorf("new multi encrypter: %w", err)
	}
	obj, err := enc.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return obj.FullSerialize(), nil
}

// DecryptMultiple tries every recipient entry of a general envelope with
// priv. Not being a recipient is indistinguishable from corruption and is
// reported as ErrDecryptionFailed.
func DecryptMultiple(envelope string, priv *jose.JSONWebKey) ([]byte, error) {
	obj, err := parse(envelope)
	if err != nil {
		return nil, err
	}
	if priv == nil || priv.Key == nil {
		return nil, fmt.Errorf("%w: missing private key", common.ErrKeyMismatch)
	}
	if _, ok := priv.Key.(*ecdsa.PrivateKey); !ok {
		return nil, fmt.Errorf("%w: expected EC private key, got %T", common.ErrKeyMismatch, priv.Key)
	}

	_, _, pt, err := obj.DecryptMulti(priv.Key)
	if err != nil {
		return nil, decryptError(err)
	}
	return pt, nil
}

// KeyID returns the kid recorded in a compact envelope header without
// decrypting it.
func KeyID(envelope string) (string, error) {
	obj, err := parse(envelope)
	if err != nil {
		return "", err
	}
	if obj.Header.KeyID == "" {
		return "", fmt.Errorf("%w: envelope has no kid", common.ErrKeyMismatch)
	}
	return obj.Header.KeyID, nil
}

func parse(s string) (*jose.JSONWebEncryption, error) {
	obj, err := jose.ParseEncrypted(s)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", common.ErrDecryptionFailed, err)
	}
	return obj, nil
}

func decryptError(err error) error {
	return fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
}
