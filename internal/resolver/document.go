package resolver

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/keys"
	"github.com/go-jose/go-jose/v3"
	"github.com/multiformats/go-multibase"
)

// p256PubPrefix is the unsigned varint of the p256-pub multicodec (0x1200).
var p256PubPrefix = []byte{0x80, 0x24}

var errNoKeyAgreement = errors.New("document has no usable key agreement method")

// Document is the subset of a DID document needed to find the
// key-agreement key.
type Document struct {
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	// KeyAgreement entries are either method references or embedded methods.
	KeyAgreement []json.RawMessage `json:"keyAgreement,omitempty"`
}

type VerificationMethod struct {
	ID                 string          `json:"id"`
	Type               string          `json:"type"`
	Controller         string          `json:"controller,omitempty"`
	PublicKeyJwk       json.RawMessage `json:"publicKeyJwk,omitempty"`
	PublicKeyMultibase string          `json:"publicKeyMultibase,omitempty"`
}

type DocumentMetadata struct {
	Deactivated bool `json:"deactivated,omitempty"`
}

type ResolutionMetadata struct {
	Error string `json:"error,omitempty"`
}

// Resolution is a DID resolution result.
type Resolution struct {
	Document           *Document          `json:"didDocument"`
	DocumentMetadata   DocumentMetadata   `json:"didDocumentMetadata"`
	ResolutionMetadata ResolutionMetadata `json:"didResolutionMetadata"`
}

// ParseResolution accepts either a resolution result or a bare document.
func ParseResolution(data []byte) (*Resolution, error) {
	var res Resolution
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse did resolution: %w", err)
	}
	if res.Document == nil && res.ResolutionMetadata.Error == "" {
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse did document: %w", err)
		}
		if doc.ID == "" {
			return nil, fmt.Errorf("parse did document: missing id")
		}
		res.Document = &doc
	}
	return &res, nil
}

// Key returns the resolved document's key-agreement key, mapping
// resolution failures onto the common sentinels.
func (r *Resolution) Key(did string) (*jose.JSONWebKey, error) {
	switch r.ResolutionMetadata.Error {
	case "":
	case "notFound":
		return nil, fmt.Errorf("%w: did %s", common.ErrNotFound, did)
	default:
		return nil, fmt.Errorf("resolve %s: %s", did, r.ResolutionMetadata.Error)
	}
	if r.DocumentMetadata.Deactivated {
		return nil, fmt.Errorf("%w: did %s", common.ErrDeactivated, did)
	}
	if r.Document == nil {
		return nil, fmt.Errorf("%w: did %s has no document", common.ErrNotFound, did)
	}
	return r.Document.KeyAgreementKey()
}

func (d *Document) absolute(ref string) string {
	if strings.HasPrefix(ref, "#") {
		return d.ID + ref
	}
	return ref
}

func (d *Document) method(ref string) (*VerificationMethod, bool) {
	ref = d.absolute(ref)
	for i := range d.VerificationMethod {
		if d.absolute(d.VerificationMethod[i].ID) == ref {
			return &d.VerificationMethod[i], true
		}
	}
	return nil, false
}

// KeyAgreementKey returns the first key-agreement method that decodes to a
// P-256 public key. The JWK kid is the absolute method id.
func (d *Document) KeyAgreementKey() (*jose.JSONWebKey, error) {
	var lastErr error
	for _, raw := range d.KeyAgreement {
		raw = bytes.TrimSpace(raw)

		var vm *VerificationMethod
		if len(raw) > 0 && raw[0] == '"' {
			var ref string
			if err := json.Unmarshal(raw, &ref); err != nil {
				lastErr = err
				continue
			}
			m, ok := d.method(ref)
			if !ok {
				lastErr = fmt.Errorf("key agreement %s is not a verification method", ref)
				continue
			}
			vm = m
		} else {
			var m VerificationMethod
			if err := json.Unmarshal(raw, &m); err != nil {
				lastErr = err
				continue
			}
			vm = &m
		}

		k, err := vm.publicKey()
		if err != nil {
			lastErr = err
			continue
		}
		k.KeyID = d.absolute(vm.ID)
		k.Use = keys.UseEncryption
		return k, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrNotFound, d.ID, lastErr)
	}
	return nil, fmt.Errorf("%w: %s: %v", common.ErrNotFound, d.ID, errNoKeyAgreement)
}

func (vm *VerificationMethod) publicKey() (*jose.JSONWebKey, error) {
	switch {
	case len(vm.PublicKeyJwk) > 0:
		k, err := keys.ParseJWK(vm.PublicKeyJwk)
		if err != nil {
			return nil, err
		}
		if err := keys.ValidatePublic(k); err != nil {
			return nil, err
		}
		return k, nil
	case vm.PublicKeyMultibase != "":
		pub, err := DecodeP256Multibase(vm.PublicKeyMultibase)
		if err != nil {
			return nil, err
		}
		return &jose.JSONWebKey{Key: pub}, nil
	default:
		return nil, fmt.Errorf("method %s has no public key material", vm.ID)
	}
}

// DecodeP256Multibase decodes a multicodec-tagged compressed P-256 key.
func DecodeP256Multibase(s string) (*ecdsa.PublicKey, error) {
	_, b, err := multibase.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode multibase key: %w", err)
	}
	if !bytes.HasPrefix(b, p256PubPrefix) {
		return nil, fmt.Errorf("multibase key is not p256-pub")
	}

	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), b[len(p256PubPrefix):])
	if x == nil {
		return nil, fmt.Errorf("invalid compressed p256 point")
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

// EncodeP256Multibase renders pub as a base58btc publicKeyMultibase value.
func EncodeP256Multibase(pub *ecdsa.PublicKey) (string, error) {
	if pub == nil || pub.Curve != elliptic.P256() {
		return "", fmt.Errorf("%w: expected P-256 public key", common.ErrKeyMismatch)
	}
	b := append([]byte{}, p256PubPrefix...)
	b = append(b, elliptic.MarshalCompressed(pub.Curve, pub.X, pub.Y)...)
	return multibase.Encode(multibase.Base58BTC, b)
}

// NewDocument builds a minimal document advertising pub as its only
// key-agreement method.
func NewDocument(did string, pub *ecdsa.PublicKey) (*Document, error) {
	mb, err := EncodeP256Multibase(pub)
	if err != nil {
		return nil, err
	}
	ref, err := json.Marshal("#key-agreement-1")
	if err != nil {
		return nil, err
	}
	return &Document{
		ID: did,
		VerificationMethod: []VerificationMethod{{
			ID:                 "#key-agreement-1",
			Type:               "Multikey",
			Controller:         did,
			PublicKeyMultibase: mb,
		}},
		KeyAgreement: []json.RawMessage{ref},
	}, nil
}
