// Package keystore keeps a user's identity on disk encrypted under a
// passphrase: the DID, the personal key-agreement secret key and the
// ledger account seed.
package keystore

import (
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bucketkeeper/internal/filex"
	"github.com/dmitrijs2005/bucketkeeper/internal/keys"
	"github.com/go-jose/go-jose/v3"
)

const formatVersion = 1

// Identity is the secret material of one user.
type Identity struct {
	DID         string          `json:"did"`
	Key         jose.JSONWebKey `json:"key"`
	AccountSeed []byte          `json:"account_seed"`
}

// Validate checks the identity is complete.
func (id *Identity) Validate() error {
	if id.DID == "" {
		return fmt.Errorf("%w: identity has no did", common.ErrConfiguration)
	}
	if err := keys.ValidateSecret(&id.Key); err != nil {
		return err
	}
	if len(id.AccountSeed) != ed25519.SeedSize {
		return fmt.Errorf("%w: account seed must be %d bytes", common.ErrConfiguration, ed25519.SeedSize)
	}
	return nil
}

type file struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Verifier   []byte `json:"verifier"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Save encrypts id under passphrase and writes it to path.
func Save(path string, passphrase []byte, id *Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}

	salt := common.GenerateRandByteArray(cryptox.SaltSize)
	masterKey := cryptox.DeriveMasterKey(passphrase, salt)
	defer common.WipeByteArray(masterKey)

	ct, nonce, err := cryptox.EncryptEntry(id, masterKey)
	if err != nil {
		return fmt.Errorf("encrypt identity: %w", err)
	}

	b, err := json.MarshalIndent(file{
		Version:    formatVersion,
		Salt:       salt,
		Verifier:   cryptox.MakeVerifier(masterKey),
		Nonce:      nonce,
		Ciphertext: ct,
	}, "", "  ")
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(path, b, 0o600)
}

// Load reads and decrypts the identity at path. A wrong passphrase fails
// with common.ErrDecryptionFailed.
func Load(path string, passphrase []byte) (*Identity, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: keystore %s", common.ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}

	var f file
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}
	if f.Version != formatVersion {
		return nil, fmt.Errorf("unsupported keystore version %d", f.Version)
	}

	masterKey := cryptox.DeriveMasterKey(passphrase, f.Salt)
	defer common.WipeByteArray(masterKey)

	if subtle.ConstantTimeCompare(cryptox.MakeVerifier(masterKey), f.Verifier) != 1 {
		return nil, fmt.Errorf("%w: wrong passphrase", common.ErrDecryptionFailed)
	}

	var id Identity
	if err := cryptox.DecryptEntry(f.Ciphertext, f.Nonce, masterKey, &id); err != nil {
		return nil, err
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return &id, nil
}
