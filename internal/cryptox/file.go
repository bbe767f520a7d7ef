package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
)

const (
	// ContentKeySize is the size of a one-time file key (AES-256).
	ContentKeySize = 32
	// NonceSize is the GCM nonce size used for files and sealed entries.
	NonceSize = 12
)

// SealedFile is an AEAD-encrypted file together with its one-time key.
type SealedFile struct {
	Ciphertext []byte
	Key        []byte
	Nonce      []byte
}

// SealFile encrypts plaintext with a fresh random AES-256-GCM key and nonce.
// The caller owns Key and should wipe it once it has been wrapped.
func SealFile(plaintext []byte) (*SealedFile, error) {
	key := common.GenerateRandByteArray(ContentKeySize)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(NonceSize)
	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	return &SealedFile{Ciphertext: ciphertext, Key: key, Nonce: nonce}, nil
}

// OpenFile reverses SealFile.
func OpenFile(ciphertext, key, nonce []byte) ([]byte, error) {
	if len(key) != ContentKeySize {
		return nil, fmt.Errorf("%w: content key must be %d bytes", common.ErrKeyMismatch, ContentKeySize)
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", common.ErrDecryptionFailed, NonceSize)
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, NonceSize)
}
