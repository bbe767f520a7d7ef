// Package cryptox holds the symmetric primitives: the content digest used
// for on-chain commitments, the file layer of media messages and the
// passphrase-based sealing used by the keystore.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
)

// FileHashPrefix names the algorithm of a media item plaintext hash.
const FileHashPrefix = "sha2-256:"

// Digest returns the lowercase hex SHA-256 of b. The same value is
// committed on-chain, so the encoding must not change.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest of b and compares it with expected. It must
// run before any downloaded ciphertext is decrypted.
func Verify(b []byte, expected string) error {
	if !equalHex(Digest(b), expected) {
		return fmt.Errorf("%w: digest mismatch", common.ErrIntegrityViolation)
	}
	return nil
}

// FileHash returns the algorithm-prefixed plaintext hash stored in media items.
func FileHash(b []byte) string {
	return FileHashPrefix + Digest(b)
}

// VerifyFile checks decrypted file bytes against a FileHash value.
func VerifyFile(b []byte, hash string) error {
	hexHash, ok := strings.CutPrefix(hash, FileHashPrefix)
	if !ok {
		return fmt.Errorf("%w: unsupported hash %q", common.ErrFileIntegrityViolation, hash)
	}
	if !equalHex(Digest(b), hexHash) {
		return fmt.Errorf("%w: plaintext hash mismatch", common.ErrFileIntegrityViolation)
	}
	return nil
}

func equalHex(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(strings.ToLower(b))) == 1
}
