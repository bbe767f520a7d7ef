// Package auth binds a submitted call to the account that authorized it.
// The authorization is an EdDSA JWT signed by the account key whose subject
// is the account address and whose call_hash claim is the hash of the call.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultValidity bounds how long a signed call may wait before submission.
const DefaultValidity = 5 * time.Minute

// Claims are the claims of a call authorization.
type Claims struct {
	jwt.RegisteredClaims
	CallHash string `json:"call_hash"`
}

// SignCall authorizes call on behalf of signer.
func SignCall(signer ledger.Signer, call ledger.Call, validity time.Duration) (string, error) {
	hash, err := call.Hash()
	if err != nil {
		return "", err
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   signer.Address(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		CallHash: hash,
	})

	return token.SignedString(signer)
}

// VerifyCall checks an authorization against call and returns the signing
// account and the transaction hash derived from the token.
func VerifyCall(tokenString string, call ledger.Call) (account string, txHash string, err error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		c, ok := t.Claims.(*Claims)
		if !ok {
			return nil, errors.New("unexpected claims type")
		}
		return ledger.AccountPublicKey(c.Subject)
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", common.ErrUnauthorized, err)
	}
	if !token.Valid {
		return "", "", common.ErrUnauthorized
	}

	want, err := call.Hash()
	if err != nil {
		return "", "", err
	}
	if claims.CallHash != want {
		return "", "", fmt.Errorf("%w: authorization does not cover this call", common.ErrUnauthorized)
	}

	sum := sha256.Sum256([]byte(tokenString))
	return claims.Subject, "0x" + hex.EncodeToString(sum[:]), nil
}
