// Package common defines the sentinel errors shared by every layer of
// bucketkeeper, plus a few byte helpers. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Construction / connection errors.
	ErrConfiguration = errors.New("configuration error")
	ErrNotConnected  = errors.New("not connected")
	ErrUnauthorized  = errors.New("unauthorized")

	// Ledger call errors.
	ErrCallFailed           = errors.New("call failed")
	ErrExpectedEventMissing = errors.New("expected event missing")

	// Integrity errors.
	ErrIntegrityViolation     = errors.New("integrity violation")
	ErrFileIntegrityViolation = errors.New("file integrity violation")

	// Key errors.
	ErrKeyMismatch       = errors.New("key mismatch")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrNoAccessibleKey   = errors.New("no accessible key")
	ErrBucketLocked      = errors.New("bucket locked")
	ErrKeyNotDistributed = errors.New("key not distributed yet")

	// Lookup errors.
	ErrNotFound    = errors.New("not found")
	ErrDeactivated = errors.New("deactivated")

	// Message codec errors.
	ErrInvalidMessage = errors.New("invalid message")
)

// CallError is a decoded ledger dispatch error.
type CallError struct {
	Module string
	Name   string
	Docs   string
}

func (e *CallError) Error() string {
	if e.Docs != "" {
		return fmt.Sprintf("%s: %s.%s: %s", ErrCallFailed, e.Module, e.Name, e.Docs)
	}
	return fmt.Sprintf("%s: %s.%s", ErrCallFailed, e.Module, e.Name)
}

func (e *CallError) Unwrap() error {
	return ErrCallFailed
}

// Is reports whether target is a CallError with the same module and name.
func (e *CallError) Is(target error) bool {
	t, ok := target.(*CallError)
	if !ok {
		return false
	}
	return t.Module == e.Module && t.Name == e.Name
}
