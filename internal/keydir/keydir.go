// Package keydir publishes and looks up bucket public keys by key id.
// Readers hold no bucket key until it is distributed to them, so senders
// resolve the bucket's current public key here.
package keydir

import (
	"bytes"
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/filex"
	"github.com/dmitrijs2005/bucketkeeper/internal/keys"
	"github.com/go-jose/go-jose/v3"
)

// Directory stores one public key per (bucket, kid). Publishing a kid that
// is already bound to another key fails with common.ErrKeyMismatch.
type Directory interface {
	Lookup(ctx context.Context, bucketID uint64, kid string) (*jose.JSONWebKey, error)
	Publish(ctx context.Context, bucketID uint64, pub *jose.JSONWebKey) error
}

func checkPublic(pub *jose.JSONWebKey) error {
	if pub == nil || !pub.IsPublic() {
		return fmt.Errorf("%w: only public keys can be published", common.ErrKeyMismatch)
	}
	if _, err := keys.ParseKeyID(pub.KeyID); err != nil {
		return err
	}
	return keys.ValidatePublic(pub)
}

// rebind rejects binding kid to pub when it already names a different key.
func rebind(bucketID uint64, existing, pub *jose.JSONWebKey) error {
	a, err := existing.Thumbprint(crypto.SHA256)
	if err != nil {
		return err
	}
	b, err := pub.Thumbprint(crypto.SHA256)
	if err != nil {
		return err
	}
	if !bytes.Equal(a, b) {
		return fmt.Errorf("%w: bucket %d key %s is already published", common.ErrKeyMismatch, bucketID, pub.KeyID)
	}
	return nil
}

type entry struct {
	bucket uint64
	kid    string
}

type Memory struct {
	mu   sync.RWMutex
	keys map[entry]jose.JSONWebKey
}

func NewMemory() *Memory {
	return &Memory{keys: make(map[entry]jose.JSONWebKey)}
}

func (m *Memory) Lookup(ctx context.Context, bucketID uint64, kid string) (*jose.JSONWebKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.keys[entry{bucketID, kid}]
	if !ok {
		return nil, fmt.Errorf("%w: bucket %d key %s", common.ErrNotFound, bucketID, kid)
	}
	return &k, nil
}

func (m *Memory) Publish(ctx context.Context, bucketID uint64, pub *jose.JSONWebKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkPublic(pub); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{bucketID, pub.KeyID}
	if existing, ok := m.keys[e]; ok {
		return rebind(bucketID, &existing, pub)
	}
	m.keys[e] = *pub
	return nil
}

// File keeps keys as JSON files under <root>/<bucket>/<kid>.json.
type File struct {
	root string
}

func NewFile(root string) (*File, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: key directory path is empty", common.ErrConfiguration)
	}
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	return &File{root: abs}, nil
}

func (f *File) path(bucketID uint64, kid string) (string, error) {
	id, err := keys.ParseKeyID(kid)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, strconv.FormatUint(bucketID, 10), keys.KeyID(id)+".json"), nil
}

func (f *File) Lookup(ctx context.Context, bucketID uint64, kid string) (*jose.JSONWebKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := f.path(bucketID, kid)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: bucket %d key %s", common.ErrNotFound, bucketID, kid)
	}
	if err != nil {
		return nil, err
	}
	return keys.ParseJWK(b)
}

func (f *File) Publish(ctx context.Context, bucketID uint64, pub *jose.JSONWebKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkPublic(pub); err != nil {
		return err
	}
	p, err := f.path(bucketID, pub.KeyID)
	if err != nil {
		return err
	}

	existing, err := f.Lookup(ctx, bucketID, pub.KeyID)
	switch {
	case err == nil:
		return rebind(bucketID, existing, pub)
	case !errors.Is(err, common.ErrNotFound):
		return err
	}

	b, err := json.MarshalIndent(pub, "", "  ")
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(p, b, 0o644)
}
