package keydir

import (
	"context"
	"crypto/ecdsa"
	"testing"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directories(t *testing.T) map[string]Directory {
	t.Helper()
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	return map[string]Directory{"memory": NewMemory(), "file": f}
}

func TestDirectory_PublishLookup(t *testing.T) {
	for name, d := range directories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p, err := keys.Generate("7")
			require.NoError(t, err)

			require.NoError(t, d.Publish(ctx, 3, &p.Public))

			got, err := d.Lookup(ctx, 3, "7")
			require.NoError(t, err)
			assert.Equal(t, "7", got.KeyID)
			assert.True(t, p.Public.Key.(*ecdsa.PublicKey).Equal(got.Key))

			_, err = d.Lookup(ctx, 4, "7")
			assert.ErrorIs(t, err, common.ErrNotFound)
			_, err = d.Lookup(ctx, 3, "8")
			assert.ErrorIs(t, err, common.ErrNotFound)
		})
	}
}

func TestDirectory_RejectsBadKeys(t *testing.T) {
	for name, d := range directories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p, err := keys.Generate("1")
			require.NoError(t, err)

			assert.ErrorIs(t, d.Publish(ctx, 1, &p.Secret), common.ErrKeyMismatch)

			bad := p.Public
			bad.KeyID = "../../etc"
			assert.ErrorIs(t, d.Publish(ctx, 1, &bad), common.ErrKeyMismatch)
			assert.ErrorIs(t, d.Publish(ctx, 1, nil), common.ErrKeyMismatch)
		})
	}
}

func TestDirectory_KidBindsOneKey(t *testing.T) {
	for name, d := range directories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := keys.Generate("1")
			require.NoError(t, err)
			other, err := keys.Generate("1")
			require.NoError(t, err)

			require.NoError(t, d.Publish(ctx, 2, &first.Public))
			require.NoError(t, d.Publish(ctx, 2, &first.Public), "republishing the same key is allowed")
			assert.ErrorIs(t, d.Publish(ctx, 2, &other.Public), common.ErrKeyMismatch)
			require.NoError(t, d.Publish(ctx, 3, &other.Public))

			got, err := d.Lookup(ctx, 2, "1")
			require.NoError(t, err)
			assert.True(t, first.Public.Key.(*ecdsa.PublicKey).Equal(got.Key))
		})
	}
}

func TestNewFile_EmptyPath(t *testing.T) {
	_, err := NewFile("")
	assert.ErrorIs(t, err, common.ErrConfiguration)
}
