package memstore

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Upload(ctx, []byte("payload"))
	require.NoError(t, err)

	got, err := s.Download(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	again, err := s.Upload(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, s.Len())
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	data := []byte("abc")
	id, err := s.Upload(ctx, data)
	require.NoError(t, err)
	data[0] = 'x'

	got, err := s.Download(ctx, id)
	require.NoError(t, err)
	got[1] = 'y'

	again, err := s.Download(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestStore_NotFoundAndTampering(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Download(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	id, err := s.Upload(ctx, []byte("orig"))
	require.NoError(t, err)
	s.Replace(id, []byte("evil"))
	got, err := s.Download(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("evil"), got)

	s.Remove(id)
	_, err = s.Download(ctx, id)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Upload(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
