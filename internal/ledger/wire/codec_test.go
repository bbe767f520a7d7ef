package wire

import (
	"testing"

	"github.com/dmitrijs2005/bucketkeeper/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, CodecName, c.Name())
}

func TestCodec_TxUpdateWithDispatchError(t *testing.T) {
	in := ledger.TxUpdate{
		Status:      ledger.StatusInBlock,
		TxHash:      "0xabc",
		BlockNumber: 7,
		Events: []ledger.Event{{
			Module: "System",
			Name:   ledger.EventExtrinsicFailed,
		}},
		DispatchError: &ledger.DispatchError{Module: ledger.Module, Name: "BucketLocked"},
	}

	b, err := Codec{}.Marshal(&in)
	require.NoError(t, err)
	var out ledger.TxUpdate
	require.NoError(t, Codec{}.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestCodec_Deterministic(t *testing.T) {
	req := &SubmitRequest{Call: ledger.Write(1, 2, []byte("ref"), "chat", []byte(`{"unique":1}`))}
	a, err := Codec{}.Marshal(req)
	require.NoError(t, err)
	b, err := Codec{}.Marshal(req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
