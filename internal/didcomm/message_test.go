package didcomm

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/keys"
	"github.com/go-jose/go-jose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirect_MarshalParse(t *testing.T) {
	m, err := NewDirect(Header{From: "did:example:alice", To: []string{"bucket:1"}, Expires: time.Hour}, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Greater(t, m.ExpiresTime, m.CreatedTime)

	raw, err := Marshal(m)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, string(TypeDirect), wire["type"])
	assert.Equal(t, map[string]any{"content": "hello"}, wire["body"])
	assert.NotContains(t, wire, "attachments")

	back, err := Parse(raw)
	require.NoError(t, err)
	body, ok := back.Direct()
	require.True(t, ok)
	assert.Equal(t, "hello", body.Content)
	assert.Equal(t, m.ID, back.ID)
	assert.Equal(t, []string{"bucket:1"}, back.To)

	_, ok = back.Media()
	assert.False(t, ok)
}

func TestKeySharing_MarshalParse(t *testing.T) {
	k1, err := keys.Generate("1")
	require.NoError(t, err)
	k2, err := keys.Generate("2")
	require.NoError(t, err)

	m, err := NewKeySharing(Header{From: "did:example:admin"}, []jose.JSONWebKey{k1.Secret, k2.Secret})
	require.NoError(t, err)

	raw, err := Marshal(m)
	require.NoError(t, err)

	back, err := Parse(raw)
	require.NoError(t, err)
	body, ok := back.KeySharing()
	require.True(t, ok)
	require.Len(t, body.Keys, 2)
	assert.Equal(t, "2", body.Current().KeyID)
	assert.Equal(t, keys.UseEncryption, body.Keys[0].Use)
}

func TestNewKeySharing_RejectsPublicKeys(t *testing.T) {
	k, err := keys.Generate("1")
	require.NoError(t, err)

	_, err = NewKeySharing(Header{}, []jose.JSONWebKey{k.Public})
	assert.ErrorIs(t, err, common.ErrInvalidMessage)

	_, err = NewKeySharing(Header{}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidMessage)
}

func TestMedia_MarshalParse(t *testing.T) {
	m, err := NewMedia(Header{From: "did:example:bob"}, []ReferencedMedia{{
		MediaType: "image/png",
		Filename:  "cat.png",
		Link:      "ipfs://bafy123",
		Hash:      "sha2-256:abcd",
		Ciphering: Ciphering{Algorithm: CipheringAlgorithm, Parameters: CipheringParameters{IV: "00ff", Key: "a.b.c.d.e"}},
	}})
	require.NoError(t, err)

	raw, err := Marshal(m)
	require.NoError(t, err)

	var wire struct {
		Body struct {
			Items []map[string]any `json:"items"`
		} `json:"body"`
	}
	require.NoError(t, json.Unmarshal(raw, &wire))
	require.Len(t, wire.Body.Items, 1)
	assert.Contains(t, wire.Body.Items[0], "@id")
	assert.Contains(t, wire.Body.Items[0], "attachment_id")

	back, err := Parse(raw)
	require.NoError(t, err)
	body, ok := back.Media()
	require.True(t, ok)
	att, ok := back.Attachment(body.Items[0].AttachmentID)
	require.True(t, ok)
	assert.Equal(t, "cat.png", att.Filename)
	assert.Equal(t, []string{"ipfs://bafy123"}, att.Data.Links)
	assert.Equal(t, "00ff", body.Items[0].Ciphering.Parameters.IV)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":        `{`,
		"missing id":      `{"type":"https://didcomm.org/basicmessage/2.0/message","body":{"content":"x"}}`,
		"unknown type":    `{"id":"1","type":"https://example.org/other","body":{}}`,
		"missing body":    `{"id":"1","type":"https://didcomm.org/basicmessage/2.0/message"}`,
		"wrong body type": `{"id":"1","type":"https://didcomm.org/basicmessage/2.0/message","body":{"content":5}}`,
		"empty keys":      `{"id":"1","type":"https://didcomm.org/key-sharing/1.0/send-keys","body":{"keys":[]}}`,
		"dangling media": `{"id":"1","type":"https://didcomm.org/media-sharing/1.0/share-media",
			"body":{"items":[{"@id":"i","attachment_id":"a"}]}}`,
		"bad cipher": `{"id":"1","type":"https://didcomm.org/media-sharing/1.0/share-media",
			"body":{"items":[{"@id":"i","attachment_id":"a","ciphering":{"algorithm":"DES","parameters":{"iv":"1","key":"k"}}}]},
			"attachments":[{"id":"a","data":{}}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.ErrorIs(t, err, common.ErrInvalidMessage)
		})
	}
}

func TestMarshal_NoBody(t *testing.T) {
	_, err := Marshal(&Message{ID: "1"})
	assert.ErrorIs(t, err, common.ErrInvalidMessage)
}
