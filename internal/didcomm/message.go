// Package didcomm is the canonical message codec. It builds the plaintext
// DIDComm messages exchanged through buckets and parses them back into
// typed variants, validating the body at the point where bytes first
// become structured data.
package didcomm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/google/uuid"
)

// Type is the DIDComm message type URI.
type Type string

const (
	TypeDirect     Type = "https://didcomm.org/basicmessage/2.0/message"
	TypeKeySharing Type = "https://didcomm.org/key-sharing/1.0/send-keys"
	TypeMedia      Type = "https://didcomm.org/media-sharing/1.0/share-media"
)

// Body is implemented by every message variant.
type Body interface {
	Type() Type
	validate() error
}

// Message is a plaintext DIDComm message.
type Message struct {
	ID          string
	From        string
	To          []string
	CreatedTime int64
	ExpiresTime int64
	Body        Body
	Attachments []Attachment
}

// Type returns the message type of the body, or "" for an empty message.
func (m *Message) Type() Type {
	if m.Body == nil {
		return ""
	}
	return m.Body.Type()
}

// Direct returns the body of a basic message.
func (m *Message) Direct() (*DirectBody, bool) {
	b, ok := m.Body.(*DirectBody)
	return b, ok
}

// KeySharing returns the body of a key-sharing message.
func (m *Message) KeySharing() (*KeySharingBody, bool) {
	b, ok := m.Body.(*KeySharingBody)
	return b, ok
}

// Media returns the body of a media-sharing message.
func (m *Message) Media() (*MediaBody, bool) {
	b, ok := m.Body.(*MediaBody)
	return b, ok
}

// Attachment looks an attachment up by id.
func (m *Message) Attachment(id string) (*Attachment, bool) {
	for i := range m.Attachments {
		if m.Attachments[i].ID == id {
			return &m.Attachments[i], true
		}
	}
	return nil, false
}

// Header holds the routing fields shared by every builder.
type Header struct {
	From    string
	To      []string
	Expires time.Duration
}

func newMessage(h Header, body Body, attachments []Attachment) (*Message, error) {
	if err := body.validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	m := &Message{
		ID:          uuid.NewString(),
		From:        h.From,
		To:          h.To,
		CreatedTime: now.Unix(),
		Body:        body,
		Attachments: attachments,
	}
	if h.Expires > 0 {
		m.ExpiresTime = now.Add(h.Expires).Unix()
	}
	return m, nil
}

type wireMessage struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	From        string          `json:"from,omitempty"`
	To          []string        `json:"to,omitempty"`
	CreatedTime int64           `json:"created_time,omitempty"`
	ExpiresTime int64           `json:"expires_time,omitempty"`
	Body        json.RawMessage `json:"body"`
	Attachments []Attachment    `json:"attachments,omitempty"`
}

// Marshal produces the canonical JSON encoding of m.
func Marshal(m *Message) ([]byte, error) {
	if m.Body == nil {
		return nil, fmt.Errorf("%w: missing body", common.ErrInvalidMessage)
	}
	body, err := json.Marshal(m.Body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	return json.Marshal(wireMessage{
		ID:          m.ID,
		Type:        m.Body.Type(),
		From:        m.From,
		To:          m.To,
		CreatedTime: m.CreatedTime,
		ExpiresTime: m.ExpiresTime,
		Body:        body,
		Attachments: m.Attachments,
	})
}

// Parse decodes a plaintext message and its typed body. Unknown types and
// bodies that do not satisfy their variant schema fail with
// common.ErrInvalidMessage.
func Parse(data []byte) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidMessage, err)
	}
	if w.ID == "" {
		return nil, fmt.Errorf("%w: missing id", common.ErrInvalidMessage)
	}

	var body Body
	switch w.Type {
	case TypeDirect:
		body = &DirectBody{}
	case TypeKeySharing:
		body = &KeySharingBody{}
	case TypeMedia:
		body = &MediaBody{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", common.ErrInvalidMessage, w.Type)
	}

	if len(w.Body) == 0 {
		return nil, fmt.Errorf("%w: missing body", common.ErrInvalidMessage)
	}
	if err := json.Unmarshal(w.Body, body); err != nil {
		return nil, fmt.Errorf("%w: body: %v", common.ErrInvalidMessage, err)
	}
	if err := body.validate(); err != nil {
		return nil, err
	}

	m := &Message{
		ID:          w.ID,
		From:        w.From,
		To:          w.To,
		CreatedTime: w.CreatedTime,
		ExpiresTime: w.ExpiresTime,
		Body:        body,
		Attachments: w.Attachments,
	}
	if media, ok := body.(*MediaBody); ok {
		for _, item := range media.Items {
			if _, ok := m.Attachment(item.AttachmentID); !ok {
				return nil, fmt.Errorf("%w: media item %s references missing attachment %s",
					common.ErrInvalidMessage, item.ID, item.AttachmentID)
			}
		}
	}
	return m, nil
}
