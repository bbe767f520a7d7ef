package didcomm

import (
	"fmt"

	"github.com/dmitrijs2005/bucketkeeper/internal/common"
	"github.com/dmitrijs2005/bucketkeeper/internal/keys"
	"github.com/go-jose/go-jose/v3"
	"github.com/google/uuid"
)

// DirectBody is the body of a basic text message.
type DirectBody struct {
	Content string `json:"content"`
}

func (*DirectBody) Type() Type { return TypeDirect }

func (b *DirectBody) validate() error {
	return nil
}

// KeySharingBody carries bucket secret keys, oldest first. The last key is
// the current one.
type KeySharingBody struct {
	Keys []jose.JSONWebKey `json:"keys"`
}

func (*KeySharingBody) Type() Type { return TypeKeySharing }

func (b *KeySharingBody) validate() error {
	if len(b.Keys) == 0 {
		return fmt.Errorf("%w: key-sharing message without keys", common.ErrInvalidMessage)
	}
	for i := range b.Keys {
		if err := keys.ValidateSecret(&b.Keys[i]); err != nil {
			return fmt.Errorf("%w: key %d: %v", common.ErrInvalidMessage, i, err)
		}
	}
	return nil
}

// Current returns the newest key of the list.
func (b *KeySharingBody) Current() jose.JSONWebKey {
	return b.Keys[len(b.Keys)-1]
}

// CipheringAlgorithm is the only supported file cipher.
const CipheringAlgorithm = "AES-GCM"

// CipheringParameters hold the hex nonce and the compact envelope wrapping
// the one-time content key.
type CipheringParameters struct {
	IV  string `json:"iv"`
	Key string `json:"key"`
}

// Ciphering describes how a referenced file is encrypted.
type Ciphering struct {
	Algorithm  string              `json:"algorithm"`
	Parameters CipheringParameters `json:"parameters"`
}

// MediaItem points at an attachment of the same message.
type MediaItem struct {
	ID           string     `json:"@id"`
	AttachmentID string     `json:"attachment_id"`
	Ciphering    *Ciphering `json:"ciphering,omitempty"`
}

// MediaBody is the body of a media-sharing message.
type MediaBody struct {
	Items []MediaItem `json:"items"`
}

func (*MediaBody) Type() Type { return TypeMedia }

func (b *MediaBody) validate() error {
	if len(b.Items) == 0 {
		return fmt.Errorf("%w: media message without items", common.ErrInvalidMessage)
	}
	for _, item := range b.Items {
		if item.ID == "" || item.AttachmentID == "" {
			return fmt.Errorf("%w: media item without id", common.ErrInvalidMessage)
		}
		if item.Ciphering == nil {
			continue
		}
		if item.Ciphering.Algorithm != CipheringAlgorithm {
			return fmt.Errorf("%w: unsupported cipher %q", common.ErrInvalidMessage, item.Ciphering.Algorithm)
		}
		if item.Ciphering.Parameters.IV == "" || item.Ciphering.Parameters.Key == "" {
			return fmt.Errorf("%w: incomplete ciphering parameters", common.ErrInvalidMessage)
		}
	}
	return nil
}

// AttachmentData locates the attachment payload.
type AttachmentData struct {
	Links []string `json:"links,omitempty"`
	Hash  string   `json:"hash,omitempty"`
}

// Attachment describes a file shared alongside a message.
type Attachment struct {
	ID          string         `json:"id"`
	MediaType   string         `json:"media_type,omitempty"`
	Filename    string         `json:"filename,omitempty"`
	Description string         `json:"description,omitempty"`
	Data        AttachmentData `json:"data"`
}

// NewDirect builds a basic text message.
func NewDirect(h Header, content string) (*Message, error) {
	return newMessage(h, &DirectBody{Content: content}, nil)
}

// NewKeySharing builds a key-sharing message. keyList is ordered oldest
// first; its last element is the current key.
func NewKeySharing(h Header, keyList []jose.JSONWebKey) (*Message, error) {
	return newMessage(h, &KeySharingBody{Keys: keyList}, nil)
}

// ReferencedMedia describes one encrypted file stored out of band.
type ReferencedMedia struct {
	MediaType   string
	Filename    string
	Description string
	Link        string
	Hash        string
	Ciphering   Ciphering
}

// NewMedia builds a media-sharing message with one item and one attachment
// per file.
func NewMedia(h Header, files []ReferencedMedia) (*Message, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no media items", common.ErrInvalidMessage)
	}

	items := make([]MediaItem, 0, len(files))
	attachments := make([]Attachment, 0, len(files))
	for _, f := range files {
		attachmentID := uuid.NewString()
		ciphering := f.Ciphering
		items = append(items, MediaItem{
			ID:           uuid.NewString(),
			AttachmentID: attachmentID,
			Ciphering:    &ciphering,
		})
		attachments = append(attachments, Attachment{
			ID:          attachmentID,
			MediaType:   f.MediaType,
			Filename:    f.Filename,
			Description: f.Description,
			Data:        AttachmentData{Links: []string{f.Link}, Hash: f.Hash},
		})
	}
	return newMessage(h, &MediaBody{Items: items}, attachments)
}
