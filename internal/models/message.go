package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message type tags. The content payload is validated against the tag before
// the message reaches the pipeline.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeAudio    = "audio"
	MessageTypeDocument = "document"
	MessageTypeLocation = "location"
	MessageTypeContact  = "contact"
	MessageTypeSticker  = "sticker"
)

// Message lifecycle statuses, ordered. Status only ever advances.
const (
	MessageStatusSending   = "sending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
)

var statusRank = map[string]int{
	MessageStatusSending:   0,
	MessageStatusSent:      1,
	MessageStatusDelivered: 2,
	MessageStatusRead:      3,
}

// StatusRank returns the ordering rank of a message status, -1 if unknown.
func StatusRank(status string) int {
	if rank, ok := statusRank[status]; ok {
		return rank
	}
	return -1
}

// ValidMessageType reports whether t is one of the closed type tags.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeAudio,
		MessageTypeDocument, MessageTypeLocation, MessageTypeContact, MessageTypeSticker:
		return true
	}
	return false
}

// MediaDescriptor points at an uploaded media object.
type MediaDescriptor struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Name     string `json:"name,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// Location is a shared geographic point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label,omitempty"`
}

// ContactCard is a shared contact.
type ContactCard struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// MessageContent is the type-tagged payload of a message, stored as jsonb.
type MessageContent struct {
	Text     string           `json:"text,omitempty"`
	Media    *MediaDescriptor `json:"media,omitempty"`
	Location *Location        `json:"location,omitempty"`
	Contact  *ContactCard     `json:"contact,omitempty"`
}

// Value implements driver.Valuer for jsonb storage.
func (c MessageContent) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for jsonb storage.
func (c *MessageContent) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = MessageContent{}
		return nil
	}
	return errors.New("unsupported message content source")
}

// Message is a persisted chat message with its ack-driven status.
type Message struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	ChatID    uuid.UUID      `db:"chat_id" json:"chat_id"`
	SenderID  uuid.UUID      `db:"sender_id" json:"sender_id"`
	Type      string         `db:"type" json:"type"`
	Status    string         `db:"status" json:"status"`
	Content   MessageContent `db:"content" json:"content"`
	ReplyTo   *uuid.UUID     `db:"reply_to" json:"reply_to,omitempty"`
	Deleted   bool           `db:"deleted" json:"deleted"`
	DeletedAt *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`
	EditedAt  *time.Time     `db:"edited_at" json:"edited_at,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Receipt kinds for the delivered-to / read-by ack-sets.
const (
	ReceiptDelivered = "delivered"
	ReceiptRead      = "read"
)

// Receipt is one entry of a message's ack-set.
type Receipt struct {
	MessageID uuid.UUID `db:"message_id" json:"message_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Kind      string    `db:"kind" json:"kind"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Preview renders the ≤100 char last-message summary string.
func (m Message) Preview() string {
	var text string
	switch m.Type {
	case MessageTypeText:
		text = m.Content.Text
	case MessageTypeLocation:
		text = "[location]"
	case MessageTypeContact:
		text = "[contact]"
	default:
		text = "[" + m.Type + "]"
	}
	runes := []rune(text)
	if len(runes) > 100 {
		return string(runes[:100])
	}
	return text
}
