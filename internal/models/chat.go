package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ChatKindPrivate = "private"
	ChatKindGroup   = "group"
)

// Chat owns the participant list and a denormalized last-message summary.
type Chat struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	Kind               string     `db:"kind" json:"kind"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	LastMessageID      *uuid.UUID `db:"last_message_id" json:"last_message_id,omitempty"`
	LastMessageSender  *uuid.UUID `db:"last_message_sender" json:"last_message_sender,omitempty"`
	LastMessagePreview string     `db:"last_message_preview" json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
}

// Participant is one row of a chat's participant list.
type Participant struct {
	ChatID      uuid.UUID `db:"chat_id" json:"chat_id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Role        string    `db:"role" json:"role"`
	Active      bool      `db:"active" json:"active"`
	JoinedAt    time.Time `db:"joined_at" json:"joined_at"`
	UnreadCount int       `db:"unread_count" json:"unread_count"`
}

// ChatSummary is the API-friendly view of a chat for one user.
type ChatSummary struct {
	ChatID             uuid.UUID  `db:"id" json:"chat_id"`
	Kind               string     `db:"kind" json:"kind"`
	LastMessagePreview string     `db:"last_message_preview" json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	UnreadCount        int        `db:"unread_count" json:"unread_count"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}
