package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Client→server event names. The socket handler rejects anything outside this
// set before it reaches core logic.
const (
	ClientAuthenticate     = "authenticate"
	ClientSendMessage      = "send_message"
	ClientMessageDelivered = "message_delivered"
	ClientMessageRead      = "message_read"
	ClientEditMessage      = "edit_message"
	ClientDeleteMessage    = "delete_message"
	ClientTypingStart      = "typing_start"
	ClientTypingStop       = "typing_stop"
	ClientJoinRoom         = "join_room"
	ClientLeaveRoom        = "leave_room"
	ClientCallInitiate     = "call_initiate"
	ClientCallAnswer       = "call_answer"
	ClientCallReject       = "call_reject"
	ClientCallEnd          = "call_end"
	ClientCallSettings     = "call_settings"
	ClientSignal           = "signal"
)

// Server→client event names.
const (
	EventAuthOK           = "auth_ok"
	EventAuthError        = "auth_error"
	EventError            = "error"
	EventNewMessage       = "new_message"
	EventMessageAck       = "message_ack"
	EventMessageDelivered = "message_delivered"
	EventMessageRead      = "message_read"
	EventMessageEdited    = "message_edited"
	EventMessageDeleted   = "message_deleted"
	EventTyping           = "typing"
	EventUserOnline       = "user_online"
	EventUserOffline      = "user_offline"
	EventCallAck          = "call_ack"
	EventIncomingCall     = "incoming_call"
	EventCallRinging      = "call_ringing"
	EventCallAnswered     = "call_answered"
	EventCallRejected     = "call_rejected"
	EventCallEnded        = "call_ended"
	EventCallMissed       = "call_missed"
	EventCallSettings     = "call_settings"
	EventSignal           = "signal"
)

// ClientEvent is the wire envelope for client intents. Data is decoded into
// the per-type payload struct by the socket handler.
type ClientEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is the wire envelope for notifications and acks.
type ServerEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// AuthenticatePayload carries the bearer token and the claimed identity.
type AuthenticatePayload struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// SendMessagePayload is a message-send intent.
type SendMessagePayload struct {
	ChatID  string         `json:"chat_id"`
	Type    string         `json:"type"`
	Content MessageContent `json:"content"`
	ReplyTo string         `json:"reply_to,omitempty"`
}

// ReceiptPayload acknowledges delivery or read of a message.
type ReceiptPayload struct {
	MessageID string `json:"message_id"`
}

// EditMessagePayload replaces the text of an own message.
type EditMessagePayload struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// DeleteMessagePayload soft-deletes an own message.
type DeleteMessagePayload struct {
	MessageID string `json:"message_id"`
}

// RoomPayload joins/leaves a chat room or scopes a typing notification.
type RoomPayload struct {
	ChatID string `json:"chat_id"`
}

// CallInitiatePayload starts a call.
type CallInitiatePayload struct {
	ReceiverID string `json:"receiver_id"`
	CallType   string `json:"call_type"`
}

// CallRefPayload addresses an existing call.
type CallRefPayload struct {
	CallID string `json:"call_id"`
}

// CallSettingsPayload updates in-call settings; nil fields are untouched.
type CallSettingsPayload struct {
	CallID     string `json:"call_id"`
	AudioMuted *bool  `json:"audio_muted,omitempty"`
	VideoMuted *bool  `json:"video_muted,omitempty"`
	Recording  *bool  `json:"recording,omitempty"`
}

// SignalPayload relays an opaque WebRTC negotiation blob.
type SignalPayload struct {
	CallID string          `json:"call_id"`
	Signal json.RawMessage `json:"signal"`
}

// ErrorData is the body of error and auth_error events.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReceiptData notifies the sender of a delivered/read transition.
type ReceiptData struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	At        time.Time `json:"at"`
}

// TypingData is a typing broadcast.
type TypingData struct {
	ChatID uuid.UUID `json:"chat_id"`
	UserID uuid.UUID `json:"user_id"`
	Typing bool      `json:"typing"`
}

// PresenceData announces an online/offline transition.
type PresenceData struct {
	UserID   uuid.UUID `json:"user_id"`
	LastSeen time.Time `json:"last_seen"`
}

// MessageDeletedData announces a soft delete.
type MessageDeletedData struct {
	ChatID    uuid.UUID `json:"chat_id"`
	MessageID uuid.UUID `json:"message_id"`
}

// CallEventData mirrors the call lifecycle to both participants.
type CallEventData struct {
	CallID     uuid.UUID `json:"call_id"`
	CallerID   uuid.UUID `json:"caller_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Type       string    `json:"call_type"`
	Status     string    `json:"status"`
	LinkToken  string    `json:"link_token,omitempty"`
	Duration   int       `json:"duration_seconds,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	ByUserID   uuid.UUID `json:"by_user_id,omitempty"`
}

// CallSettingsData relays applied settings to the counterparty.
type CallSettingsData struct {
	CallID     uuid.UUID `json:"call_id"`
	AudioMuted bool      `json:"audio_muted"`
	VideoMuted bool      `json:"video_muted"`
	Recording  bool      `json:"recording"`
	ByUserID   uuid.UUID `json:"by_user_id"`
}

// SignalData is a relayed signaling blob with its origin.
type SignalData struct {
	CallID uuid.UUID       `json:"call_id"`
	FromID uuid.UUID       `json:"from_id"`
	Signal json.RawMessage `json:"signal"`
}
