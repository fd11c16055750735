package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CallTypeVoice = "voice"
	CallTypeVideo = "video"
)

// Call statuses. initiating→ringing→answered→ended is the main line;
// rejected and missed are terminal alternatives out of ringing.
const (
	CallStatusInitiating = "initiating"
	CallStatusRinging    = "ringing"
	CallStatusAnswered   = "answered"
	CallStatusEnded      = "ended"
	CallStatusRejected   = "rejected"
	CallStatusMissed     = "missed"
)

// TerminalCallStatus reports whether a call status is final.
func TerminalCallStatus(status string) bool {
	switch status {
	case CallStatusEnded, CallStatusRejected, CallStatusMissed:
		return true
	}
	return false
}

// Call is a persisted voice/video call record. Short-lived in practice but
// retained as history once terminal.
type Call struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	CallerID        uuid.UUID  `db:"caller_id" json:"caller_id"`
	ReceiverID      uuid.UUID  `db:"receiver_id" json:"receiver_id"`
	Type            string     `db:"type" json:"type"`
	Status          string     `db:"status" json:"status"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	AnsweredAt      *time.Time `db:"answered_at" json:"answered_at,omitempty"`
	EndedAt         *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	DurationSeconds int        `db:"duration_seconds" json:"duration_seconds"`
	AudioMuted      bool       `db:"audio_muted" json:"audio_muted"`
	VideoMuted      bool       `db:"video_muted" json:"video_muted"`
	Recording       bool       `db:"recording" json:"recording"`
	LinkToken       string     `db:"link_token" json:"link_token"`
	Active          bool       `db:"active" json:"active"`
}

// Other returns the counterparty of userID, and whether userID is a participant.
func (c Call) Other(userID uuid.UUID) (uuid.UUID, bool) {
	switch userID {
	case c.CallerID:
		return c.ReceiverID, true
	case c.ReceiverID:
		return c.CallerID, true
	}
	return uuid.Nil, false
}
