package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rtc-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines persistence for messages and their ack-sets.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error)
	ListChatMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]models.Message, error)
	AddReceipt(ctx context.Context, messageID, userID uuid.UUID, kind string) (bool, error)
	AdvanceStatus(ctx context.Context, messageID uuid.UUID, status string) error
	UpdateText(ctx context.Context, messageID uuid.UUID, text string, at time.Time) error
	SoftDelete(ctx context.Context, messageID uuid.UUID, at time.Time) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a new message and returns the populated row.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Status == "" {
		msg.Status = models.MessageStatusSent
	}
	var stored models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (id, chat_id, sender_id, type, status, content, reply_to)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, chat_id, sender_id, type, status, content, reply_to, deleted, deleted_at, edited_at, created_at`,
		msg.ID, msg.ChatID, msg.SenderID, msg.Type, msg.Status, msg.Content, msg.ReplyTo).StructScan(&stored)
	return stored, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT id, chat_id, sender_id, type, status, content, reply_to, deleted, deleted_at, edited_at, created_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListChatMessages returns messages in send order, soft-deleted ones excluded.
func (r *MessageRepo) ListChatMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, chat_id, sender_id, type, status, content, reply_to, deleted, deleted_at, edited_at, created_at
        FROM messages WHERE chat_id=$1 AND deleted = FALSE
        ORDER BY created_at ASC LIMIT $2`, chatID, limit)
	return msgs, err
}

// AddReceipt appends a user to the delivered-to/read-by set. Returns false
// when the user was already present, making acknowledgement idempotent.
func (r *MessageRepo) AddReceipt(ctx context.Context, messageID, userID uuid.UUID, kind string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO message_receipts (message_id, user_id, kind) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		messageID, userID, kind)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AdvanceStatus moves the message status forward. Regressions are ignored so
// a late delivered ack never undoes a read.
func (r *MessageRepo) AdvanceStatus(ctx context.Context, messageID uuid.UUID, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status=$2 WHERE id=$1 AND
            CASE status WHEN 'sending' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 ELSE 3 END
          < CASE $2 WHEN 'sending' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 ELSE 3 END`,
		messageID, status)
	return err
}

// UpdateText replaces the text of a message and stamps edited_at.
func (r *MessageRepo) UpdateText(ctx context.Context, messageID uuid.UUID, text string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content = jsonb_set(content, '{text}', to_jsonb($2::text)), edited_at=$3 WHERE id=$1`,
		messageID, text, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// SoftDelete flips the deletion flag; content stays in storage but is
// excluded from future reads.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted = TRUE, deleted_at=$2 WHERE id=$1`, messageID, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
