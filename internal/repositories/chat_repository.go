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

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat and participant persistence.
type ChatRepository interface {
	CreateOrGetPrivateChat(ctx context.Context, userID, friendID uuid.UUID) (models.Chat, error)
	GetChat(ctx context.Context, chatID uuid.UUID) (models.Chat, error)
	IsActiveParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
	ActiveParticipants(ctx context.Context, chatID uuid.UUID) ([]models.Participant, error)
	ChatIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ListChats(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error)
	RecordLastMessage(ctx context.Context, chatID, messageID, senderID uuid.UUID, preview string, at time.Time) error
	IncrementUnread(ctx context.Context, chatID, exceptUserID uuid.UUID) error
	ResetUnread(ctx context.Context, chatID, userID uuid.UUID) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateOrGetPrivateChat returns the private chat between two users, creating
// it (with both participants active) when absent.
func (r *ChatRepo) CreateOrGetPrivateChat(ctx context.Context, userID, friendID uuid.UUID) (models.Chat, error) {
	if userID == friendID {
		return models.Chat{}, errors.New("cannot create chat with self")
	}

	var chat models.Chat
	query := `SELECT c.id, c.kind, c.created_at, c.last_message_id, c.last_message_sender, c.last_message_preview, c.last_message_at
        FROM chats c
        JOIN chat_participants p1 ON p1.chat_id = c.id AND p1.user_id = $1
        JOIN chat_participants p2 ON p2.chat_id = c.id AND p2.user_id = $2
        WHERE c.kind = $3`
	err := r.db.GetContext(ctx, &chat, query, userID, friendID, models.ChatKindPrivate)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer tx.Rollback()

	chatID := uuid.New()
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO chats (id, kind) VALUES ($1, $2) RETURNING id, kind, created_at, last_message_id, last_message_sender, last_message_preview, last_message_at`,
		chatID, models.ChatKindPrivate).StructScan(&chat); err != nil {
		return models.Chat{}, err
	}
	for _, participant := range []uuid.UUID{userID, friendID} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chatID, participant); err != nil {
			return models.Chat{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID uuid.UUID) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT id, kind, created_at, last_message_id, last_message_sender, last_message_preview, last_message_at FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// IsActiveParticipant checks whether a user is an active member of the chat.
func (r *ChatRepo) IsActiveParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2 AND active)`, chatID, userID)
	return exists, err
}

// ActiveParticipants returns the active participant rows for a chat.
func (r *ChatRepo) ActiveParticipants(ctx context.Context, chatID uuid.UUID) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.SelectContext(ctx, &participants,
		`SELECT chat_id, user_id, role, active, joined_at, unread_count FROM chat_participants WHERE chat_id=$1 AND active`, chatID)
	return participants, err
}

// ChatIDsForUser lists every chat where the user is an active participant.
// Used to rebuild room membership when a session connects.
func (r *ChatRepo) ChatIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids,
		`SELECT chat_id FROM chat_participants WHERE user_id=$1 AND active`, userID)
	return ids, err
}

// ListChats returns the chats visible to the user with summary state.
func (r *ChatRepo) ListChats(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	query := `SELECT c.id, c.kind, c.last_message_preview, c.last_message_at, p.unread_count, c.created_at
        FROM chats c
        JOIN chat_participants p ON p.chat_id = c.id
        WHERE p.user_id=$1 AND p.active
        ORDER BY COALESCE(c.last_message_at, c.created_at) DESC`
	var summaries []models.ChatSummary
	err := r.db.SelectContext(ctx, &summaries, query, userID)
	return summaries, err
}

// RecordLastMessage updates the denormalized last-message summary.
func (r *ChatRepo) RecordLastMessage(ctx context.Context, chatID, messageID, senderID uuid.UUID, preview string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET last_message_id=$2, last_message_sender=$3, last_message_preview=$4, last_message_at=$5 WHERE id=$1`,
		chatID, messageID, senderID, preview, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}

// IncrementUnread bumps the unread counter for every active participant
// except the sender.
func (r *ChatRepo) IncrementUnread(ctx context.Context, chatID, exceptUserID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_participants SET unread_count = unread_count + 1 WHERE chat_id=$1 AND user_id<>$2 AND active`,
		chatID, exceptUserID)
	return err
}

// ResetUnread zeroes the unread counter for the reading user only.
func (r *ChatRepo) ResetUnread(ctx context.Context, chatID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_participants SET unread_count = 0 WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	return err
}
