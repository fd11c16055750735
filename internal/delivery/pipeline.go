package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"rtc-service/internal/models"
	"rtc-service/internal/observability"
	"rtc-service/internal/queue"
	"rtc-service/internal/repositories"
)

var (
	ErrNotAParticipant     = errors.New("not a participant")
	ErrInvalidContent      = errors.New("invalid content")
	ErrNotYourMessage      = errors.New("not your message")
	ErrEditWindowExpired   = errors.New("edit window expired")
	ErrDeleteWindowExpired = errors.New("delete window expired")
)

const (
	maxTextLength = 4000

	// Edit and delete are time-boxed from message creation.
	EditWindow   = 15 * time.Minute
	DeleteWindow = time.Hour
)

// Broadcaster is the slice of the hub the pipeline needs for fan-out.
type Broadcaster interface {
	BroadcastToRoom(chatID uuid.UUID, event models.ServerEvent, exceptSessionID string)
	SendToUser(userID uuid.UUID, event models.ServerEvent) int
}

// Pipeline validates, persists and fans out messages, and tracks the
// delivered/read ack-sets.
type Pipeline struct {
	chats        repositories.ChatRepository
	messages     repositories.MessageRepository
	broadcaster  Broadcaster
	queue        queue.Enqueuer
	editWindow   time.Duration
	deleteWindow time.Duration
}

// NewPipeline builds a Pipeline with the default edit/delete windows.
func NewPipeline(chats repositories.ChatRepository, messages repositories.MessageRepository, broadcaster Broadcaster, q queue.Enqueuer) *Pipeline {
	return &Pipeline{
		chats:        chats,
		messages:     messages,
		broadcaster:  broadcaster,
		queue:        q,
		editWindow:   EditWindow,
		deleteWindow: DeleteWindow,
	}
}

// SendMessage runs the full pipeline: participant check, content validation,
// persistence, chat summary update, room fan-out and the durable fallback for
// offline recipients. The returned message is the synchronous ack.
func (p *Pipeline) SendMessage(ctx context.Context, senderID uuid.UUID, senderSessionID string, chatID uuid.UUID, msgType string, content models.MessageContent, replyTo *uuid.UUID) (models.Message, error) {
	member, err := p.chats.IsActiveParticipant(ctx, chatID, senderID)
	if err != nil {
		return models.Message{}, fmt.Errorf("verify membership: %w", err)
	}
	if !member {
		return models.Message{}, ErrNotAParticipant
	}

	if err := validateContent(msgType, &content); err != nil {
		return models.Message{}, err
	}

	msg, err := p.messages.CreateMessage(ctx, models.Message{
		ChatID:   chatID,
		SenderID: senderID,
		Type:     msgType,
		Status:   models.MessageStatusSent,
		Content:  content,
		ReplyTo:  replyTo,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}

	// Summary and counter updates are best-effort once the message is stored.
	if err := p.chats.RecordLastMessage(ctx, chatID, msg.ID, senderID, msg.Preview(), msg.CreatedAt); err != nil {
		log.Printf("record last message failed chat=%s: %v", chatID, err)
	}
	if err := p.chats.IncrementUnread(ctx, chatID, senderID); err != nil {
		log.Printf("increment unread failed chat=%s: %v", chatID, err)
	}

	p.broadcaster.BroadcastToRoom(chatID, models.ServerEvent{Type: models.EventNewMessage, Data: msg}, senderSessionID)

	// Recipients with no live session catch up through the durable queue;
	// the job id is the message id so re-enqueues are idempotent.
	if err := p.queue.Enqueue(ctx, "message-delivery:"+msg.ID.String(), "delivery.message", msg); err != nil {
		log.Printf("durable delivery enqueue failed message=%s: %v", msg.ID, err)
	}

	observability.IncMessagesSent()
	return msg, nil
}

// MarkDelivered records userID in the message's delivered-to set. Idempotent;
// only the first transition advances status and notifies the sender.
func (p *Pipeline) MarkDelivered(ctx context.Context, userID, messageID uuid.UUID) error {
	msg, err := p.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == userID {
		return nil
	}

	inserted, err := p.messages.AddReceipt(ctx, messageID, userID, models.ReceiptDelivered)
	if err != nil {
		return fmt.Errorf("add delivered receipt: %w", err)
	}
	if !inserted {
		return nil
	}

	if models.StatusRank(msg.Status) < models.StatusRank(models.MessageStatusDelivered) {
		if err := p.messages.AdvanceStatus(ctx, messageID, models.MessageStatusDelivered); err != nil {
			return fmt.Errorf("advance status: %w", err)
		}
	}
	p.broadcaster.SendToUser(msg.SenderID, models.ServerEvent{
		Type: models.EventMessageDelivered,
		Data: models.ReceiptData{MessageID: messageID, UserID: userID, At: time.Now()},
	})
	return nil
}

// MarkRead records userID in the read-by set. Reading implies delivered, so a
// read without a prior delivered ack records both.
func (p *Pipeline) MarkRead(ctx context.Context, userID, messageID uuid.UUID) error {
	msg, err := p.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == userID {
		return nil
	}

	if _, err := p.messages.AddReceipt(ctx, messageID, userID, models.ReceiptDelivered); err != nil {
		return fmt.Errorf("add delivered receipt: %w", err)
	}
	inserted, err := p.messages.AddReceipt(ctx, messageID, userID, models.ReceiptRead)
	if err != nil {
		return fmt.Errorf("add read receipt: %w", err)
	}
	if !inserted {
		return nil
	}

	if models.StatusRank(msg.Status) < models.StatusRank(models.MessageStatusRead) {
		if err := p.messages.AdvanceStatus(ctx, messageID, models.MessageStatusRead); err != nil {
			return fmt.Errorf("advance status: %w", err)
		}
	}
	if err := p.chats.ResetUnread(ctx, msg.ChatID, userID); err != nil {
		log.Printf("reset unread failed chat=%s user=%s: %v", msg.ChatID, userID, err)
	}
	p.broadcaster.SendToUser(msg.SenderID, models.ServerEvent{
		Type: models.EventMessageRead,
		Data: models.ReceiptData{MessageID: messageID, UserID: userID, At: time.Now()},
	})
	return nil
}

// EditMessage replaces the text of an own text message within the edit window
// and refreshes the chat preview when the edited message is the latest.
func (p *Pipeline) EditMessage(ctx context.Context, userID, messageID uuid.UUID, text string) (models.Message, error) {
	msg, err := p.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != userID {
		return models.Message{}, ErrNotYourMessage
	}
	if msg.Type != models.MessageTypeText {
		return models.Message{}, ErrInvalidContent
	}
	if time.Since(msg.CreatedAt) > p.editWindow {
		return models.Message{}, ErrEditWindowExpired
	}
	text = strings.TrimSpace(text)
	if text == "" || len([]rune(text)) > maxTextLength {
		return models.Message{}, ErrInvalidContent
	}

	now := time.Now()
	if err := p.messages.UpdateText(ctx, messageID, text, now); err != nil {
		return models.Message{}, fmt.Errorf("update message: %w", err)
	}
	msg.Content.Text = text
	msg.EditedAt = &now

	chat, err := p.chats.GetChat(ctx, msg.ChatID)
	if err == nil && chat.LastMessageID != nil && *chat.LastMessageID == messageID {
		if err := p.chats.RecordLastMessage(ctx, msg.ChatID, msg.ID, msg.SenderID, msg.Preview(), msg.CreatedAt); err != nil {
			log.Printf("refresh last message failed chat=%s: %v", msg.ChatID, err)
		}
	}

	p.broadcaster.BroadcastToRoom(msg.ChatID, models.ServerEvent{Type: models.EventMessageEdited, Data: msg}, "")
	return msg, nil
}

// SoftDeleteMessage flips the deletion flag of an own message within the
// delete window. Content stays in storage but leaves all future reads.
func (p *Pipeline) SoftDeleteMessage(ctx context.Context, userID, messageID uuid.UUID) error {
	msg, err := p.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return ErrNotYourMessage
	}
	if time.Since(msg.CreatedAt) > p.deleteWindow {
		return ErrDeleteWindowExpired
	}

	if err := p.messages.SoftDelete(ctx, messageID, time.Now()); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	p.broadcaster.BroadcastToRoom(msg.ChatID, models.ServerEvent{
		Type: models.EventMessageDeleted,
		Data: models.MessageDeletedData{ChatID: msg.ChatID, MessageID: messageID},
	}, "")
	return nil
}

func validateContent(msgType string, content *models.MessageContent) error {
	if !models.ValidMessageType(msgType) {
		return ErrInvalidContent
	}
	switch msgType {
	case models.MessageTypeText:
		content.Text = strings.TrimSpace(content.Text)
		if content.Text == "" || len([]rune(content.Text)) > maxTextLength {
			return ErrInvalidContent
		}
	case models.MessageTypeLocation:
		if content.Location == nil || (content.Location.Latitude == 0 && content.Location.Longitude == 0) {
			return ErrInvalidContent
		}
	case models.MessageTypeContact:
		if content.Contact == nil || content.Contact.Name == "" || content.Contact.Phone == "" {
			return ErrInvalidContent
		}
	default:
		if content.Media == nil || content.Media.URL == "" {
			return ErrInvalidContent
		}
	}
	return nil
}
