package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rtc-service/internal/mocks"
	"rtc-service/internal/models"
)

// broadcastRecorder captures fan-out without a live hub.
type broadcastRecorder struct {
	room []models.ServerEvent
	user []models.ServerEvent
}

func (b *broadcastRecorder) BroadcastToRoom(chatID uuid.UUID, event models.ServerEvent, exceptSessionID string) {
	b.room = append(b.room, event)
}

func (b *broadcastRecorder) SendToUser(userID uuid.UUID, event models.ServerEvent) int {
	b.user = append(b.user, event)
	return 1
}

func textContent(text string) models.MessageContent {
	return models.MessageContent{Text: text}
}

func newTestPipeline() (*Pipeline, *mocks.ChatRepositoryMock, *mocks.MessageRepositoryMock, *mocks.EnqueuerMock, *broadcastRecorder) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	enqueuer := new(mocks.EnqueuerMock)
	recorder := &broadcastRecorder{}
	return NewPipeline(chats, messages, recorder, enqueuer), chats, messages, enqueuer, recorder
}

func TestSendMessageSuccess(t *testing.T) {
	pipeline, chats, messages, enqueuer, recorder := newTestPipeline()

	chatID := uuid.New()
	senderID := uuid.New()
	stored := models.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		SenderID:  senderID,
		Type:      models.MessageTypeText,
		Status:    models.MessageStatusSent,
		Content:   textContent("hello"),
		CreatedAt: time.Now(),
	}

	chats.On("IsActiveParticipant", mock.Anything, chatID, senderID).Return(true, nil).Once()
	messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.ChatID == chatID && m.SenderID == senderID && m.Status == models.MessageStatusSent
	})).Return(stored, nil).Once()
	chats.On("RecordLastMessage", mock.Anything, chatID, stored.ID, senderID, "hello", stored.CreatedAt).Return(nil).Once()
	chats.On("IncrementUnread", mock.Anything, chatID, senderID).Return(nil).Once()
	enqueuer.On("Enqueue", mock.Anything, "message-delivery:"+stored.ID.String(), "delivery.message", stored).Return(nil).Once()

	msg, err := pipeline.SendMessage(context.Background(), senderID, "sess-1", chatID, models.MessageTypeText, textContent("hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, msg.ID)

	require.Len(t, recorder.room, 1)
	assert.Equal(t, models.EventNewMessage, recorder.room[0].Type)

	chats.AssertExpectations(t)
	messages.AssertExpectations(t)
	enqueuer.AssertExpectations(t)
}

func TestSendMessageNotAParticipant(t *testing.T) {
	pipeline, chats, messages, _, recorder := newTestPipeline()

	chatID := uuid.New()
	senderID := uuid.New()
	chats.On("IsActiveParticipant", mock.Anything, chatID, senderID).Return(false, nil).Once()

	_, err := pipeline.SendMessage(context.Background(), senderID, "", chatID, models.MessageTypeText, textContent("hi"), nil)
	assert.ErrorIs(t, err, ErrNotAParticipant)
	assert.Empty(t, recorder.room)

	chats.AssertExpectations(t)
	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestSendMessageInvalidContent(t *testing.T) {
	pipeline, chats, _, _, _ := newTestPipeline()

	chatID := uuid.New()
	senderID := uuid.New()
	chats.On("IsActiveParticipant", mock.Anything, chatID, senderID).Return(true, nil)

	cases := []struct {
		name    string
		msgType string
		content models.MessageContent
	}{
		{"unknown type", "poke", textContent("hi")},
		{"empty text", models.MessageTypeText, textContent("   ")},
		{"media without url", models.MessageTypeImage, models.MessageContent{Media: &models.MediaDescriptor{}}},
		{"location missing", models.MessageTypeLocation, models.MessageContent{}},
		{"location without coordinates", models.MessageTypeLocation, models.MessageContent{Location: &models.Location{}}},
		{"contact without phone", models.MessageTypeContact, models.MessageContent{Contact: &models.ContactCard{Name: "bob"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := pipeline.SendMessage(context.Background(), senderID, "", chatID, tc.msgType, tc.content, nil)
			assert.ErrorIs(t, err, ErrInvalidContent)
		})
	}
}

func TestValidateLocationWithCoordinates(t *testing.T) {
	content := models.MessageContent{Location: &models.Location{Latitude: 59.3293, Longitude: 18.0686}}
	require.NoError(t, validateContent(models.MessageTypeLocation, &content))
}

func TestMarkDeliveredFirstReceipt(t *testing.T) {
	pipeline, _, messages, _, recorder := newTestPipeline()

	senderID := uuid.New()
	readerID := uuid.New()
	messageID := uuid.New()
	msg := models.Message{ID: messageID, ChatID: uuid.New(), SenderID: senderID}

	messages.On("GetMessage", mock.Anything, messageID).Return(msg, nil).Once()
	messages.On("AddReceipt", mock.Anything, messageID, readerID, models.ReceiptDelivered).Return(true, nil).Once()
	messages.On("AdvanceStatus", mock.Anything, messageID, models.MessageStatusDelivered).Return(nil).Once()

	require.NoError(t, pipeline.MarkDelivered(context.Background(), readerID, messageID))

	require.Len(t, recorder.user, 1)
	assert.Equal(t, models.EventMessageDelivered, recorder.user[0].Type)
	messages.AssertExpectations(t)
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	pipeline, _, messages, _, recorder := newTestPipeline()

	readerID := uuid.New()
	messageID := uuid.New()
	msg := models.Message{ID: messageID, SenderID: uuid.New()}

	messages.On("GetMessage", mock.Anything, messageID).Return(msg, nil).Once()
	messages.On("AddReceipt", mock.Anything, messageID, readerID, models.ReceiptDelivered).Return(false, nil).Once()

	require.NoError(t, pipeline.MarkDelivered(context.Background(), readerID, messageID))

	assert.Empty(t, recorder.user)
	messages.AssertNotCalled(t, "AdvanceStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkDeliveredAtHigherStatusSkipsAdvance(t *testing.T) {
	pipeline, _, messages, _, recorder := newTestPipeline()

	readerID := uuid.New()
	messageID := uuid.New()
	msg := models.Message{ID: messageID, SenderID: uuid.New(), Status: models.MessageStatusRead}

	messages.On("GetMessage", mock.Anything, messageID).Return(msg, nil).Once()
	messages.On("AddReceipt", mock.Anything, messageID, readerID, models.ReceiptDelivered).Return(true, nil).Once()

	require.NoError(t, pipeline.MarkDelivered(context.Background(), readerID, messageID))

	// status never moves backwards, but the sender still learns of the receipt
	messages.AssertNotCalled(t, "AdvanceStatus", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, recorder.user, 1)
	assert.Equal(t, models.EventMessageDelivered, recorder.user[0].Type)
}

func TestMarkDeliveredOwnMessageNoop(t *testing.T) {
	pipeline, _, messages, _, _ := newTestPipeline()

	senderID := uuid.New()
	messageID := uuid.New()
	messages.On("GetMessage", mock.Anything, messageID).Return(models.Message{ID: messageID, SenderID: senderID}, nil).Once()

	require.NoError(t, pipeline.MarkDelivered(context.Background(), senderID, messageID))
	messages.AssertNotCalled(t, "AddReceipt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkReadImpliesDelivered(t *testing.T) {
	pipeline, chats, messages, _, recorder := newTestPipeline()

	senderID := uuid.New()
	readerID := uuid.New()
	messageID := uuid.New()
	chatID := uuid.New()
	msg := models.Message{ID: messageID, ChatID: chatID, SenderID: senderID}

	messages.On("GetMessage", mock.Anything, messageID).Return(msg, nil).Once()
	messages.On("AddReceipt", mock.Anything, messageID, readerID, models.ReceiptDelivered).Return(true, nil).Once()
	messages.On("AddReceipt", mock.Anything, messageID, readerID, models.ReceiptRead).Return(true, nil).Once()
	messages.On("AdvanceStatus", mock.Anything, messageID, models.MessageStatusRead).Return(nil).Once()
	chats.On("ResetUnread", mock.Anything, chatID, readerID).Return(nil).Once()

	require.NoError(t, pipeline.MarkRead(context.Background(), readerID, messageID))

	require.Len(t, recorder.user, 1)
	assert.Equal(t, models.EventMessageRead, recorder.user[0].Type)
	messages.AssertExpectations(t)
	chats.AssertExpectations(t)
}

func TestEditMessageSuccess(t *testing.T) {
	pipeline, chats, messages, _, recorder := newTestPipeline()

	senderID := uuid.New()
	messageID := uuid.New()
	chatID := uuid.New()
	msg := models.Message{
		ID:        messageID,
		ChatID:    chatID,
		SenderID:  senderID,
		Type:      models.MessageTypeText,
		Content:   textContent("old"),
		CreatedAt: time.Now().Add(-time.Minute),
	}

	messages.On("GetMessage", mock.Anything, messageID).Return(msg, nil).Once()
	messages.On("UpdateText", mock.Anything, messageID, "new text", mock.Anything).Return(nil).Once()
	chats.On("GetChat", mock.Anything, chatID).Return(models.Chat{ID: chatID, LastMessageID: &messageID}, nil).Once()
	chats.On("RecordLastMessage", mock.Anything, chatID, messageID, senderID, "new text", msg.CreatedAt).Return(nil).Once()

	edited, err := pipeline.EditMessage(context.Background(), senderID, messageID, "  new text  ")
	require.NoError(t, err)
	assert.Equal(t, "new text", edited.Content.Text)
	require.NotNil(t, edited.EditedAt)

	require.Len(t, recorder.room, 1)
	assert.Equal(t, models.EventMessageEdited, recorder.room[0].Type)
	messages.AssertExpectations(t)
	chats.AssertExpectations(t)
}

func TestEditMessageWindowExpired(t *testing.T) {
	pipeline, _, messages, _, _ := newTestPipeline()

	senderID := uuid.New()
	messageID := uuid.New()
	msg := models.Message{
		ID:        messageID,
		SenderID:  senderID,
		Type:      models.MessageTypeText,
		CreatedAt: time.Now().Add(-16 * time.Minute),
	}
	messages.On("GetMessage", mock.Anything, messageID).Return(msg, nil).Once()

	_, err := pipeline.EditMessage(context.Background(), senderID, messageID, "too late")
	assert.ErrorIs(t, err, ErrEditWindowExpired)
	messages.AssertNotCalled(t, "UpdateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessageNotYours(t *testing.T) {
	pipeline, _, messages, _, _ := newTestPipeline()

	messageID := uuid.New()
	msg := models.Message{ID: messageID, SenderID: uuid.New(), Type: models.MessageTypeText, CreatedAt: time.Now()}
	messages.On("GetMessage", mock.Anything, messageID).Return(msg, nil).Once()

	_, err := pipeline.EditMessage(context.Background(), uuid.New(), messageID, "nope")
	assert.ErrorIs(t, err, ErrNotYourMessage)
}

func TestEditMessageNonText(t *testing.T) {
	pipeline, _, messages, _, _ := newTestPipeline()

	senderID := uuid.New()
	messageID := uuid.New()
	msg := models.Message{ID: messageID, SenderID: senderID, Type: models.MessageTypeImage, CreatedAt: time.Now()}
	messages.On("GetMessage", mock.Anything, messageID).Return(msg, nil).Once()

	_, err := pipeline.EditMessage(context.Background(), senderID, messageID, "caption")
	assert.ErrorIs(t, err, ErrInvalidContent)
}

func TestSoftDeleteMessageSuccess(t *testing.T) {
	pipeline, _, messages, _, recorder := newTestPipeline()

	senderID := uuid.New()
	messageID := uuid.New()
	chatID := uuid.New()
	msg := models.Message{ID: messageID, ChatID: chatID, SenderID: senderID, CreatedAt: time.Now().Add(-30 * time.Minute)}

	messages.On("GetMessage", mock.Anything, messageID).Return(msg, nil).Once()
	messages.On("SoftDelete", mock.Anything, messageID, mock.Anything).Return(nil).Once()

	require.NoError(t, pipeline.SoftDeleteMessage(context.Background(), senderID, messageID))

	require.Len(t, recorder.room, 1)
	assert.Equal(t, models.EventMessageDeleted, recorder.room[0].Type)
	messages.AssertExpectations(t)
}

func TestSoftDeleteMessageWindowExpired(t *testing.T) {
	pipeline, _, messages, _, _ := newTestPipeline()

	senderID := uuid.New()
	messageID := uuid.New()
	msg := models.Message{ID: messageID, SenderID: senderID, CreatedAt: time.Now().Add(-2 * time.Hour)}
	messages.On("GetMessage", mock.Anything, messageID).Return(msg, nil).Once()

	err := pipeline.SoftDeleteMessage(context.Background(), senderID, messageID)
	assert.ErrorIs(t, err, ErrDeleteWindowExpired)
	messages.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything, mock.Anything)
}
