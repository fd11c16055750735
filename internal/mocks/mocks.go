package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"rtc-service/internal/models"
	"rtc-service/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) SetOnline(ctx context.Context, userID uuid.UUID, online bool) error {
	args := m.Called(ctx, userID, online)
	return args.Error(0)
}

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateOrGetPrivateChat(ctx context.Context, userID, friendID uuid.UUID) (models.Chat, error) {
	args := m.Called(ctx, userID, friendID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID uuid.UUID) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) IsActiveParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) ActiveParticipants(ctx context.Context, chatID uuid.UUID) ([]models.Participant, error) {
	args := m.Called(ctx, chatID)
	var participants []models.Participant
	if val := args.Get(0); val != nil {
		participants = val.([]models.Participant)
	}
	return participants, args.Error(1)
}

func (m *ChatRepositoryMock) ChatIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID)
	var ids []uuid.UUID
	if val := args.Get(0); val != nil {
		ids = val.([]uuid.UUID)
	}
	return ids, args.Error(1)
}

func (m *ChatRepositoryMock) ListChats(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) RecordLastMessage(ctx context.Context, chatID, messageID, senderID uuid.UUID, preview string, at time.Time) error {
	args := m.Called(ctx, chatID, messageID, senderID, preview, at)
	return args.Error(0)
}

func (m *ChatRepositoryMock) IncrementUnread(ctx context.Context, chatID, exceptUserID uuid.UUID) error {
	args := m.Called(ctx, chatID, exceptUserID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ResetUnread(ctx context.Context, chatID, userID uuid.UUID) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var stored models.Message
	if val := args.Get(0); val != nil {
		stored = val.(models.Message)
	}
	return stored, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListChatMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) AddReceipt(ctx context.Context, messageID, userID uuid.UUID, kind string) (bool, error) {
	args := m.Called(ctx, messageID, userID, kind)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) AdvanceStatus(ctx context.Context, messageID uuid.UUID, status string) error {
	args := m.Called(ctx, messageID, status)
	return args.Error(0)
}

func (m *MessageRepositoryMock) UpdateText(ctx context.Context, messageID uuid.UUID, text string, at time.Time) error {
	args := m.Called(ctx, messageID, text, at)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, messageID, at)
	return args.Error(0)
}

type CallRepositoryMock struct {
	mock.Mock
}

func (m *CallRepositoryMock) CreateCall(ctx context.Context, call models.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *CallRepositoryMock) SaveCall(ctx context.Context, call models.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *CallRepositoryMock) GetCall(ctx context.Context, callID uuid.UUID) (models.Call, error) {
	args := m.Called(ctx, callID)
	var call models.Call
	if val := args.Get(0); val != nil {
		call = val.(models.Call)
	}
	return call, args.Error(1)
}

func (m *CallRepositoryMock) GetCallByLinkToken(ctx context.Context, token string) (models.Call, error) {
	args := m.Called(ctx, token)
	var call models.Call
	if val := args.Get(0); val != nil {
		call = val.(models.Call)
	}
	return call, args.Error(1)
}

func (m *CallRepositoryMock) ListCallsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Call, error) {
	args := m.Called(ctx, userID, limit)
	var calls []models.Call
	if val := args.Get(0); val != nil {
		calls = val.([]models.Call)
	}
	return calls, args.Error(1)
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.CallRepository = (*CallRepositoryMock)(nil)
