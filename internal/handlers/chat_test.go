package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rtc-service/internal/delivery"
	"rtc-service/internal/mocks"
	"rtc-service/internal/models"
)

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastToRoom(chatID uuid.UUID, event models.ServerEvent, exceptSessionID string) {
}

func (nopBroadcaster) SendToUser(userID uuid.UUID, event models.ServerEvent) int { return 0 }

func setupChatRouter(handler *ChatHandler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	r.GET("/chats", handler.ListChats)
	r.POST("/chats/start", handler.StartChat)
	r.GET("/chats/:chat_id/messages", handler.GetChatMessages)
	r.POST("/chats/:chat_id/messages", handler.PostChatMessage)
	r.POST("/chats/:chat_id/read", handler.MarkChatRead)
	return r
}

func TestListChatsSuccess(t *testing.T) {
	userID := uuid.New()
	chatRepo := new(mocks.ChatRepositoryMock)
	handler := NewChatHandler(chatRepo, nil, nil, nil)
	router := setupChatRouter(handler, userID)

	chatRepo.On("ListChats", mock.Anything, userID).Return([]models.ChatSummary{
		{ChatID: uuid.New(), Kind: models.ChatKindPrivate},
		{ChatID: uuid.New(), Kind: models.ChatKindGroup},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	chatRepo.AssertExpectations(t)
}

func TestListChatsRepoError(t *testing.T) {
	userID := uuid.New()
	chatRepo := new(mocks.ChatRepositoryMock)
	handler := NewChatHandler(chatRepo, nil, nil, nil)
	router := setupChatRouter(handler, userID)

	chatRepo.On("ListChats", mock.Anything, userID).Return(([]models.ChatSummary)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestStartChatSuccess(t *testing.T) {
	userID := uuid.New()
	friendID := uuid.New()
	chatRepo := new(mocks.ChatRepositoryMock)
	handler := NewChatHandler(chatRepo, nil, nil, nil)
	router := setupChatRouter(handler, userID)

	chatRepo.On("CreateOrGetPrivateChat", mock.Anything, userID, friendID).Return(models.Chat{ID: uuid.New()}, nil).Once()

	body := bytes.NewBufferString(`{"friend_id":"` + friendID.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/chats/start", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestStartChatWithSelf(t *testing.T) {
	userID := uuid.New()
	handler := NewChatHandler(new(mocks.ChatRepositoryMock), nil, nil, nil)
	router := setupChatRouter(handler, userID)

	body := bytes.NewBufferString(`{"friend_id":"` + userID.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/chats/start", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChatMessagesNotAMember(t *testing.T) {
	userID := uuid.New()
	chatID := uuid.New()
	chatRepo := new(mocks.ChatRepositoryMock)
	handler := NewChatHandler(chatRepo, new(mocks.MessageRepositoryMock), nil, nil)
	router := setupChatRouter(handler, userID)

	chatRepo.On("IsActiveParticipant", mock.Anything, chatID, userID).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/"+chatID.String()+"/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestGetChatMessagesInvalidID(t *testing.T) {
	handler := NewChatHandler(new(mocks.ChatRepositoryMock), new(mocks.MessageRepositoryMock), nil, nil)
	router := setupChatRouter(handler, uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/chats/abc/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostChatMessageSuccess(t *testing.T) {
	userID := uuid.New()
	chatID := uuid.New()
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	enqueuer := new(mocks.EnqueuerMock)
	pipeline := delivery.NewPipeline(chatRepo, messageRepo, nopBroadcaster{}, enqueuer)
	handler := NewChatHandler(chatRepo, messageRepo, pipeline, nil)
	router := setupChatRouter(handler, userID)

	stored := models.Message{ID: uuid.New(), ChatID: chatID, SenderID: userID, Type: models.MessageTypeText}
	chatRepo.On("IsActiveParticipant", mock.Anything, chatID, userID).Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, mock.Anything).Return(stored, nil).Once()
	chatRepo.On("RecordLastMessage", mock.Anything, chatID, stored.ID, userID, mock.Anything, mock.Anything).Return(nil).Once()
	chatRepo.On("IncrementUnread", mock.Anything, chatID, userID).Return(nil).Once()
	enqueuer.On("Enqueue", mock.Anything, mock.Anything, "delivery.message", mock.Anything).Return(nil).Once()

	body := bytes.NewBufferString(`{"type":"text","content":{"text":"hi"}}`)
	req := httptest.NewRequest(http.MethodPost, "/chats/"+chatID.String()+"/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	chatRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	enqueuer.AssertExpectations(t)
}

func TestPostChatMessageNotAParticipant(t *testing.T) {
	userID := uuid.New()
	chatID := uuid.New()
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	pipeline := delivery.NewPipeline(chatRepo, messageRepo, nopBroadcaster{}, new(mocks.EnqueuerMock))
	handler := NewChatHandler(chatRepo, messageRepo, pipeline, nil)
	router := setupChatRouter(handler, userID)

	chatRepo.On("IsActiveParticipant", mock.Anything, chatID, userID).Return(false, nil).Once()

	body := bytes.NewBufferString(`{"type":"text","content":{"text":"hi"}}`)
	req := httptest.NewRequest(http.MethodPost, "/chats/"+chatID.String()+"/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestMarkChatReadSuccess(t *testing.T) {
	userID := uuid.New()
	chatID := uuid.New()
	chatRepo := new(mocks.ChatRepositoryMock)
	handler := NewChatHandler(chatRepo, nil, nil, nil)
	router := setupChatRouter(handler, userID)

	chatRepo.On("IsActiveParticipant", mock.Anything, chatID, userID).Return(true, nil).Once()
	chatRepo.On("ResetUnread", mock.Anything, chatID, userID).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/"+chatID.String()+"/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	chatRepo.AssertExpectations(t)
}
