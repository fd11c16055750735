package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rtc-service/internal/mocks"
	"rtc-service/internal/models"
	"rtc-service/internal/repositories"
)

func setupCallRouter(handler *CallHandler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	r.GET("/calls", handler.ListCalls)
	r.GET("/calls/link/:token", handler.ResolveCallLink)
	return r
}

func TestListCallsSuccess(t *testing.T) {
	userID := uuid.New()
	callRepo := new(mocks.CallRepositoryMock)
	handler := NewCallHandler(callRepo)
	router := setupCallRouter(handler, userID)

	callRepo.On("ListCallsForUser", mock.Anything, userID, 0).Return([]models.Call{{ID: uuid.New(), CallerID: userID}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/calls", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	callRepo.AssertExpectations(t)
}

func TestResolveCallLinkNotFound(t *testing.T) {
	userID := uuid.New()
	callRepo := new(mocks.CallRepositoryMock)
	handler := NewCallHandler(callRepo)
	router := setupCallRouter(handler, userID)

	callRepo.On("GetCallByLinkToken", mock.Anything, "deadbeef").Return(models.Call{}, repositories.ErrCallNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/calls/link/deadbeef", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	callRepo.AssertExpectations(t)
}

func TestResolveCallLinkForbiddenForOutsider(t *testing.T) {
	userID := uuid.New()
	callRepo := new(mocks.CallRepositoryMock)
	handler := NewCallHandler(callRepo)
	router := setupCallRouter(handler, userID)

	call := models.Call{ID: uuid.New(), CallerID: uuid.New(), ReceiverID: uuid.New(), LinkToken: "cafe01"}
	callRepo.On("GetCallByLinkToken", mock.Anything, "cafe01").Return(call, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/calls/link/cafe01", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	callRepo.AssertExpectations(t)
}

func TestResolveCallLinkParticipant(t *testing.T) {
	userID := uuid.New()
	callRepo := new(mocks.CallRepositoryMock)
	handler := NewCallHandler(callRepo)
	router := setupCallRouter(handler, userID)

	call := models.Call{ID: uuid.New(), CallerID: uuid.New(), ReceiverID: userID, LinkToken: "cafe02"}
	callRepo.On("GetCallByLinkToken", mock.Anything, "cafe02").Return(call, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/calls/link/cafe02", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	callRepo.AssertExpectations(t)
}
