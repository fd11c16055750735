package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rtc-service/internal/middleware"
	"rtc-service/internal/repositories"
)

// CallHandler serves call history and shareable call links.
type CallHandler struct {
	calls repositories.CallRepository
}

// NewCallHandler builds a CallHandler.
func NewCallHandler(calls repositories.CallRepository) *CallHandler {
	return &CallHandler{calls: calls}
}

// ListCalls returns recent call history for the authenticated user.
func (h *CallHandler) ListCalls(c *gin.Context) {
	userID := middleware.UserID(c)

	calls, err := h.calls.ListCallsForUser(c.Request.Context(), userID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load calls"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"calls": calls})
}

// ResolveCallLink resolves a shareable call link token to its call record.
// This is how an offline receiver discovers a call that never rang.
func (h *CallHandler) ResolveCallLink(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid link token"})
		return
	}

	call, err := h.calls.GetCallByLinkToken(c.Request.Context(), token)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrCallNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "call not found"})
		return
	}

	userID := middleware.UserID(c)
	if _, participant := call.Other(userID); !participant {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your call"})
		return
	}

	c.JSON(http.StatusOK, call)
}
