package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/libohan-ha/BaiHe-sub001/internal/service"
	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 200
)

// MessageHandler serves the chat history over REST
type MessageHandler struct {
	messages *service.MessageService
	logger   *logger.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messages *service.MessageService, logger *logger.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

// Recent returns the most recent channel messages, oldest first
func (h *MessageHandler) Recent(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		if parsed > maxHistoryLimit {
			parsed = maxHistoryLimit
		}
		limit = parsed
	}

	messages, err := h.messages.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("error fetching recent messages", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
