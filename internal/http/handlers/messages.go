package handlers

import (
	"context"
	"errors"
	"net/http"

	"nexus-chat/internal/chat"
	"nexus-chat/internal/http/middleware"
	"nexus-chat/internal/models"

	"github.com/gin-gonic/gin"
)

type MessageService interface {
	Post(ctx context.Context, id *chat.Identity, content string) (models.Message, error)
	History(ctx context.Context) ([]models.Message, error)
}

type MessageHandler struct {
	Chat MessageService
}

type postMessageReq struct {
	Content string `json:"content"`
}

func (h *MessageHandler) Post(c *gin.Context) {
	id := middleware.Identity(c)
	if id == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}

	var req postMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body"})
		return
	}

	msg, err := h.Chat.Post(c.Request.Context(), id, req.Content)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, msg)
	case errors.Is(err, chat.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
	case errors.Is(err, chat.ErrInvalidContent):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		internalError(c, "post message", err)
	}
}

func (h *MessageHandler) History(c *gin.Context) {
	msgs, err := h.Chat.History(c.Request.Context())
	if err != nil {
		internalError(c, "list messages", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}
