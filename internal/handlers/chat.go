package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"giberno-chat-service/internal/chat"
	"giberno-chat-service/internal/models"
	"giberno-chat-service/internal/repositories"
)

// ChatHandler exposes the REST surface next to the socket: chat creation,
// listing, history, per-user blocking and the indicator counters.
type ChatHandler struct {
	service  *chat.Service
	chatRepo repositories.ChatRepository
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(service *chat.Service, chatRepo repositories.ChatRepository) *ChatHandler {
	return &ChatHandler{service: service, chatRepo: chatRepo}
}

// CreateChat creates (or returns) the caller's chat about a target.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		Kind models.TargetKind `json:"kind"`
		ID   int               `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	created, err := h.service.CreateChat(c.Request.Context(), userID, models.ChatTarget{Kind: req.Kind, ID: req.ID})
	if err != nil {
		if errors.Is(err, chat.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	c.JSON(http.StatusOK, created)
}

// ListChats returns the chats visible to the authenticated user with their
// per-chat unread state.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")

	summaries, err := h.service.Summaries(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

// GetChatMessages returns permission-checked chat history.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	userID := c.GetInt("userID")
	msgs, err := h.service.History(c.Request.Context(), chatID, userID, limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// BlockChat records the caller's block of the chat.
func (h *ChatHandler) BlockChat(c *gin.Context) {
	h.setBlocked(c, true)
}

// UnblockChat clears the caller's block of the chat.
func (h *ChatHandler) UnblockChat(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *ChatHandler) setBlocked(c *gin.Context, blocked bool) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	userID := c.GetInt("userID")

	if _, err := h.chatRepo.GetChatUser(c.Request.Context(), chatID, userID); err != nil {
		h.writeError(c, err)
		return
	}

	if blocked {
		err = h.chatRepo.BlockChatForUser(c.Request.Context(), chatID, userID)
	} else {
		err = h.chatRepo.UnblockChatForUser(c.Request.Context(), chatID, userID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update block state"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Counters returns the indicator badge payload over HTTP.
func (h *ChatHandler) Counters(c *gin.Context) {
	userID := c.GetInt("userID")

	counters, err := h.service.Counters(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load counters"})
		return
	}

	c.JSON(http.StatusOK, counters)
}

func (h *ChatHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound), errors.Is(err, repositories.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, repositories.ErrNotInChat), errors.Is(err, chat.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
	case errors.Is(err, chat.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
