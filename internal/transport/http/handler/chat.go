package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"samchat/internal/app"
	"samchat/internal/transport/http/middleware"
	"samchat/internal/transport/http/response"
)

const conversationNotFound = "Conversa não encontrada"

type ChatHandler struct {
	chatService *app.ChatService
}

type ChatRequest struct {
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversation_id"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) Chat(c *gin.Context) {
	email, ok := middleware.UserEmail(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "Invalid token")
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusUnprocessableEntity, "invalid request payload")
		return
	}

	result, err := h.chatService.Chat(c.Request.Context(), app.ChatInput{
		Email:          email,
		ConversationID: req.ConversationID,
		Message:        req.Message,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty):
			response.Error(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrConversationNotFound):
			response.Error(c, http.StatusNotFound, conversationNotFound)
		case errors.Is(err, app.ErrMessageEnqueue):
			response.Error(c, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, app.ErrCompletion):
			response.Error(c, http.StatusInternalServerError, err.Error())
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, "chat failed")
		}
		return
	}

	response.OK(c, result)
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	email, ok := middleware.UserEmail(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "Invalid token")
		return
	}

	conversations, err := h.chatService.ListConversations(email)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "list conversations failed")
		return
	}
	response.OK(c, conversations)
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	email, ok := middleware.UserEmail(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "Invalid token")
		return
	}

	detail, err := h.chatService.GetConversation(c.Request.Context(), email, c.Param("id"))
	if err != nil {
		if errors.Is(err, app.ErrConversationNotFound) {
			response.Error(c, http.StatusNotFound, conversationNotFound)
			return
		}
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "get conversation failed")
		return
	}
	response.OK(c, detail)
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	email, ok := middleware.UserEmail(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "Invalid token")
		return
	}

	if err := h.chatService.DeleteConversation(c.Request.Context(), email, c.Param("id")); err != nil {
		if errors.Is(err, app.ErrConversationNotFound) {
			response.Error(c, http.StatusNotFound, conversationNotFound)
			return
		}
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "delete conversation failed")
		return
	}
	response.OK(c, gin.H{"message": "Conversa deletada"})
}
