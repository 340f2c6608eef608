package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"samchat/internal/app"
	"samchat/internal/transport/http/response"
)

type AuthHandler struct {
	authService *app.AuthService
}

type RegisterRequest struct {
	Email string `json:"email" binding:"required,max=128"`
}

type LoginRequest struct {
	Email string `json:"email" binding:"required,max=128"`
	Token string `json:"token" binding:"required,max=256"`
}

func NewAuthHandler(authService *app.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusUnprocessableEntity, "invalid request payload")
		return
	}

	result, err := h.authService.Register(c.Request.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrEmailDomain):
			response.Error(c, http.StatusBadRequest, h.authService.DomainError())
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusUnprocessableEntity, "invalid email")
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, "register failed")
		}
		return
	}

	body := gin.H{"message": result.Message}
	if result.DebugToken != "" {
		body["debug_token"] = result.DebugToken
	}
	response.OK(c, body)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusUnprocessableEntity, "invalid request payload")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Token)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrTokenInvalid):
			response.Error(c, http.StatusBadRequest, "Token inválido ou expirado")
		case errors.Is(err, app.ErrTokenMismatch):
			response.Error(c, http.StatusBadRequest, "Token não corresponde ao email")
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusUnprocessableEntity, "invalid email")
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, "login failed")
		}
		return
	}

	response.OK(c, gin.H{
		"access_token": result.Token,
		"token_type":   "bearer",
		"user": gin.H{
			"email": result.Email,
		},
	})
}
