package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backpack-auth/internal/metrics"
	"backpack-auth/internal/service"
)

// AuthHandler expone registro y login.
type AuthHandler struct {
	logger *zap.Logger
	auth   *service.AuthService
}

func NewAuthHandler(logger *zap.Logger, auth *service.AuthService) *AuthHandler {
	return &AuthHandler{logger: logger, auth: auth}
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		badRequest(c, "name, email, and password are required")
		return
	}

	user, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		metrics.RecordAuthEvent("register", metrics.OutcomeFailure)
		respondError(c, h.logger, "register", err)
		return
	}

	metrics.RecordAuthEvent("register", metrics.OutcomeSuccess)
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": user})
}

// Login maneja POST /auth/login. Con 2FA activo responde un token temporal
// en lugar de la sesion.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		badRequest(c, "email and password are required")
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			metrics.RecordAuthEvent("login", metrics.OutcomeFailure)
		}
		respondError(c, h.logger, "login", err)
		return
	}

	metrics.RecordAuthEvent("login", metrics.OutcomeSuccess)
	c.JSON(http.StatusOK, res)
}
