package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backpack-auth/internal/metrics"
	"backpack-auth/internal/service"
)

const forgotPasswordMessage = "If an account with that email exists, we have sent password reset instructions."

// PasswordHandler expone el flujo de recuperacion de password.
type PasswordHandler struct {
	logger *zap.Logger
	resets *service.PasswordResetService
	// exposeResetURL devuelve el link en la respuesta; solo en desarrollo.
	exposeResetURL bool
}

func NewPasswordHandler(logger *zap.Logger, resets *service.PasswordResetService, exposeResetURL bool) *PasswordHandler {
	return &PasswordHandler{
		logger:         logger,
		resets:         resets,
		exposeResetURL: exposeResetURL,
	}
}

// ForgotPassword maneja POST /auth/forgot-password. La respuesta es la misma
// exista o no la cuenta.
func (h *PasswordHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON in request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		badRequest(c, "email is required")
		return
	}

	ticket, err := h.resets.RequestReset(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			metrics.RecordAuthEvent("password_reset_request", metrics.OutcomeLimited)
		}
		respondError(c, h.logger, "forgot password", err)
		return
	}

	metrics.RecordAuthEvent("password_reset_request", metrics.OutcomeSuccess)
	resp := gin.H{"message": forgotPasswordMessage}
	if h.exposeResetURL && ticket.Issued() {
		resp["resetUrl"] = ticket.URL
	}
	c.JSON(http.StatusOK, resp)
}

// ValidateResetToken maneja POST /auth/validate-reset-token.
func (h *PasswordHandler) ValidateResetToken(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "message": "reset token is required"})
		return
	}

	err := h.resets.ValidateToken(c.Request.Context(), req.Token)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"valid": true, "message": "reset token is valid"})
	case errors.Is(err, service.ErrResetTokenInvalid):
		c.JSON(http.StatusOK, gin.H{"valid": false, "message": err.Error()})
	default:
		respondError(c, h.logger, "validate reset token", err)
	}
}

// ResetPassword maneja POST /auth/reset-password.
func (h *PasswordHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token and password are required")
		return
	}

	if err := h.resets.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, service.ErrResetTokenInvalid) {
			metrics.RecordAuthEvent("password_reset", metrics.OutcomeFailure)
		}
		respondError(c, h.logger, "reset password", err)
		return
	}
	metrics.RecordAuthEvent("password_reset", metrics.OutcomeSuccess)
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset successfully"})
}
