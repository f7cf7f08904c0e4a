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

// TwoFactorHandler expone alta, verificacion, estado y baja de 2FA.
type TwoFactorHandler struct {
	logger    *zap.Logger
	auth      *service.AuthService
	twoFactor *service.TwoFactorService
	tokens    *service.JWTService
}

func NewTwoFactorHandler(logger *zap.Logger, auth *service.AuthService, twoFactor *service.TwoFactorService, tokens *service.JWTService) *TwoFactorHandler {
	return &TwoFactorHandler{
		logger:    logger,
		auth:      auth,
		twoFactor: twoFactor,
		tokens:    tokens,
	}
}

// Setup maneja POST /auth/2fa/setup.
func (h *TwoFactorHandler) Setup(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		respondError(c, h.logger, "2fa setup", service.ErrMissingToken)
		return
	}

	payload, err := h.twoFactor.BeginSetup(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.logger, "2fa setup", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "QR code generated successfully",
		"qrImage":    payload.QRImage,
		"secret":     payload.Secret,
		"email":      payload.Email,
		"otpauthUrl": payload.OTPAuthURL,
	})
}

// Verify maneja POST /auth/2fa/verify. Con tempToken completa un login;
// sin el confirma el alta usando el token de sesion.
func (h *TwoFactorHandler) Verify(c *gin.Context) {
	var req struct {
		Code      string `json:"code"`
		TempToken string `json:"tempToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON in request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		badRequest(c, "verification code is required")
		return
	}

	if strings.TrimSpace(req.TempToken) != "" {
		h.completeLogin(c, req.TempToken, req.Code)
		return
	}

	token := sessionToken(c)
	if token == "" {
		respondError(c, h.logger, "2fa verify", service.ErrMissingToken)
		return
	}
	claims, err := h.tokens.ParseSession(token)
	if err != nil {
		respondError(c, h.logger, "2fa verify", err)
		return
	}
	if err := h.twoFactor.ConfirmSetup(c.Request.Context(), claims.UserID, req.Code); err != nil {
		respondError(c, h.logger, "2fa verify", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "2FA verification successful"})
}

func (h *TwoFactorHandler) completeLogin(c *gin.Context, tempToken, code string) {
	res, err := h.auth.CompleteTwoFactorLogin(c.Request.Context(), tempToken, code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			metrics.RecordAuthEvent("2fa_login", metrics.OutcomeFailure)
		case errors.Is(err, service.ErrRateLimited):
			metrics.RecordAuthEvent("2fa_login", metrics.OutcomeLimited)
		}
		respondError(c, h.logger, "2fa login", err)
		return
	}
	metrics.RecordAuthEvent("2fa_login", metrics.OutcomeSuccess)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "2FA verification successful",
		"token":   res.Token,
		"user":    res.User,
	})
}

// Status maneja GET /auth/2fa/status.
func (h *TwoFactorHandler) Status(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		respondError(c, h.logger, "2fa status", service.ErrMissingToken)
		return
	}
	enabled, err := h.twoFactor.Status(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.logger, "2fa status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

// Disable maneja POST /auth/2fa/disable.
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		respondError(c, h.logger, "2fa disable", service.ErrMissingToken)
		return
	}
	if err := h.twoFactor.Disable(c.Request.Context(), claims.UserID); err != nil {
		respondError(c, h.logger, "2fa disable", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Two-factor authentication has been disabled"})
}
