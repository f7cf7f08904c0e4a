package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backpack-auth/internal/repository"
	"backpack-auth/internal/service"
)

// statusFor traduce errores de servicio a codigos HTTP. El segundo valor es
// el mensaje expuesto al cliente.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrPasswordTooShort),
		errors.Is(err, service.ErrPasswordTooLong),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrTwoFactorNotSetup),
		errors.Is(err, service.ErrResetTokenInvalid):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrMissingToken):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, service.ErrJWTInvalid),
		errors.Is(err, service.ErrJWTExpired):
		return http.StatusUnauthorized, "invalid token"
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, "too many requests"
	case errors.Is(err, repository.ErrTimeout):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// respondError escribe el error como JSON; los 5xx se loguean con el detalle.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
