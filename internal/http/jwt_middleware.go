package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"backpack-auth/internal/service"
)

const (
	authClaimsKey     = "auth_claims"
	sessionCookieName = "token"
)

// JWTAuthMiddleware valida el token de sesion y guarda claims en el contexto.
// Un token temporal de 2FA no autentica.
func JWTAuthMiddleware(jwtSvc *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
			c.Abort()
			return
		}

		token := sessionToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": service.ErrMissingToken.Error()})
			c.Abort()
			return
		}

		claims, err := jwtSvc.ParseSession(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

// sessionToken lee el token de Authorization: Bearer o, si falta, de la cookie.
func sessionToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > len("bearer ") && strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	if cookie, err := c.Cookie(sessionCookieName); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}
