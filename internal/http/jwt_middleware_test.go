package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"backpack-auth/internal/domain"
	"backpack-auth/internal/service"
)

func protectedRouter(jwtSvc *service.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", JWTAuthMiddleware(jwtSvc), func(c *gin.Context) {
		claims, ok := GetAuthClaims(c)
		if !ok || claims.UserID != "u1" {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusOK)
	})
	return r
}

func TestJWTAuthMiddleware_AllowsBearerSession(t *testing.T) {
	jwtSvc := service.NewJWTService("secret", time.Hour)
	token, err := jwtSvc.IssueSession(domain.User{ID: "u1", Email: "user@example.com"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedRouter(jwtSvc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestJWTAuthMiddleware_AllowsCookieSession(t *testing.T) {
	jwtSvc := service.NewJWTService("secret", time.Hour)
	token, err := jwtSvc.IssueSession(domain.User{ID: "u1", Email: "user@example.com"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	rec := httptest.NewRecorder()
	protectedRouter(jwtSvc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestJWTAuthMiddleware_RejectsMissingToken(t *testing.T) {
	jwtSvc := service.NewJWTService("secret", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	protectedRouter(jwtSvc).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestJWTAuthMiddleware_RejectsTemporaryToken(t *testing.T) {
	jwtSvc := service.NewJWTService("secret", time.Hour)
	temp, err := jwtSvc.IssueTemporary(domain.User{ID: "u1", Email: "user@example.com"})
	if err != nil {
		t.Fatalf("issue temporary: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+temp)
	rec := httptest.NewRecorder()
	protectedRouter(jwtSvc).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
