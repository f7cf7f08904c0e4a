package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"backpack-auth/internal/domain"
	"backpack-auth/internal/email"
	"backpack-auth/internal/service"
)

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
	err   error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]domain.User)}
}

func (m *mockUserRepo) find(match func(domain.User) bool) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.User{}, m.err
	}
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *mockUserRepo) mutate(id string, fn func(*domain.User) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	u, ok := m.users[id]
	if !ok || !fn(&u) {
		return pgx.ErrNoRows
	}
	m.users[id] = u
	return nil
}

func (m *mockUserRepo) byEmail(addr string) domain.User {
	u, _ := m.find(func(u domain.User) bool { return u.Email == addr })
	return u
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	return m.find(func(u domain.User) bool { return u.ID == id })
}

func (m *mockUserRepo) GetByEmail(_ context.Context, addr string) (domain.User, error) {
	return m.find(func(u domain.User) bool { return strings.EqualFold(u.Email, addr) })
}

func (m *mockUserRepo) GetByResetToken(_ context.Context, token string) (domain.User, error) {
	return m.find(func(u domain.User) bool { return u.ResetToken != "" && u.ResetToken == token })
}

func (m *mockUserRepo) SetResetToken(_ context.Context, id, token string, expiresAt time.Time) error {
	return m.mutate(id, func(u *domain.User) bool {
		u.ResetToken, u.ResetTokenExpiry = token, &expiresAt
		return true
	})
}

func (m *mockUserRepo) ClearResetToken(_ context.Context, id string) error {
	return m.mutate(id, func(u *domain.User) bool {
		u.ResetToken, u.ResetTokenExpiry = "", nil
		return true
	})
}

func (m *mockUserRepo) UpdatePasswordAndClearReset(_ context.Context, id, token, hash string) error {
	return m.mutate(id, func(u *domain.User) bool {
		if u.ResetToken != token {
			return false
		}
		u.PasswordHash, u.ResetToken, u.ResetTokenExpiry = hash, "", nil
		return true
	})
}

func (m *mockUserRepo) SetTwoFactorSecret(_ context.Context, id, secret string) error {
	return m.mutate(id, func(u *domain.User) bool {
		u.TwoFactorSecret = secret
		return true
	})
}

func (m *mockUserRepo) EnableTwoFactor(_ context.Context, id string) error {
	return m.mutate(id, func(u *domain.User) bool {
		if u.TwoFactorSecret == "" {
			return false
		}
		u.TwoFactorEnabled = true
		return true
	})
}

func (m *mockUserRepo) DisableTwoFactor(_ context.Context, id string) error {
	return m.mutate(id, func(u *domain.User) bool {
		u.TwoFactorEnabled, u.TwoFactorSecret = false, ""
		return true
	})
}

type mockEmailSender struct {
	mu   sync.Mutex
	sent []email.PasswordReset
}

func (m *mockEmailSender) SendPasswordReset(_ context.Context, msg email.PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type testServer struct {
	router *gin.Engine
	repo   *mockUserRepo
	sender *mockEmailSender
	tokens *service.JWTService
}

func newTestServer(t *testing.T, devMode bool) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	repo := newMockUserRepo()
	sender := &mockEmailSender{}

	tokens := service.NewJWTService("test-secret", time.Hour)
	users := service.NewUserService(logger, repo)
	twoFactor := service.NewTwoFactorService(logger, repo, service.NewAttemptLimiter(time.Minute, 100), "Backpack Test")
	resets := service.NewPasswordResetService(logger, repo, sender, service.NewAttemptLimiter(time.Minute, 100), "http://app.test")
	auth := service.NewAuthService(logger, users, twoFactor, tokens)

	router := NewRouter(logger, RouterConfig{},
		tokens,
		NewAuthHandler(logger, auth),
		NewTwoFactorHandler(logger, auth, twoFactor, tokens),
		NewPasswordHandler(logger, resets, devMode),
	)
	return testServer{router: router, repo: repo, sender: sender, tokens: tokens}
}

func performRequest(r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}

// registerAndLogin crea una cuenta y devuelve el token de sesion.
func registerAndLogin(t *testing.T, srv testServer, addr, password string) string {
	t.Helper()
	rec := performRequest(srv.router, http.MethodPost, "/auth/register", map[string]string{
		"name": "Test", "email": addr, "password": password,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	rec = performRequest(srv.router, http.MethodPost, "/auth/login", map[string]string{
		"email": addr, "password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	token, _ := decodeBody(t, rec)["token"].(string)
	if token == "" {
		t.Fatalf("login: expected session token")
	}
	return token
}
