package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"backpack-auth/internal/domain"
	"backpack-auth/internal/email"
)

type mockUserRepo struct {
	mu        sync.Mutex
	usersByID map[string]domain.User
	err       error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID: make(map[string]domain.User),
	}
}

func (m *mockUserRepo) put(user domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usersByID[user.ID] = user
}

func (m *mockUserRepo) get(id string) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usersByID[id]
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	if m.err != nil {
		return m.err
	}
	m.put(user)
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	if m.err != nil {
		return domain.User{}, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	if m.err != nil {
		return domain.User{}, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.usersByID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *mockUserRepo) GetByResetToken(_ context.Context, token string) (domain.User, error) {
	if m.err != nil {
		return domain.User{}, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.usersByID {
		if u.ResetToken != "" && u.ResetToken == token {
			return u, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *mockUserRepo) update(id string, fn func(*domain.User) bool) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if !fn(&user) {
		return pgx.ErrNoRows
	}
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) SetResetToken(_ context.Context, id, token string, expiresAt time.Time) error {
	return m.update(id, func(u *domain.User) bool {
		u.ResetToken = token
		u.ResetTokenExpiry = &expiresAt
		return true
	})
}

func (m *mockUserRepo) ClearResetToken(_ context.Context, id string) error {
	return m.update(id, func(u *domain.User) bool {
		u.ResetToken = ""
		u.ResetTokenExpiry = nil
		return true
	})
}

func (m *mockUserRepo) UpdatePasswordAndClearReset(_ context.Context, id, token, passwordHash string) error {
	return m.update(id, func(u *domain.User) bool {
		if u.ResetToken != token {
			return false
		}
		u.PasswordHash = passwordHash
		u.ResetToken = ""
		u.ResetTokenExpiry = nil
		return true
	})
}

func (m *mockUserRepo) SetTwoFactorSecret(_ context.Context, id, secret string) error {
	return m.update(id, func(u *domain.User) bool {
		u.TwoFactorSecret = secret
		return true
	})
}

func (m *mockUserRepo) EnableTwoFactor(_ context.Context, id string) error {
	return m.update(id, func(u *domain.User) bool {
		if u.TwoFactorSecret == "" {
			return false
		}
		u.TwoFactorEnabled = true
		return true
	})
}

func (m *mockUserRepo) DisableTwoFactor(_ context.Context, id string) error {
	return m.update(id, func(u *domain.User) bool {
		u.TwoFactorEnabled = false
		u.TwoFactorSecret = ""
		return true
	})
}

type mockEmailSender struct {
	sent []email.PasswordReset
	err  error
}

func (m *mockEmailSender) SendPasswordReset(_ context.Context, msg email.PasswordReset) error {
	m.sent = append(m.sent, msg)
	return m.err
}

type mockLimiter struct {
	allow bool
	keys  []string
}

func (m *mockLimiter) Allow(key string) bool {
	m.keys = append(m.keys, key)
	return m.allow
}

// seedUser guarda un usuario con password hasheada.
func seedUser(repo *mockUserRepo, id, emailAddr, password string) domain.User {
	hash, err := hashPassword(password)
	if err != nil {
		panic(err)
	}
	user := domain.User{
		ID:           id,
		Name:         "Test",
		Email:        emailAddr,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	repo.put(user)
	return user
}
