package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"backpack-auth/internal/email"
	"backpack-auth/internal/repository"
)

const (
	resetTokenBytes = 32
	resetTokenTTL   = time.Hour
)

// ResetTicket describe un reset emitido. Vacio cuando el email no existe.
type ResetTicket struct {
	URL       string
	ExpiresAt time.Time
}

// Issued indica si se emitio un token para el email pedido.
func (t ResetTicket) Issued() bool {
	return t.URL != ""
}

// PasswordResetService maneja el ciclo de vida de los tokens de reset:
// emision, validacion y consumo. La expiracion se aplica al leer.
type PasswordResetService struct {
	logger  *zap.Logger
	users   repository.UserRepository
	sender  email.Sender
	limiter AttemptLimiter
	appURL  string
	now     func() time.Time
}

func NewPasswordResetService(logger *zap.Logger, users repository.UserRepository, sender email.Sender, limiter AttemptLimiter, appURL string) *PasswordResetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = NewAttemptLimiter(15*time.Minute, 3)
	}
	return &PasswordResetService{
		logger:  logger,
		users:   users,
		sender:  sender,
		limiter: limiter,
		appURL:  strings.TrimRight(appURL, "/"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RequestReset emite un token nuevo si el email existe, reemplazando el
// anterior. Un email desconocido no es un error.
func (s *PasswordResetService) RequestReset(ctx context.Context, emailAddr string) (ResetTicket, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ResetTicket{}, ErrInvalidEmail
	}
	if !s.limiter.Allow("reset:" + emailAddr) {
		return ResetTicket{}, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ResetTicket{}, nil
		}
		return ResetTicket{}, err
	}

	token, err := generateResetToken()
	if err != nil {
		return ResetTicket{}, err
	}
	expiresAt := s.now().Add(resetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, token, expiresAt); err != nil {
		return ResetTicket{}, err
	}

	ticket := ResetTicket{
		URL:       s.appURL + "/reset-password?token=" + url.QueryEscape(token),
		ExpiresAt: expiresAt,
	}
	if s.sender != nil {
		err := s.sender.SendPasswordReset(ctx, email.PasswordReset{
			ToEmail:   user.Email,
			ToName:    user.Name,
			ResetURL:  ticket.URL,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			// la respuesta al cliente no cambia: no revelar que la cuenta existe
			s.logger.Warn("send password reset failed", zap.Error(err), zap.String("user_id", user.ID))
		}
	}
	return ticket, nil
}

// ValidateToken verifica que el token exista y no haya vencido. Un token
// vencido se borra en la misma llamada.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) error {
	_, err := s.lookupToken(ctx, token)
	return err
}

// ResetPassword consume el token y guarda la nueva password.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return ErrResetTokenInvalid
	}

	userID, err := s.lookupToken(ctx, token)
	if err != nil {
		return err
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordAndClearReset(ctx, userID, strings.TrimSpace(token), hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrResetTokenInvalid
		}
		return err
	}
	s.logger.Info("password reset completed", zap.String("user_id", userID))
	return nil
}

func (s *PasswordResetService) lookupToken(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrResetTokenInvalid
	}
	user, err := s.users.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrResetTokenInvalid
		}
		return "", err
	}
	if user.ResetTokenExpired(s.now()) {
		if err := s.users.ClearResetToken(ctx, user.ID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return "", err
		}
		s.logger.Debug("expired reset token cleared", zap.String("user_id", user.ID))
		return "", ErrResetTokenInvalid
	}
	return user.ID, nil
}

func generateResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
