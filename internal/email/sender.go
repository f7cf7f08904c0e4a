package email

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// PasswordReset agrupa los datos necesarios para el correo de reset.
type PasswordReset struct {
	ToEmail   string
	ToName    string
	ResetURL  string
	ExpiresAt time.Time
}

// Sender define la interfaz para envio de correos de recuperacion de cuenta.
type Sender interface {
	SendPasswordReset(ctx context.Context, msg PasswordReset) error
}

type logSender struct {
	logger *zap.Logger
}

// NewLogSender crea un Sender que solo registra el enlace de reset en los logs.
// Se usa cuando no hay SMTP configurado.
func NewLogSender(logger *zap.Logger) Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &logSender{logger: logger}
}

func (s *logSender) SendPasswordReset(_ context.Context, msg PasswordReset) error {
	if msg.ToEmail == "" {
		return errors.New("to email is required")
	}
	s.logger.Info("password reset requested",
		zap.String("user", msg.ToName),
		zap.String("email", msg.ToEmail),
		zap.String("reset_url", msg.ResetURL),
		zap.Time("expires_at", msg.ExpiresAt.UTC()),
	)
	return nil
}
