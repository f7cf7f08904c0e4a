package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"backpack-auth/internal/domain"
	"backpack-auth/internal/repository"
)

const (
	totpPeriod     = 30
	totpSkew       = 1
	totpSecretSize = 20
	totpCodeLength = 6
	qrImageSize    = 256
)

// totpOpts debe coincidir con los parametros de generacion; si difieren los
// codigos nunca validan.
var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      totpSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// SetupPayload es lo que necesita el cliente para registrar el secreto en su app.
type SetupPayload struct {
	Secret     string
	OTPAuthURL string
	QRImage    string
	Email      string
}

// TwoFactorService gestiona secretos TOTP: alta, confirmacion, verificacion y baja.
type TwoFactorService struct {
	logger  *zap.Logger
	users   repository.UserRepository
	limiter AttemptLimiter
	issuer  string
	now     func() time.Time
}

func NewTwoFactorService(logger *zap.Logger, users repository.UserRepository, limiter AttemptLimiter, issuer string) *TwoFactorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = NewAttemptLimiter(5*time.Minute, 5)
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = "Backpack Management"
	}
	return &TwoFactorService{
		logger:  logger,
		users:   users,
		limiter: limiter,
		issuer:  issuer,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// BeginSetup genera y guarda un secreto nuevo sin habilitar 2FA. Un secreto
// pendiente anterior se descarta.
func (s *TwoFactorService) BeginSetup(ctx context.Context, userID string) (SetupPayload, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return SetupPayload{}, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return SetupPayload{}, err
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrImageSize)
	if err != nil {
		return SetupPayload{}, err
	}

	if err := s.users.SetTwoFactorSecret(ctx, user.ID, key.Secret()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SetupPayload{}, ErrUserNotFound
		}
		return SetupPayload{}, err
	}

	return SetupPayload{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
		QRImage:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Email:      user.Email,
	}, nil
}

// ConfirmSetup habilita 2FA si el codigo coincide con el secreto pendiente.
func (s *TwoFactorService) ConfirmSetup(ctx context.Context, userID, code string) error {
	user, err := s.checkCode(ctx, userID, code, false)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		return nil
	}
	if err := s.users.EnableTwoFactor(ctx, user.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTwoFactorNotSetup
		}
		return err
	}
	s.logger.Info("two factor enabled", zap.String("user_id", user.ID))
	return nil
}

// VerifyLogin valida el codigo contra un secreto ya habilitado. No modifica estado.
func (s *TwoFactorService) VerifyLogin(ctx context.Context, userID, code string) (domain.User, error) {
	return s.checkCode(ctx, userID, code, true)
}

// Disable borra el secreto y deshabilita 2FA.
// No pide codigo: cualquiera con un token de sesion valido puede hacerlo.
func (s *TwoFactorService) Disable(ctx context.Context, userID string) error {
	if err := s.users.DisableTwoFactor(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	s.logger.Info("two factor disabled", zap.String("user_id", userID))
	return nil
}

func (s *TwoFactorService) Status(ctx context.Context, userID string) (bool, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.TwoFactorEnabled, nil
}

func (s *TwoFactorService) checkCode(ctx context.Context, userID, code string, requireEnabled bool) (domain.User, error) {
	code = strings.TrimSpace(code)
	if !isValidTOTPCode(code) {
		return domain.User{}, ErrInvalidCode
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if !user.HasPendingSecret() || (requireEnabled && !user.TwoFactorEnabled) {
		return domain.User{}, ErrTwoFactorNotSetup
	}
	if !s.limiter.Allow("totp:" + user.ID) {
		return domain.User{}, ErrRateLimited
	}
	ok, err := totp.ValidateCustom(code, user.TwoFactorSecret, s.now(), totpOpts)
	if err != nil || !ok {
		return domain.User{}, ErrInvalidCode
	}
	return user, nil
}

func (s *TwoFactorService) getUser(ctx context.Context, userID string) (domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, ErrUserNotFound
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func isValidTOTPCode(code string) bool {
	if len(code) != totpCodeLength {
		return false
	}
	for _, r := range code {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
