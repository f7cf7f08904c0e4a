package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"backpack-auth/internal/domain"
)

// LoginResult es la salida de un paso de login: sesion completa o desafio 2FA.
type LoginResult struct {
	Token       string             `json:"token,omitempty"`
	User        *domain.PublicUser `json:"user,omitempty"`
	Requires2FA bool               `json:"requires2FA,omitempty"`
	TempToken   string             `json:"tempToken,omitempty"`
}

// AuthService orquesta el flujo de login: credenciales, desafio 2FA opcional
// y emision del token de sesion.
type AuthService struct {
	logger    *zap.Logger
	users     *UserService
	twoFactor *TwoFactorService
	tokens    *JWTService
}

func NewAuthService(logger *zap.Logger, users *UserService, twoFactor *TwoFactorService, tokens *JWTService) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		logger:    logger,
		users:     users,
		twoFactor: twoFactor,
		tokens:    tokens,
	}
}

func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return LoginResult{}, err
	}

	if user.TwoFactorEnabled {
		temp, err := s.tokens.IssueTemporary(user)
		if err != nil {
			return LoginResult{}, err
		}
		s.logger.Info("login awaiting second factor", zap.String("user_id", user.ID))
		return LoginResult{Requires2FA: true, TempToken: temp}, nil
	}

	return s.session(user)
}

// CompleteTwoFactorLogin canjea el token temporal y un codigo TOTP por una sesion.
// El token temporal solo se consume cuando el codigo es correcto.
func (s *AuthService) CompleteTwoFactorLogin(ctx context.Context, tempToken, code string) (LoginResult, error) {
	claims, err := s.tokens.ParseTemporary(tempToken)
	if err != nil {
		return LoginResult{}, err
	}

	user, err := s.twoFactor.VerifyLogin(ctx, claims.UserID, code)
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.tokens.ConsumeTemporary(claims); err != nil {
		return LoginResult{}, err
	}
	return s.session(user)
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (domain.PublicUser, error) {
	user, err := s.users.Register(ctx, input)
	if err != nil {
		return domain.PublicUser{}, err
	}
	return user.Public(), nil
}

func (s *AuthService) session(user domain.User) (LoginResult, error) {
	if s.tokens == nil {
		return LoginResult{}, errors.New("jwt not configured")
	}
	token, err := s.tokens.IssueSession(user)
	if err != nil {
		return LoginResult{}, err
	}
	public := user.Public()
	return LoginResult{Token: token, User: &public}, nil
}
