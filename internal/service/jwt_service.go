package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"backpack-auth/internal/domain"
)

const (
	PurposeSession   = "session"
	PurposeTwoFactor = "2fa_pending"

	defaultSessionTTL = 24 * time.Hour
	// temporaryTTL cubre el hueco entre el login con password y el codigo TOTP.
	temporaryTTL = 5 * time.Minute
)

// JWTService emite y valida tokens de sesion y tokens temporales de 2FA.
type JWTService struct {
	secret     []byte
	sessionTTL time.Duration
	issuer     string
	challenges ChallengeStore
	now        func() time.Time
}

type Claims struct {
	UserID  string `json:"uid"`
	Email   string `json:"email,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

func NewJWTService(secret string, sessionTTL time.Duration) *JWTService {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &JWTService{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		issuer:     "backpack-auth",
		challenges: NewMemoryChallengeStore(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func NewJWTServiceWithStore(secret string, sessionTTL time.Duration, store ChallengeStore) *JWTService {
	svc := NewJWTService(secret, sessionTTL)
	if store != nil {
		svc.challenges = store
	}
	return svc
}

// SessionTTL devuelve la vigencia de los tokens de sesion.
func (s *JWTService) SessionTTL() time.Duration {
	return s.sessionTTL
}

func (s *JWTService) IssueSession(user domain.User) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrJWTInvalid
	}
	return s.signToken(user, s.now(), s.sessionTTL, PurposeSession, "")
}

// IssueTemporary emite el token que puentea login y desafio 2FA. Su jti queda
// registrado para que solo pueda canjearse una vez.
func (s *JWTService) IssueTemporary(user domain.User) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrJWTInvalid
	}
	jti := uuid.NewString()
	signed, err := s.signToken(user, s.now(), temporaryTTL, PurposeTwoFactor, jti)
	if err != nil {
		return "", err
	}
	if s.challenges != nil {
		if err := s.challenges.Store(jti, user.ID, temporaryTTL); err != nil {
			return "", err
		}
	}
	return signed, nil
}

func (s *JWTService) ParseSession(token string) (Claims, error) {
	return s.parsePurpose(token, PurposeSession)
}

func (s *JWTService) ParseTemporary(token string) (Claims, error) {
	claims, err := s.parsePurpose(token, PurposeTwoFactor)
	if err != nil {
		return Claims{}, err
	}
	if claims.ID == "" || s.challenges == nil {
		return Claims{}, ErrJWTInvalid
	}
	ok, err := s.challenges.Exists(claims.ID)
	if err != nil || !ok {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

// ConsumeTemporary invalida el jti del token temporal. Falla si ya fue canjeado.
func (s *JWTService) ConsumeTemporary(claims Claims) error {
	if claims.Purpose != PurposeTwoFactor || claims.ID == "" || s.challenges == nil {
		return ErrJWTInvalid
	}
	ok, err := s.challenges.Consume(claims.ID)
	if err != nil || !ok {
		return ErrJWTInvalid
	}
	return nil
}

func (s *JWTService) parsePurpose(token, purpose string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(token) == "" {
		return Claims{}, ErrJWTInvalid
	}
	claims, err := s.parseToken(token)
	if err != nil {
		return Claims{}, err
	}
	if claims.Purpose != purpose {
		return Claims{}, ErrJWTInvalid
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) signToken(user domain.User, now time.Time, ttl time.Duration, purpose, jti string) (string, error) {
	claims := Claims{
		UserID:  user.ID,
		Email:   user.Email,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) parseToken(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" {
		return false
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
