package service

import "errors"

// Errores de validacion: se detectan antes de tocar el almacenamiento.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidEmail      = errors.New("invalid email")
	ErrPasswordTooShort  = errors.New("password must be at least 6 characters long")
	ErrPasswordTooLong   = errors.New("password must be at most 72 characters long")
	ErrInvalidCode       = errors.New("invalid verification code")
	ErrTwoFactorNotSetup = errors.New("2fa not set up for this user")
)

// Errores de autenticacion: nunca indican que parte del chequeo fallo.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
	ErrMissingToken       = errors.New("authentication required")
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("user with this email already exists")
	ErrRateLimited  = errors.New("rate limited")
)

const (
	minPasswordLength = 6
	maxPasswordLength = 72
)
