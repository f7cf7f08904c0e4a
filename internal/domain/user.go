package domain

import "time"

type User struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	TwoFactorSecret  string     `json:"-"`
	ResetToken       string     `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
}

// PublicUser es la proyeccion expuesta al cliente: nunca incluye password ni secretos.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Name: u.Name}
}

// HasPendingSecret indica si existe un secreto TOTP, confirmado o no.
func (u User) HasPendingSecret() bool {
	return u.TwoFactorSecret != ""
}

// ResetTokenExpired compara la expiracion del token de reset contra now.
func (u User) ResetTokenExpired(now time.Time) bool {
	if u.ResetTokenExpiry == nil {
		return true
	}
	return now.After(*u.ResetTokenExpiry)
}
