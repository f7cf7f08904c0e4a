package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"backpack-auth/internal/domain"
)

var (
	// ErrTimeout se devuelve cuando la consulta excede el timeout configurado.
	ErrTimeout = errors.New("datastore timeout")
	// ErrDuplicateEmail se devuelve ante una violacion del indice unico de email.
	ErrDuplicateEmail = errors.New("duplicate email")
)

const defaultQueryTimeout = 3 * time.Second

// UserRepository define el contrato de persistencia para usuarios.
// Los metodos de lectura devuelven pgx.ErrNoRows cuando no hay coincidencias
// y los de escritura lo devuelven cuando no afectan ninguna fila.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByResetToken(ctx context.Context, token string) (domain.User, error)
	SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id string) error
	UpdatePasswordAndClearReset(ctx context.Context, id, token, passwordHash string) error
	SetTwoFactorSecret(ctx context.Context, id, secret string) error
	EnableTwoFactor(ctx context.Context, id string) error
	DisableTwoFactor(ctx context.Context, id string) error
}

// querier cubre lo que el repositorio usa de *pgxpool.Pool.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool    querier
	timeout time.Duration
}

func NewPgUserRepository(pool querier, timeout time.Duration) *PgUserRepository {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &PgUserRepository{pool: pool, timeout: timeout}
}

const userColumns = `id, name, email, password_hash, two_factor_enabled,
		COALESCE(two_factor_secret, ''), COALESCE(reset_token, ''), reset_token_expiry, created_at`

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, name, email, password_hash, two_factor_enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.TwoFactorEnabled,
		user.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	return r.wrap(ctx, "create user", err)
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, "get user by id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, "get user by email", `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *PgUserRepository) GetByResetToken(ctx context.Context, token string) (domain.User, error) {
	return r.getOne(ctx, "get user by reset token", `SELECT `+userColumns+` FROM users WHERE reset_token = $1`, token)
}

func (r *PgUserRepository) SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	return r.execOne(ctx, "set reset token",
		`UPDATE users SET reset_token = $1, reset_token_expiry = $2 WHERE id = $3`,
		token, expiresAt, id)
}

func (r *PgUserRepository) ClearResetToken(ctx context.Context, id string) error {
	return r.execOne(ctx, "clear reset token",
		`UPDATE users SET reset_token = NULL, reset_token_expiry = NULL WHERE id = $1`,
		id)
}

// UpdatePasswordAndClearReset solo afecta la fila si el token sigue siendo el vigente.
func (r *PgUserRepository) UpdatePasswordAndClearReset(ctx context.Context, id, token, passwordHash string) error {
	return r.execOne(ctx, "update password",
		`UPDATE users SET password_hash = $1, reset_token = NULL, reset_token_expiry = NULL
		WHERE id = $2 AND reset_token = $3`,
		passwordHash, id, token)
}

func (r *PgUserRepository) SetTwoFactorSecret(ctx context.Context, id, secret string) error {
	return r.execOne(ctx, "set two factor secret",
		`UPDATE users SET two_factor_secret = $1 WHERE id = $2`,
		secret, id)
}

func (r *PgUserRepository) EnableTwoFactor(ctx context.Context, id string) error {
	return r.execOne(ctx, "enable two factor",
		`UPDATE users SET two_factor_enabled = TRUE WHERE id = $1 AND two_factor_secret IS NOT NULL`,
		id)
}

func (r *PgUserRepository) DisableTwoFactor(ctx context.Context, id string) error {
	return r.execOne(ctx, "disable two factor",
		`UPDATE users SET two_factor_enabled = FALSE, two_factor_secret = NULL WHERE id = $1`,
		id)
}

func (r *PgUserRepository) getOne(ctx context.Context, op, query string, arg any) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var u domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.TwoFactorEnabled,
		&u.TwoFactorSecret,
		&u.ResetToken,
		&u.ResetTokenExpiry,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}
	if err != nil {
		return domain.User{}, r.wrap(ctx, op, err)
	}
	return u, nil
}

func (r *PgUserRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return r.wrap(ctx, op, err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) wrap(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
