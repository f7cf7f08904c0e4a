package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"backpack-auth/internal/domain"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *bool:
			*p = r.values[i].(bool)
		case *time.Time:
			*p = r.values[i].(time.Time)
		case **time.Time:
			v, _ := r.values[i].(*time.Time)
			*p = v
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type fakeQuerier struct {
	lastSQL  string
	lastArgs []any
	row      fakeRow
	tag      pgconn.CommandTag
	execErr  error
	delay    time.Duration
}

func (q *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.lastSQL = sql
	q.lastArgs = args
	if q.delay > 0 {
		select {
		case <-time.After(q.delay):
		case <-ctx.Done():
			return pgconn.CommandTag{}, ctx.Err()
		}
	}
	return q.tag, q.execErr
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.lastSQL = sql
	q.lastArgs = args
	return q.row
}

func userRow(expiry *time.Time) fakeRow {
	return fakeRow{values: []any{
		"u1", "Alice", "a@x.com", "hash", true, "SECRET", "tok", expiry, time.Unix(0, 0).UTC(),
	}}
}

func TestGetByEmail_Found(t *testing.T) {
	expiry := time.Now().UTC().Add(time.Hour)
	q := &fakeQuerier{row: userRow(&expiry)}
	repo := NewPgUserRepository(q, time.Second)

	u, err := repo.GetByEmail(context.Background(), "A@X.com")
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)
	require.True(t, u.TwoFactorEnabled)
	require.Equal(t, "SECRET", u.TwoFactorSecret)
	require.NotNil(t, u.ResetTokenExpiry)
	require.Contains(t, q.lastSQL, "lower(email) = lower($1)")
	require.Equal(t, []any{"A@X.com"}, q.lastArgs)
}

func TestGetByResetToken_NotFound(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}
	repo := NewPgUserRepository(q, time.Second)

	_, err := repo.GetByResetToken(context.Background(), "missing")
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestGetByID_WrapsDriverError(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{err: errors.New("db down")}}
	repo := NewPgUserRepository(q, time.Second)

	_, err := repo.GetByID(context.Background(), "u1")
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "get user by id: "))
	require.NotErrorIs(t, err, pgx.ErrNoRows)
}

func TestCreate_DuplicateEmail(t *testing.T) {
	q := &fakeQuerier{execErr: &pgconn.PgError{Code: "23505"}}
	repo := NewPgUserRepository(q, time.Second)

	err := repo.Create(context.Background(), domain.User{ID: "u1", Email: "a@x.com"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestSetResetToken_NoRowsAffected(t *testing.T) {
	q := &fakeQuerier{tag: pgconn.NewCommandTag("UPDATE 0")}
	repo := NewPgUserRepository(q, time.Second)

	err := repo.SetResetToken(context.Background(), "u1", "tok", time.Now())
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestUpdatePasswordAndClearReset_ClearsToken(t *testing.T) {
	q := &fakeQuerier{tag: pgconn.NewCommandTag("UPDATE 1")}
	repo := NewPgUserRepository(q, time.Second)

	err := repo.UpdatePasswordAndClearReset(context.Background(), "u1", "tok", "newhash")
	require.NoError(t, err)
	require.Contains(t, q.lastSQL, "reset_token = NULL")
	require.Contains(t, q.lastSQL, "reset_token_expiry = NULL")
	require.Equal(t, []any{"newhash", "u1", "tok"}, q.lastArgs)
}

func TestDisableTwoFactor_ClearsSecret(t *testing.T) {
	q := &fakeQuerier{tag: pgconn.NewCommandTag("UPDATE 1")}
	repo := NewPgUserRepository(q, time.Second)

	require.NoError(t, repo.DisableTwoFactor(context.Background(), "u1"))
	require.Contains(t, q.lastSQL, "two_factor_secret = NULL")
	require.Contains(t, q.lastSQL, "two_factor_enabled = FALSE")
}

func TestExec_TimeoutIsReported(t *testing.T) {
	q := &fakeQuerier{delay: time.Second, tag: pgconn.NewCommandTag("UPDATE 1")}
	repo := NewPgUserRepository(q, 10*time.Millisecond)

	err := repo.EnableTwoFactor(context.Background(), "u1")
	require.ErrorIs(t, err, ErrTimeout)
}
