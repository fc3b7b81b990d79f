package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/campusquest/backend/internal/models"
)

const accountColumns = `handle, name, COALESCE(email, ''), password_hash, balance_cents, xp, rating, rating_count, created_at, updated_at`

type accountRepo struct {
	tx pgx.Tx
}

func (r accountRepo) Create(ctx context.Context, a *models.Account) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO accounts (handle, name, email, password_hash, balance_cents, xp, rating, rating_count)
		VALUES ($1, $2, NULLIF(LOWER($3), ''), $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, a.Handle, a.Name, a.Email, a.PasswordHash, a.BalanceCents, a.XP, a.Rating, a.RatingCount).Scan(&a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrDuplicate
	}
	return err
}

func (r accountRepo) Get(ctx context.Context, handle string) (*models.Account, error) {
	return r.one(ctx, `SELECT `+accountColumns+` FROM accounts WHERE handle = $1`, handle)
}

func (r accountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.one(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = LOWER($1)`, email)
}

func (r accountRepo) GetForUpdate(ctx context.Context, handle string) (*models.Account, error) {
	return r.one(ctx, `SELECT `+accountColumns+` FROM accounts WHERE handle = $1 FOR UPDATE`, handle)
}

func (r accountRepo) one(ctx context.Context, query string, args ...any) (*models.Account, error) {
	var a models.Account
	err := r.tx.QueryRow(ctx, query, args...).Scan(&a.Handle, &a.Name, &a.Email, &a.PasswordHash,
		&a.BalanceCents, &a.XP, &a.Rating, &a.RatingCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r accountRepo) AddBalance(ctx context.Context, handle string, amount int64) (int64, error) {
	var balance int64
	err := r.tx.QueryRow(ctx, `
		UPDATE accounts SET balance_cents = balance_cents + $2, updated_at = now()
		WHERE handle = $1
		RETURNING balance_cents
	`, handle, amount).Scan(&balance)
	return balance, notFound(err)
}

func (r accountRepo) DeductBalance(ctx context.Context, handle string, amount int64) (int64, error) {
	var balance int64
	err := r.tx.QueryRow(ctx, `
		UPDATE accounts SET balance_cents = balance_cents - $2, updated_at = now()
		WHERE handle = $1 AND balance_cents >= $2
		RETURNING balance_cents
	`, handle, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.Get(ctx, handle); getErr != nil {
			return 0, getErr
		}
		return 0, models.ErrInsufficientFunds
	}
	return balance, err
}

func (r accountRepo) AddXP(ctx context.Context, handle string, delta int) (int, error) {
	var xp int
	err := r.tx.QueryRow(ctx, `
		UPDATE accounts SET xp = GREATEST(xp + $2, 0), updated_at = now()
		WHERE handle = $1
		RETURNING xp
	`, handle, delta).Scan(&xp)
	return xp, notFound(err)
}

func (r accountRepo) SetRating(ctx context.Context, handle string, rating float64, count int) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE accounts SET rating = $2, rating_count = $3, updated_at = now() WHERE handle = $1
	`, handle, rating, count)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
