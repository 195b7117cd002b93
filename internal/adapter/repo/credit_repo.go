package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
)

// CreditRepositoryPG stores authenticated credit balances in PostgreSQL.
type CreditRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCreditRepository creates a new CreditRepositoryPG.
func NewCreditRepository(pool *pgxpool.Pool) *CreditRepositoryPG {
	return &CreditRepositoryPG{pool: pool}
}

// GetOrCreate fetches the balance row for a user, materializing it with
// the starting grant the first time the user shows up.
func (r *CreditRepositoryPG) GetOrCreate(ctx context.Context, userID string, startingGrant int) (*domain.CreditBalance, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO user_credits (user_id, balance, total_purchased, created_at)
VALUES ($1, $2, 0, NOW())
ON CONFLICT (user_id) DO UPDATE
SET user_id = EXCLUDED.user_id
RETURNING user_id, balance, total_purchased, last_purchase_at, created_at;
`, userID, startingGrant)
	return scanBalance(row)
}

// Get fetches the balance row for a user.
func (r *CreditRepositoryPG) Get(ctx context.Context, userID string) (*domain.CreditBalance, error) {
	row := r.pool.QueryRow(ctx, `
SELECT user_id, balance, total_purchased, last_purchase_at, created_at
FROM user_credits
WHERE user_id = $1;
`, userID)
	return scanBalance(row)
}

// DeductOne decrements the balance by a single credit, guarded so the
// balance never goes negative. Returns domain.ErrInsufficientCredits
// when the guard rejects the update.
func (r *CreditRepositoryPG) DeductOne(ctx context.Context, userID string) (int, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE user_credits
SET balance = balance - 1
WHERE user_id = $1 AND balance >= 1
RETURNING balance;
`, userID)

	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrInsufficientCredits
		}
		return 0, err
	}
	return remaining, nil
}

// AddCredits tops up the balance and lifetime-purchase bookkeeping.
// Called from the payment webhook path.
func (r *CreditRepositoryPG) AddCredits(ctx context.Context, userID string, amount int) (int, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO user_credits (user_id, balance, total_purchased, last_purchase_at, created_at)
VALUES ($1, $2, $2, NOW(), NOW())
ON CONFLICT (user_id) DO UPDATE
SET balance = user_credits.balance + EXCLUDED.balance,
    total_purchased = user_credits.total_purchased + EXCLUDED.balance,
    last_purchase_at = NOW()
RETURNING balance;
`, userID, amount)

	var balance int
	if err := row.Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func scanBalance(row pgx.Row) (*domain.CreditBalance, error) {
	var b domain.CreditBalance
	if err := row.Scan(&b.UserID, &b.Balance, &b.TotalPurchased, &b.LastPurchaseAt, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}
