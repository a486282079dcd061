package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Wallet credits challenge settlements to the wallets table. Each grant id is
// recorded in currency_grants, so a replayed grant is a no-op.
type Wallet struct {
	pool *pgxpool.Pool
}

func NewWallet(pool *pgxpool.Pool) *Wallet {
	return &Wallet{pool: pool}
}

func (w *Wallet) GrantCurrency(ctx context.Context, grantID, userID string, amount int) error {
	if amount <= 0 {
		return nil
	}
	return w.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO currency_grants (grant_id, user_id, amount) VALUES ($1, $2, $3) ON CONFLICT (grant_id) DO NOTHING`,
			grantID, userID, amount)
		if err != nil {
			return fmt.Errorf("record grant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO wallets (user_id, balance) VALUES ($1, $2)
			 ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()`,
			userID, amount)
		if err != nil {
			return fmt.Errorf("credit wallet: %w", err)
		}
		return nil
	})
}

// Balance returns the user's balance, 0 when no wallet exists yet.
func (w *Wallet) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := w.pool.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id=$1`, userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load balance: %w", err)
	}
	return balance, nil
}
