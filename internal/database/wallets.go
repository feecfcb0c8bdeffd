package database

import (
	"context"
	"errors"
	"fmt"

	"freefall/internal/game"

	"github.com/jackc/pgx/v5"
)

// Balance returns a user's balance in one currency, 0 when no wallet row
// exists yet.
func (s *Store) Balance(ctx context.Context, userID, currency string) (float64, error) {
	var balance float64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1 AND currency = $2`,
		userID, currency,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// Balances returns every currency balance a user holds.
func (s *Store) Balances(ctx context.Context, userID string) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT currency, balance FROM wallets WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}
	defer rows.Close()

	balances := map[string]float64{game.CurrencyBTC: 0, game.CurrencyETH: 0}
	for rows.Next() {
		var currency string
		var balance float64
		if err := rows.Scan(&currency, &balance); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances[currency] = balance
	}
	return balances, rows.Err()
}

// Deposit credits a wallet and appends the matching deposit transaction in
// one database transaction. Demo funding only; there is no chain behind it.
func (s *Store) Deposit(ctx context.Context, t *game.Transaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin deposit: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO wallets (user_id, currency, balance, updated_at) VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id, currency) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()`,
		t.UserID, t.Currency, t.CryptoAmount,
	); err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}

	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit deposit: %w", err)
	}
	return nil
}
