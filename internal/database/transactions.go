package database

import (
	"context"
	"fmt"
	"time"

	"freefall/internal/game"
)

func insertTransaction(ctx context.Context, q querier, t *game.Transaction) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := q.Exec(ctx,
		`INSERT INTO transactions (user_id, type, currency, crypto_amount, usd_amount, price_at_time, transaction_hash, round_id, multiplier, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.UserID, string(t.Type), t.Currency, t.CryptoAmount, t.UsdAmount, t.PriceAtTime,
		t.TransactionHash, nullInt64(t.RoundID), nullFloat64(t.Multiplier), createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// TransactionHistory returns a user's ledger entries most-recent-first.
func (s *Store) TransactionHistory(ctx context.Context, userID string, limit, offset int) ([]*game.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, type, currency, crypto_amount, usd_amount, price_at_time, transaction_hash, round_id, multiplier, created_at
		 FROM transactions WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("transaction history: %w", err)
	}
	defer rows.Close()

	var txs []*game.Transaction
	for rows.Next() {
		t := &game.Transaction{}
		var txType string
		var roundID *int64
		var multiplier *float64

		if err := rows.Scan(&t.UserID, &txType, &t.Currency, &t.CryptoAmount, &t.UsdAmount,
			&t.PriceAtTime, &t.TransactionHash, &roundID, &multiplier, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = game.TransactionType(txType)
		if roundID != nil {
			t.RoundID = *roundID
		}
		if multiplier != nil {
			t.Multiplier = *multiplier
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func nullInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func nullFloat64(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
