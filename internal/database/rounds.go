package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"freefall/internal/game"
)

// CreateRound inserts the round row at round creation time. The crash point
// and seed are stored up front; they only reach clients after the crash.
func (s *Store) CreateRound(ctx context.Context, r *game.Round) error {
	bets, cashouts, err := marshalRoundLists(r)
	if err != nil {
		return err
	}

	query := `INSERT INTO rounds (round_id, seed, hash, crash_point, status, bets, cashouts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`

	_, err = s.pool.Exec(ctx, query,
		r.RoundID, r.Seed, r.Hash, r.CrashPoint, string(r.Status), bets, cashouts,
	)
	if err != nil {
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

// UpdateRound overwrites the mutable round fields by round id, bet and
// cashout lists included. Callers use it only once the round has ended
// and the lists can no longer grow.
func (s *Store) UpdateRound(ctx context.Context, r *game.Round) error {
	bets, cashouts, err := marshalRoundLists(r)
	if err != nil {
		return err
	}

	query := `UPDATE rounds SET status = $2, start_time = $3, end_time = $4, bets = $5, cashouts = $6, updated_at = NOW()
		WHERE round_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		r.RoundID, string(r.Status), nullTime(r.StartTime), nullTime(r.EndTime), bets, cashouts,
	)
	if err != nil {
		return fmt.Errorf("update round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("round not found: %d", r.RoundID)
	}
	return nil
}

// UpdateRoundStatus writes the lifecycle fields only. The bets and
// cashouts columns are untouched; those belong to the PlaceBet and
// SettleCashout transactions.
func (s *Store) UpdateRoundStatus(ctx context.Context, r *game.Round) error {
	query := `UPDATE rounds SET status = $2, start_time = $3, end_time = $4, updated_at = NOW()
		WHERE round_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		r.RoundID, string(r.Status), nullTime(r.StartTime), nullTime(r.EndTime),
	)
	if err != nil {
		return fmt.Errorf("update round status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("round not found: %d", r.RoundID)
	}
	return nil
}

// HighestRoundID returns the largest persisted round id, 0 when no round
// has ever run.
func (s *Store) HighestRoundID(ctx context.Context) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(round_id), 0) FROM rounds`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("highest round id: %w", err)
	}
	return id, nil
}

// PlaceBet commits a bet as one transaction: guarded wallet debit, round
// bet list update, transaction append. Returns game.ErrInsufficientBalance
// when the debit guard rejects, leaving the wallet untouched.
func (s *Store) PlaceBet(ctx context.Context, r *game.Round, b *game.Bet, t *game.Transaction) error {
	bets, _, err := marshalRoundLists(r)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin place bet: %w", err)
	}
	defer tx.Rollback(ctx)

	// Single-statement conditional debit. The balance >= amount guard is
	// what keeps concurrent mutations from driving the balance negative.
	tag, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance - $3, updated_at = NOW()
		 WHERE user_id = $1 AND currency = $2 AND balance >= $3`,
		b.UserID, b.Currency, b.CryptoAmount,
	)
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx,
		`UPDATE rounds SET bets = $2, updated_at = NOW() WHERE round_id = $1`,
		r.RoundID, bets,
	); err != nil {
		return fmt.Errorf("append bet to round: %w", err)
	}

	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit place bet: %w", err)
	}
	return nil
}

// SettleCashout commits a cashout as one transaction: wallet credit, round
// bet/cashout list update, transaction append.
func (s *Store) SettleCashout(ctx context.Context, r *game.Round, b *game.Bet, c *game.Cashout, t *game.Transaction) error {
	bets, cashouts, err := marshalRoundLists(r)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cashout: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO wallets (user_id, currency, balance, updated_at) VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id, currency) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()`,
		b.UserID, b.Currency, c.PayoutCrypto,
	); err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE rounds SET bets = $2, cashouts = $3, updated_at = NOW() WHERE round_id = $1`,
		r.RoundID, bets, cashouts,
	); err != nil {
		return fmt.Errorf("update round cashouts: %w", err)
	}

	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cashout: %w", err)
	}
	return nil
}

// RoundHistory returns persisted rounds most-recent-first.
func (s *Store) RoundHistory(ctx context.Context, limit, offset int) ([]*game.Round, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx,
		`SELECT round_id, seed, hash, crash_point, status, start_time, end_time, bets, cashouts
		 FROM rounds ORDER BY round_id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("round history: %w", err)
	}
	defer rows.Close()

	var rounds []*game.Round
	for rows.Next() {
		r := &game.Round{}
		var status string
		var startTime, endTime *time.Time
		var bets, cashouts []byte

		if err := rows.Scan(&r.RoundID, &r.Seed, &r.Hash, &r.CrashPoint, &status, &startTime, &endTime, &bets, &cashouts); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		r.Status = game.RoundStatus(status)
		if startTime != nil {
			r.StartTime = *startTime
		}
		if endTime != nil {
			r.EndTime = *endTime
		}
		if err := json.Unmarshal(bets, &r.Bets); err != nil {
			return nil, fmt.Errorf("decode round bets: %w", err)
		}
		if err := json.Unmarshal(cashouts, &r.Cashouts); err != nil {
			return nil, fmt.Errorf("decode round cashouts: %w", err)
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

func marshalRoundLists(r *game.Round) (bets, cashouts []byte, err error) {
	bets, err = json.Marshal(r.Bets)
	if err != nil {
		return nil, nil, fmt.Errorf("encode bets: %w", err)
	}
	if bets == nil || string(bets) == "null" {
		bets = []byte("[]")
	}
	cashouts, err = json.Marshal(r.Cashouts)
	if err != nil {
		return nil, nil, fmt.Errorf("encode cashouts: %w", err)
	}
	if cashouts == nil || string(cashouts) == "null" {
		cashouts = []byte("[]")
	}
	return bets, cashouts, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
