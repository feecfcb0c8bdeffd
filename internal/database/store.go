package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Store implements the game engine's persistence boundary (rounds, wallets,
// transaction log) on PostgreSQL.
type Store struct {
	pool Pool
	log  zerolog.Logger
}

func NewStore(pool Pool, log zerolog.Logger) *Store {
	return &Store{
		pool: pool,
		log:  log.With().Str("component", "store").Logger(),
	}
}

// querier is satisfied by both Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}
