package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"momo-payments/internal/domain"
)

// Store groups the Postgres-backed repositories behind one connection pool
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Transaction returns a TransactionRepository using the store's pool
func (s *Store) Transaction() domain.TransactionRepository {
	return NewTransactionRepository(s.db, s.logger)
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
