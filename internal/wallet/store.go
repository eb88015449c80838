// Package wallet reads contributor wallet addresses from the external
// profile store, a Postgres database owned by another service. This core
// never writes to it; address registration happens through a separate
// command outside this service.
package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
)

// Store is a read-only adapter over the profile store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to the profile store and verifies the connection. The
// initial ping is retried with exponential backoff so the service survives
// a database that is still coming up; individual lookups are never retried.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile store: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	ping := func() error {
		return db.PingContext(ctx)
	}
	if err := backoff.Retry(ping, policy); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach profile store: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// NewStore wraps an existing database handle. Used by tests.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetWalletAddress returns the wallet address registered for a user, or ""
// when none is recorded. Absence is not an error here: whether a missing
// wallet blocks anything is the caller's policy. Transient store failures
// propagate without retry.
func (s *Store) GetWalletAddress(ctx context.Context, userID int64) (string, error) {
	var address string
	err := s.db.QueryRowContext(ctx, `
        SELECT w.address
        FROM users u
        JOIN wallets w ON w.id = u.wallet_id
        WHERE u.id = $1
    `, userID).Scan(&address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("no wallet address on record", "user_id", userID)
			return "", nil
		}
		s.logger.Error("wallet lookup failed", "user_id", userID, "error", err)
		return "", fmt.Errorf("failed to fetch wallet for user %d: %w", userID, err)
	}

	s.logger.Info("fetched wallet address", "user_id", userID, "address", address)
	return address, nil
}
