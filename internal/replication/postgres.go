package replication

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// PostgresProvider reads replication lag from a streaming-replication primary.
type PostgresProvider struct {
	db *sql.DB
}

// NewPostgresProvider opens a connection pool against the primary.
func NewPostgresProvider(dsn string) (*PostgresProvider, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open replication connection: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresProvider{db: db}, nil
}

// NewPostgresProviderFromDB wraps an existing pool (used in tests).
func NewPostgresProviderFromDB(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

// Lag returns the worst replay lag across attached standbys. No attached
// standby is an error: a primary without replication cannot meet any RPO.
func (p *PostgresProvider) Lag(ctx context.Context) (time.Duration, error) {
	const query = `
		SELECT COALESCE(MAX(EXTRACT(EPOCH FROM replay_lag)), -1)
		FROM pg_stat_replication`

	var lagSeconds float64
	if err := p.db.QueryRowContext(ctx, query).Scan(&lagSeconds); err != nil {
		return 0, fmt.Errorf("query replication lag: %w", err)
	}

	if lagSeconds < 0 {
		return 0, fmt.Errorf("no standby attached to primary")
	}

	return time.Duration(lagSeconds * float64(time.Second)), nil
}

// Close releases the connection pool.
func (p *PostgresProvider) Close() error {
	return p.db.Close()
}
