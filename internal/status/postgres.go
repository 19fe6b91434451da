package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// PostgresStore persists the recovery status as a single upserted row,
// for deployments where dashboards already read from Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a pool and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open status db: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS recovery_status (
			id                 INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			current_status     TEXT NOT NULL,
			message            TEXT NOT NULL DEFAULT '',
			updated_at         TIMESTAMPTZ NOT NULL,
			primary_endpoint   TEXT NOT NULL DEFAULT '',
			secondary_endpoint TEXT NOT NULL DEFAULT '',
			last_health_check  TIMESTAMPTZ
		)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate recovery_status: %w", err)
	}
	return nil
}

func (s *PostgresStore) Write(ctx context.Context, rs RecoveryStatus) error {
	const query = `
		INSERT INTO recovery_status
			(id, current_status, message, updated_at, primary_endpoint, secondary_endpoint, last_health_check)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			current_status = EXCLUDED.current_status,
			message = EXCLUDED.message,
			updated_at = EXCLUDED.updated_at,
			primary_endpoint = EXCLUDED.primary_endpoint,
			secondary_endpoint = EXCLUDED.secondary_endpoint,
			last_health_check = EXCLUDED.last_health_check`

	_, err := s.db.ExecContext(ctx, query,
		string(rs.CurrentStatus), rs.Message, rs.UpdatedAt,
		rs.PrimaryEndpoint, rs.SecondaryEndpoint, rs.LastHealthCheck)
	if err != nil {
		return fmt.Errorf("upsert recovery status: %w", err)
	}
	return nil
}

func (s *PostgresStore) Read(ctx context.Context) (RecoveryStatus, error) {
	const query = `
		SELECT current_status, message, updated_at, primary_endpoint, secondary_endpoint, last_health_check
		FROM recovery_status WHERE id = 1`

	var rs RecoveryStatus
	var state string
	var lastCheck sql.NullTime
	err := s.db.QueryRowContext(ctx, query).Scan(
		&state, &rs.Message, &rs.UpdatedAt,
		&rs.PrimaryEndpoint, &rs.SecondaryEndpoint, &lastCheck)
	if errors.Is(err, sql.ErrNoRows) {
		return RecoveryStatus{}, ErrNotFound
	}
	if err != nil {
		return RecoveryStatus{}, fmt.Errorf("read recovery status: %w", err)
	}

	rs.CurrentStatus = State(state)
	if lastCheck.Valid {
		rs.LastHealthCheck = lastCheck.Time
	}
	return rs, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
