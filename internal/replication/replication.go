package replication

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Status is the replication health between primary and secondary stores.
type Status struct {
	Healthy    bool      `json:"healthy"`
	LagSeconds float64   `json:"lag_seconds"`
	CheckedAt  time.Time `json:"checked_at"`
	Error      string    `json:"error,omitempty"`
}

// StatusProvider reports raw replication lag from the underlying engine.
type StatusProvider interface {
	Lag(ctx context.Context) (time.Duration, error)
}

// Monitor evaluates replication lag against the configured maximum.
type Monitor struct {
	provider     StatusProvider
	maxLag       time.Duration
	queryTimeout time.Duration
	logger       *zap.Logger
}

// NewMonitor creates a replication monitor.
func NewMonitor(provider StatusProvider, maxLag, queryTimeout time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLag <= 0 {
		maxLag = 5 * time.Minute
	}
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}

	return &Monitor{
		provider:     provider,
		maxLag:       maxLag,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// Status queries the provider once. Unreachable stores are reported as
// unhealthy with a sentinel lag of max+1, never as an error.
func (m *Monitor) Status(ctx context.Context) Status {
	status := Status{CheckedAt: time.Now().UTC()}

	if m.provider == nil {
		status.LagSeconds = m.sentinelLag()
		status.Error = "no replication provider configured"
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()

	lag, err := m.provider.Lag(ctx)
	if err != nil {
		status.LagSeconds = m.sentinelLag()
		status.Error = err.Error()
		m.logger.Warn("replication lag query failed", zap.Error(err))
		return status
	}

	if lag < 0 {
		lag = 0
	}
	status.LagSeconds = lag.Seconds()
	status.Healthy = lag <= m.maxLag

	return status
}

// MaxLag returns the configured maximum acceptable lag.
func (m *Monitor) MaxLag() time.Duration {
	return m.maxLag
}

func (m *Monitor) sentinelLag() float64 {
	return m.maxLag.Seconds() + 1
}
