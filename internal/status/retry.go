package status

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryWriter wraps a Store with bounded write retries. Loss of observability
// during a failover is itself an incident, so exhaustion is logged at error
// level; the caller keeps its own in-memory state either way.
type RetryWriter struct {
	store    Store
	attempts int
	delay    time.Duration
	logger   *zap.Logger
}

// NewRetryWriter creates a retrying writer around a store.
func NewRetryWriter(store Store, attempts int, delay time.Duration, logger *zap.Logger) *RetryWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attempts <= 0 {
		attempts = 3
	}
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &RetryWriter{store: store, attempts: attempts, delay: delay, logger: logger}
}

// Write persists the record, retrying up to the configured attempts.
func (w *RetryWriter) Write(ctx context.Context, rs RecoveryStatus) error {
	var lastErr error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if lastErr = w.store.Write(ctx, rs); lastErr == nil {
			return nil
		}

		if attempt < w.attempts {
			select {
			case <-ctx.Done():
				w.logger.Error("recovery status write abandoned: context cancelled",
					zap.String("status", string(rs.CurrentStatus)),
					zap.Error(lastErr))
				return ctx.Err()
			case <-time.After(w.delay):
			}
		}
	}

	w.logger.Error("recovery status write failed after retries; observability degraded",
		zap.Int("attempts", w.attempts),
		zap.String("status", string(rs.CurrentStatus)),
		zap.Error(lastErr))
	return lastErr
}

// Read delegates to the underlying store.
func (w *RetryWriter) Read(ctx context.Context) (RecoveryStatus, error) {
	return w.store.Read(ctx)
}
