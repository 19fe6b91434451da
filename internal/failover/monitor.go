package failover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/failsafe/internal/probe"
	"github.com/FairForge/failsafe/internal/status"
)

// MonitorConfig drives the health-check loop.
type MonitorConfig struct {
	PrimaryEndpoint   string
	SecondaryEndpoint string
	CheckInterval     time.Duration
	FailoverThreshold int
}

// MonitorLoop probes the primary on a fixed interval, counts consecutive
// failures, and hands control to the orchestrator when the threshold is
// crossed. A successful failover ends the loop: re-arming against the new
// primary is an explicit operator action.
type MonitorLoop struct {
	config       MonitorConfig
	checker      HealthChecker
	orchestrator *Orchestrator
	store        status.Store
	metrics      *Metrics
	logger       *zap.Logger

	mu                  sync.Mutex
	running             bool
	consecutiveFailures int
	cancel              context.CancelFunc
	done                chan struct{}
}

// NewMonitorLoop creates a monitor loop.
func NewMonitorLoop(
	config MonitorConfig,
	checker HealthChecker,
	orchestrator *Orchestrator,
	store status.Store,
	logger *zap.Logger,
) *MonitorLoop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = 30 * time.Second
	}
	if config.FailoverThreshold <= 0 {
		config.FailoverThreshold = 3
	}

	return &MonitorLoop{
		config:       config,
		checker:      checker,
		orchestrator: orchestrator,
		store:        store,
		metrics:      NewMetrics(),
		logger:       logger,
	}
}

// Start arms the loop. It returns an error if monitoring is already running.
func (m *MonitorLoop) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitoring already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.consecutiveFailures = 0
	m.cancel = cancel
	m.done = make(chan struct{})
	m.metrics.MonitorRunning.Set(1)
	m.metrics.ConsecutiveFailures.Set(0)

	// Explicit re-arm is the operator's acknowledgment of the new topology.
	m.orchestrator.Reset()

	m.writeStatus(loopCtx, "monitoring started", time.Time{}, false)
	m.logger.Info("monitoring started",
		zap.String("primary", m.config.PrimaryEndpoint),
		zap.Duration("interval", m.config.CheckInterval),
		zap.Int("failover_threshold", m.config.FailoverThreshold))

	go m.run(loopCtx)
	return nil
}

// Stop disarms the loop and waits for it to finish. An in-flight failover
// attempt always reaches a terminal state before the loop exits.
func (m *MonitorLoop) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
}

// Running reports whether the loop is armed.
func (m *MonitorLoop) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ConsecutiveFailures returns the current failure streak.
func (m *MonitorLoop) ConsecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveFailures
}

// TriggerFailover runs an operator-initiated failover through the same
// orchestrator. It does not require the loop to be running.
func (m *MonitorLoop) TriggerFailover(ctx context.Context, reason string) (Attempt, error) {
	if reason == "" {
		reason = "manual_trigger"
	}
	attempt, err := m.orchestrator.Run(ctx, reason)
	if err == nil {
		m.Stop()
	}
	return attempt, err
}

func (m *MonitorLoop) run(ctx context.Context) {
	defer m.finish()

	// The orchestrator must not be killed mid-sequence by Stop, so ticks
	// run against the background context; ctx only gates loop continuation.
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.writeStatus(context.Background(), "monitoring stopped", time.Time{}, true)
			m.logger.Info("monitoring stopped")
			return
		case <-ticker.C:
			if done := m.tick(ctx); done {
				return
			}
		}
	}
}

// tick performs one probe cycle. It returns true when the loop should exit
// (successful failover).
func (m *MonitorLoop) tick(ctx context.Context) bool {
	result := m.checker.Check(ctx, m.config.PrimaryEndpoint)
	m.metrics.ProbeDuration.Observe(float64(result.ResponseTimeMs) / 1000.0)

	m.mu.Lock()
	if result.Status == probe.StatusHealthy {
		m.consecutiveFailures = 0
	} else {
		m.consecutiveFailures++
	}
	failures := m.consecutiveFailures
	m.mu.Unlock()

	m.metrics.ConsecutiveFailures.Set(float64(failures))

	message := fmt.Sprintf("primary %s (%d/%d failures)",
		result.Status, failures, m.config.FailoverThreshold)
	// A healthy primary clears any lingering failover_failed state; while it
	// is still down the terminal state stays visible to dashboards.
	m.writeStatus(ctx, message, result.ObservedAt, result.Status != probe.StatusHealthy)

	m.logger.Debug("health check",
		zap.String("status", string(result.Status)),
		zap.Int("status_code", result.StatusCode),
		zap.Int64("response_time_ms", result.ResponseTimeMs),
		zap.Int("consecutive_failures", failures))

	if failures < m.config.FailoverThreshold {
		return false
	}

	m.logger.Error("failover threshold breached",
		zap.Int("consecutive_failures", failures),
		zap.Int("threshold", m.config.FailoverThreshold))

	// The attempt must reach a terminal state even if the loop is being
	// stopped, so it runs on a fresh context.
	attempt, err := m.orchestrator.Run(context.Background(), ReasonPrimaryFailure)
	if errors.Is(err, ErrAlreadyCompleted) {
		// A manual failover won the race while this run was queued; the
		// topology has already switched.
		m.logger.Info("failover already completed, exiting monitor loop")
		return true
	}
	if err == nil && attempt.Success {
		// One failover per primary incarnation. The operator re-arms
		// monitoring against the new primary explicitly.
		return true
	}

	// A failed orchestration must not trigger an immediate repeat storm.
	m.mu.Lock()
	m.consecutiveFailures = 0
	m.mu.Unlock()
	m.metrics.ConsecutiveFailures.Set(0)

	return false
}

func (m *MonitorLoop) finish() {
	m.mu.Lock()
	m.running = false
	m.cancel() // release the derived context when the loop exits on its own
	close(m.done)
	m.mu.Unlock()
	m.metrics.MonitorRunning.Set(0)
}

// writeStatus updates the status record from the loop's own bookkeeping.
// An in-flight failover_initiated state belongs to the orchestrator and is
// never overwritten here. With preserveTerminal set, a
// failover_completed/failover_failed state is kept too; otherwise the record
// returns to monitoring.
func (m *MonitorLoop) writeStatus(ctx context.Context, message string, lastCheck time.Time, preserveTerminal bool) {
	rs, err := m.store.Read(ctx)
	if err != nil {
		rs = status.RecoveryStatus{}
	}

	keep := rs.CurrentStatus == status.StateFailoverInitiated ||
		(preserveTerminal && (rs.CurrentStatus == status.StateFailoverCompleted ||
			rs.CurrentStatus == status.StateFailoverFailed))
	if !keep {
		rs.CurrentStatus = status.StateMonitoring
	}

	rs.Message = message
	rs.UpdatedAt = time.Now().UTC()
	rs.PrimaryEndpoint = m.config.PrimaryEndpoint
	rs.SecondaryEndpoint = m.config.SecondaryEndpoint
	if !lastCheck.IsZero() {
		rs.LastHealthCheck = lastCheck
	}

	if err := m.store.Write(ctx, rs); err != nil {
		m.logger.Error("status write failed", zap.Error(err))
	}
}
