package failover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/failsafe/internal/notify"
	"github.com/FairForge/failsafe/internal/probe"
	"github.com/FairForge/failsafe/internal/status"
)

// Orchestration step names, recorded on failure.
const (
	StepStoppingPrimary    = "stopping_primary"
	StepPromotingSecondary = "promoting_secondary"
	StepUpdatingRouting    = "updating_routing"
	StepVerifying          = "verifying"
)

// ReasonPrimaryFailure is the reason attached to threshold-triggered failovers.
const ReasonPrimaryFailure = "primary_system_failure"

// ErrAlreadyCompleted is returned by Run once a failover has succeeded for
// the current topology. Re-arming monitoring resets the orchestrator; until
// then a queued or repeated run must not re-execute stop/promote/reroute
// against the already-promoted secondary.
var ErrAlreadyCompleted = errors.New("failover already completed for this topology")

// ServiceController manages the primary/secondary application processes.
type ServiceController interface {
	StopPrimary(ctx context.Context) error
	PromoteSecondary(ctx context.Context) error
}

// TrafficRouter switches client traffic to the secondary.
type TrafficRouter interface {
	RouteToSecondary(ctx context.Context) error
}

// HealthChecker verifies the secondary is serving after the switch.
type HealthChecker interface {
	Check(ctx context.Context, endpoint string) probe.Result
}

// OrchestratorConfig bounds the orchestration steps.
type OrchestratorConfig struct {
	PrimaryEndpoint   string
	SecondaryEndpoint string
	RTOTarget         time.Duration
	StepTimeout       time.Duration
	VerifyRetries     int
	VerifyDelay       time.Duration
}

// Orchestrator sequences primary-stop, secondary-promotion, routing update
// and verification. Each step gets one bounded attempt; there are no silent
// retries across steps, so partial failures surface immediately.
type Orchestrator struct {
	config     OrchestratorConfig
	controller ServiceController
	router     TrafficRouter
	checker    HealthChecker
	store      status.Store
	dispatcher *notify.Dispatcher
	log        AttemptLog
	metrics    *Metrics
	logger     *zap.Logger

	mu        sync.Mutex // serializes orchestration runs; guards completed
	completed bool
}

// NewOrchestrator wires the failover state machine.
func NewOrchestrator(
	config OrchestratorConfig,
	controller ServiceController,
	router TrafficRouter,
	checker HealthChecker,
	store status.Store,
	dispatcher *notify.Dispatcher,
	log AttemptLog,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.StepTimeout <= 0 {
		config.StepTimeout = 2 * time.Minute
	}
	if config.VerifyRetries <= 0 {
		config.VerifyRetries = 10
	}
	if config.VerifyDelay <= 0 {
		config.VerifyDelay = 15 * time.Second
	}

	return &Orchestrator{
		config:     config,
		controller: controller,
		router:     router,
		checker:    checker,
		store:      store,
		dispatcher: dispatcher,
		log:        log,
		metrics:    NewMetrics(),
		logger:     logger,
	}
}

// Run executes one failover attempt to a terminal state. The returned
// Attempt is finalized; the error mirrors Attempt.Success for callers that
// branch on it.
func (o *Orchestrator) Run(ctx context.Context, reason string) (Attempt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// A run that queued behind a successful one (manual trigger racing the
	// monitor loop) must not fail over twice.
	if o.completed {
		return Attempt{}, ErrAlreadyCompleted
	}

	attempt := Attempt{
		AttemptID:        uuid.New().String(),
		Reason:           reason,
		StartedAt:        time.Now().UTC(),
		RTOTargetSeconds: int64(o.config.RTOTarget.Seconds()),
	}

	o.logger.Warn("failover initiated",
		zap.String("attempt_id", attempt.AttemptID),
		zap.String("reason", reason))

	o.writeStatus(ctx, status.StateFailoverInitiated,
		fmt.Sprintf("failover initiated: %s", reason))
	o.notify(ctx, notify.EventFailoverInitiated, notify.SeverityHigh,
		fmt.Sprintf("failover initiated (attempt %s): %s", attempt.AttemptID, reason))

	if err := o.runStep(ctx, StepStoppingPrimary, o.controller.StopPrimary); err != nil {
		return o.fail(ctx, attempt, StepStoppingPrimary, err), err
	}

	if err := o.runStep(ctx, StepPromotingSecondary, o.controller.PromoteSecondary); err != nil {
		return o.fail(ctx, attempt, StepPromotingSecondary, err), err
	}

	if err := o.runStep(ctx, StepUpdatingRouting, o.router.RouteToSecondary); err != nil {
		return o.fail(ctx, attempt, StepUpdatingRouting, err), err
	}

	if err := o.verifySecondary(ctx); err != nil {
		return o.fail(ctx, attempt, StepVerifying, err), err
	}

	attempt.finalize(time.Now().UTC(), true, "")
	o.completed = true
	o.appendAttempt(attempt)
	o.metrics.FailoverAttempts.WithLabelValues("success").Inc()

	o.writeStatus(ctx, status.StateFailoverCompleted,
		fmt.Sprintf("failover completed in %ds (RTO met: %t)", attempt.DurationSeconds, attempt.RTOMet))
	o.notify(ctx, notify.EventFailoverCompleted, notify.SeverityHigh,
		fmt.Sprintf("failover completed in %ds, secondary serving traffic", attempt.DurationSeconds))

	o.logger.Info("failover completed",
		zap.String("attempt_id", attempt.AttemptID),
		zap.Int64("duration_seconds", attempt.DurationSeconds),
		zap.Bool("rto_met", attempt.RTOMet))

	return attempt, nil
}

// Reset re-arms the orchestrator for a new primary incarnation. Called when
// an operator explicitly restarts monitoring after a completed failover.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = false
}

// runStep executes one step under its own bounded timeout.
func (o *Orchestrator) runStep(ctx context.Context, name string, fn func(context.Context) error) error {
	o.logger.Info("failover step starting", zap.String("step", name))

	stepCtx, cancel := context.WithTimeout(ctx, o.config.StepTimeout)
	defer cancel()

	if err := fn(stepCtx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// verifySecondary polls the secondary health endpoint with a fixed delay.
// A healthy or degraded result counts as serving.
func (o *Orchestrator) verifySecondary(ctx context.Context) error {
	var last probe.Result
	for i := 0; i < o.config.VerifyRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("verification cancelled: %w", ctx.Err())
			case <-time.After(o.config.VerifyDelay):
			}
		}

		last = o.checker.Check(ctx, o.config.SecondaryEndpoint)
		if last.Status.Serving() {
			o.logger.Info("secondary verified",
				zap.String("status", string(last.Status)),
				zap.Int("attempts", i+1))
			return nil
		}

		o.logger.Warn("secondary not serving yet",
			zap.String("status", string(last.Status)),
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", o.config.VerifyRetries))
	}

	return fmt.Errorf("secondary never became healthy after %d checks (last: %s)",
		o.config.VerifyRetries, last.Status)
}

// fail finalizes the attempt at a failed terminal state.
func (o *Orchestrator) fail(ctx context.Context, attempt Attempt, step string, cause error) Attempt {
	attempt.finalize(time.Now().UTC(), false, step)
	o.appendAttempt(attempt)
	o.metrics.FailoverAttempts.WithLabelValues("failure").Inc()

	o.logger.Error("failover failed",
		zap.String("attempt_id", attempt.AttemptID),
		zap.String("step", step),
		zap.Error(cause))

	o.writeStatus(ctx, status.StateFailoverFailed,
		fmt.Sprintf("failover failed at %s: %v", step, cause))
	o.notify(ctx, notify.EventFailoverFailed, notify.SeverityCritical,
		fmt.Sprintf("failover failed at %s: %v", step, cause))

	return attempt
}

func (o *Orchestrator) writeStatus(ctx context.Context, state status.State, message string) {
	rs, err := o.store.Read(ctx)
	if err != nil {
		rs = status.RecoveryStatus{}
	}
	rs.CurrentStatus = state
	rs.Message = message
	rs.UpdatedAt = time.Now().UTC()
	rs.PrimaryEndpoint = o.config.PrimaryEndpoint
	rs.SecondaryEndpoint = o.config.SecondaryEndpoint

	if err := o.store.Write(ctx, rs); err != nil {
		// The orchestration keeps its own state; observability loss is
		// logged by the store's retry layer.
		o.logger.Error("status write failed", zap.Error(err))
	}
}

func (o *Orchestrator) notify(ctx context.Context, eventType string, severity notify.Severity, message string) {
	if o.dispatcher == nil {
		return
	}
	o.dispatcher.Notify(ctx, eventType, severity, message)
}

func (o *Orchestrator) appendAttempt(attempt Attempt) {
	if o.log == nil {
		return
	}
	if err := o.log.Append(attempt); err != nil {
		o.logger.Error("attempt log append failed",
			zap.String("attempt_id", attempt.AttemptID),
			zap.Error(err))
	}
}
