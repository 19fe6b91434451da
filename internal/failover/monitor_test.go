package failover

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/failsafe/internal/probe"
	"github.com/FairForge/failsafe/internal/status"
)

// scriptedChecker answers per endpoint: the primary walks a scripted status
// sequence (last entry repeats), the secondary is always healthy.
type scriptedChecker struct {
	mu      sync.Mutex
	primary []probe.Status
	calls   int
}

func (c *scriptedChecker) Check(ctx context.Context, endpoint string) probe.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := probe.StatusHealthy
	if endpoint == "http://primary/health" {
		if c.calls < len(c.primary) {
			st = c.primary[c.calls]
		} else if len(c.primary) > 0 {
			st = c.primary[len(c.primary)-1]
		}
		c.calls++
	}

	code := 200
	if !st.Serving() {
		code = 0
	}
	return probe.Result{
		ServiceName: "app",
		Endpoint:    endpoint,
		Status:      st,
		StatusCode:  code,
		ObservedAt:  time.Now().UTC(),
	}
}

func testMonitor(t *testing.T, checker HealthChecker, controller ServiceController, router TrafficRouter, store status.Store) *MonitorLoop {
	t.Helper()
	orch := testOrchestrator(controller, router, checker, store, &countingSink{}, NewMemoryAttemptLog())
	return NewMonitorLoop(
		MonitorConfig{
			PrimaryEndpoint:   "http://primary/health",
			SecondaryEndpoint: "http://secondary/health",
			CheckInterval:     5 * time.Millisecond,
			FailoverThreshold: 3,
		},
		checker, orch, store, nil,
	)
}

// slowController stalls in StopPrimary so ticks can pile up behind an
// in-flight orchestration.
type slowController struct {
	delay    time.Duration
	stops    atomic.Int32
	promotes atomic.Int32
}

func (c *slowController) StopPrimary(ctx context.Context) error {
	time.Sleep(c.delay)
	c.stops.Add(1)
	return nil
}

func (c *slowController) PromoteSecondary(ctx context.Context) error {
	c.promotes.Add(1)
	return nil
}

func TestMonitorLoop_ThresholdTriggersExactlyOneFailover(t *testing.T) {
	checker := &scriptedChecker{primary: []probe.Status{probe.StatusUnreachable}}
	controller := &fakeController{}
	store := status.NewMemoryStore()

	loop := testMonitor(t, checker, controller, &fakeRouter{}, store)
	require.NoError(t, loop.Start(context.Background()))

	require.Eventually(t, func() bool {
		return !loop.Running()
	}, 2*time.Second, 5*time.Millisecond, "loop should exit after a successful failover")

	assert.Equal(t, int32(1), controller.stops.Load())
	assert.Equal(t, int32(1), controller.promotes.Load())

	rs, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.StateFailoverCompleted, rs.CurrentStatus)
}

func TestMonitorLoop_HealthyResultResetsCounter(t *testing.T) {
	// Two failures, then a recovery, repeating: the streak never reaches
	// the threshold of three.
	checker := &scriptedChecker{primary: []probe.Status{
		probe.StatusUnreachable, probe.StatusUnreachable, probe.StatusHealthy,
		probe.StatusUnreachable, probe.StatusUnreachable, probe.StatusHealthy,
		probe.StatusHealthy,
	}}
	controller := &fakeController{}

	loop := testMonitor(t, checker, controller, &fakeRouter{}, status.NewMemoryStore())
	require.NoError(t, loop.Start(context.Background()))

	time.Sleep(150 * time.Millisecond)
	loop.Stop()

	assert.Equal(t, int32(0), controller.stops.Load())
	assert.Equal(t, 0, loop.ConsecutiveFailures())
	assert.False(t, loop.Running())
}

func TestMonitorLoop_FailedOrchestrationResetsCounterAndContinues(t *testing.T) {
	checker := &scriptedChecker{primary: []probe.Status{probe.StatusUnhealthy}}
	controller := &fakeController{}
	router := &fakeRouter{err: errors.New("routing update rejected")}
	store := status.NewMemoryStore()

	loop := testMonitor(t, checker, controller, router, store)
	require.NoError(t, loop.Start(context.Background()))

	// The counter resets to zero after each failed orchestration, so a second
	// attempt only happens after three more failed probes.
	require.Eventually(t, func() bool {
		return router.calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, loop.Running())
	loop.Stop()

	rs, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.StateFailoverFailed, rs.CurrentStatus)
}

func TestMonitorLoop_StartWhileRunningFails(t *testing.T) {
	checker := &scriptedChecker{}
	loop := testMonitor(t, checker, &fakeController{}, &fakeRouter{}, status.NewMemoryStore())

	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	err := loop.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestMonitorLoop_StopIsIdempotent(t *testing.T) {
	loop := testMonitor(t, &scriptedChecker{}, &fakeController{}, &fakeRouter{}, status.NewMemoryStore())

	require.NoError(t, loop.Start(context.Background()))
	loop.Stop()
	loop.Stop()
	assert.False(t, loop.Running())
}

func TestMonitorLoop_RestartAfterStop(t *testing.T) {
	store := status.NewMemoryStore()
	loop := testMonitor(t, &scriptedChecker{}, &fakeController{}, &fakeRouter{}, store)

	require.NoError(t, loop.Start(context.Background()))
	loop.Stop()
	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	assert.True(t, loop.Running())
}

func TestMonitorLoop_TriggerFailoverDefaultsReason(t *testing.T) {
	controller := &fakeController{}
	store := status.NewMemoryStore()
	orch := testOrchestrator(controller, &fakeRouter{}, &scriptedChecker{}, store, &countingSink{}, NewMemoryAttemptLog())
	loop := NewMonitorLoop(
		MonitorConfig{
			PrimaryEndpoint:   "http://primary/health",
			SecondaryEndpoint: "http://secondary/health",
			CheckInterval:     time.Hour,
			FailoverThreshold: 3,
		},
		&scriptedChecker{}, orch, store, nil,
	)

	attempt, err := loop.TriggerFailover(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "manual_trigger", attempt.Reason)
	assert.True(t, attempt.Success)
}

func TestMonitorLoop_TriggerFailoverStopsLoopOnSuccess(t *testing.T) {
	controller := &fakeController{}
	store := status.NewMemoryStore()
	checker := &scriptedChecker{}
	orch := testOrchestrator(controller, &fakeRouter{}, checker, store, &countingSink{}, NewMemoryAttemptLog())
	loop := NewMonitorLoop(
		MonitorConfig{
			PrimaryEndpoint:   "http://primary/health",
			SecondaryEndpoint: "http://secondary/health",
			CheckInterval:     time.Hour,
			FailoverThreshold: 3,
		},
		checker, orch, store, nil,
	)

	require.NoError(t, loop.Start(context.Background()))
	_, err := loop.TriggerFailover(context.Background(), "planned maintenance")
	require.NoError(t, err)
	assert.False(t, loop.Running())
}

func TestMonitorLoop_ManualFailoverWhileArmedRunsOnce(t *testing.T) {
	// The primary is down and the loop is armed; a slow manual failover
	// lets the ticker cross the threshold and queue a second orchestration
	// behind the manual one. Only one failover may execute.
	checker := &scriptedChecker{primary: []probe.Status{probe.StatusUnreachable}}
	controller := &slowController{delay: 200 * time.Millisecond}
	store := status.NewMemoryStore()

	loop := testMonitor(t, checker, controller, &fakeRouter{}, store)
	require.NoError(t, loop.Start(context.Background()))

	attempt, err := loop.TriggerFailover(context.Background(), "planned maintenance")
	require.NoError(t, err)
	assert.True(t, attempt.Success)

	require.Eventually(t, func() bool {
		return !loop.Running()
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(1), controller.stops.Load())
	assert.Equal(t, int32(1), controller.promotes.Load())

	rs, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.StateFailoverCompleted, rs.CurrentStatus)
}

func TestMonitorLoop_RearmAllowsNewFailover(t *testing.T) {
	checker := &scriptedChecker{primary: []probe.Status{probe.StatusUnreachable}}
	controller := &fakeController{}
	store := status.NewMemoryStore()

	loop := testMonitor(t, checker, controller, &fakeRouter{}, store)
	require.NoError(t, loop.Start(context.Background()))
	require.Eventually(t, func() bool {
		return !loop.Running()
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), controller.stops.Load())

	// Explicit re-arm acknowledges the new topology; a fresh failure streak
	// may fail over again.
	require.NoError(t, loop.Start(context.Background()))
	require.Eventually(t, func() bool {
		return !loop.Running()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), controller.stops.Load())
}

func TestMonitorLoop_StatusWriteKeepsInFlightFailover(t *testing.T) {
	store := status.NewMemoryStore()
	loop := testMonitor(t, &scriptedChecker{}, &fakeController{}, &fakeRouter{}, store)

	require.NoError(t, store.Write(context.Background(), status.RecoveryStatus{
		CurrentStatus: status.StateFailoverInitiated,
		Message:       "failover initiated: primary_system_failure",
		UpdatedAt:     time.Now().UTC(),
	}))

	// A healthy-probe write must not downgrade an orchestration in flight.
	loop.writeStatus(context.Background(), "primary healthy (0/3 failures)", time.Now().UTC(), false)

	rs, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.StateFailoverInitiated, rs.CurrentStatus)
}

func TestFileAttemptLog_AppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempts.jsonl")
	log, err := NewFileAttemptLog(path)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		a := Attempt{
			AttemptID:        "attempt-" + string(rune('a'+i)),
			Reason:           ReasonPrimaryFailure,
			StartedAt:        time.Now().UTC(),
			RTOTargetSeconds: 300,
		}
		a.finalize(time.Now().UTC(), i%2 == 0, "")
		require.NoError(t, log.Append(a))
	}

	all, err := log.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	last2, err := log.Recent(2)
	require.NoError(t, err)
	require.Len(t, last2, 2)
	assert.Equal(t, "attempt-e", last2[1].AttemptID)
}

func TestFileAttemptLog_MissingFileIsEmpty(t *testing.T) {
	log, err := NewFileAttemptLog(filepath.Join(t.TempDir(), "never-written.jsonl"))
	require.NoError(t, err)

	attempts, err := log.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}
