package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/failsafe/internal/backup"
	"github.com/FairForge/failsafe/internal/config"
	"github.com/FairForge/failsafe/internal/drtest"
	"github.com/FairForge/failsafe/internal/failover"
	"github.com/FairForge/failsafe/internal/probe"
	"github.com/FairForge/failsafe/internal/replication"
	"github.com/FairForge/failsafe/internal/status"
)

type stubController struct {
	stops    atomic.Int32
	promotes atomic.Int32
}

func (c *stubController) StopPrimary(ctx context.Context) error {
	c.stops.Add(1)
	return nil
}

func (c *stubController) PromoteSecondary(ctx context.Context) error {
	c.promotes.Add(1)
	return nil
}

type stubRouter struct{ err error }

func (r *stubRouter) RouteToSecondary(ctx context.Context) error { return r.err }

type healthyChecker struct{}

func (healthyChecker) Check(ctx context.Context, endpoint string) probe.Result {
	return probe.Result{
		ServiceName:    "app",
		Endpoint:       endpoint,
		Status:         probe.StatusHealthy,
		StatusCode:     200,
		ResponseTimeMs: 5,
		ObservedAt:     time.Now().UTC(),
	}
}

type stubLag struct{}

func (stubLag) Lag(ctx context.Context) (time.Duration, error) { return time.Second, nil }

func writeBackupFixture(t *testing.T, dir string) {
	t.Helper()
	content := []byte("backup payload")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nightly.tar.gz"), content, 0o644))

	sum := sha256.Sum256(content)
	m := backup.Manifest{
		BackupID:  "nightly.tar.gz",
		SHA256:    hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(content)),
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nightly.tar.gz.manifest.json"), data, 0o644))
}

func testServer(t *testing.T, routerErr error) (*Server, *stubController, status.Store) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Monitor.PrimaryEndpoint = "http://primary/health"
	cfg.Monitor.SecondaryEndpoint = "http://secondary/health"
	cfg.Monitor.CheckInterval = time.Hour

	store := status.NewMemoryStore()
	attempts := failover.NewMemoryAttemptLog()
	controller := &stubController{}
	checker := healthyChecker{}

	orch := failover.NewOrchestrator(
		failover.OrchestratorConfig{
			PrimaryEndpoint:   cfg.Monitor.PrimaryEndpoint,
			SecondaryEndpoint: cfg.Monitor.SecondaryEndpoint,
			RTOTarget:         cfg.Failover.RTOTarget,
			StepTimeout:       time.Second,
			VerifyRetries:     2,
			VerifyDelay:       time.Millisecond,
		},
		controller, &stubRouter{err: routerErr}, checker, store, nil, attempts, nil,
	)

	loop := failover.NewMonitorLoop(
		failover.MonitorConfig{
			PrimaryEndpoint:   cfg.Monitor.PrimaryEndpoint,
			SecondaryEndpoint: cfg.Monitor.SecondaryEndpoint,
			CheckInterval:     cfg.Monitor.CheckInterval,
			FailoverThreshold: cfg.Monitor.FailoverThreshold,
		},
		checker, orch, store, nil,
	)
	t.Cleanup(loop.Stop)

	backupDir := t.TempDir()
	writeBackupFixture(t, backupDir)

	runner := drtest.NewRunner(
		drtest.RunnerConfig{
			PrimaryEndpoint:   cfg.Monitor.PrimaryEndpoint,
			SecondaryEndpoint: cfg.Monitor.SecondaryEndpoint,
			RTOTarget:         cfg.Failover.RTOTarget,
			RPOTarget:         cfg.Failover.RPOTarget,
			ReportDir:         t.TempDir(),
		},
		checker,
		replication.NewMonitor(stubLag{}, time.Minute, time.Second, nil),
		backup.NewVerifier(nil),
		backup.NewDirCatalog(backupDir),
		store,
		nil,
		nil,
	)

	return NewServer(cfg, nil, loop, runner, store, attempts, nil), controller, store
}

func do(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _, _ := testServer(t, nil)

	rec := do(t, s, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["monitoring_running"])
}

func TestServer_MonitorLifecycle(t *testing.T) {
	s, _, _ := testServer(t, nil)

	rec := do(t, s, "POST", "/api/v1/monitor/start", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, "POST", "/api/v1/monitor/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, "POST", "/api/v1/monitor/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, "POST", "/api/v1/monitor/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_TriggerFailover(t *testing.T) {
	s, controller, store := testServer(t, nil)

	rec := do(t, s, "POST", "/api/v1/failover", []byte(`{"reason":"planned maintenance"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var attempt failover.Attempt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attempt))
	assert.True(t, attempt.Success)
	assert.Equal(t, "planned maintenance", attempt.Reason)
	assert.Equal(t, int32(1), controller.stops.Load())

	rs, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.StateFailoverCompleted, rs.CurrentStatus)
}

func TestServer_TriggerFailoverDefaultsReason(t *testing.T) {
	s, _, _ := testServer(t, nil)

	rec := do(t, s, "POST", "/api/v1/failover", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var attempt failover.Attempt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attempt))
	assert.Equal(t, "manual_trigger", attempt.Reason)
}

func TestServer_TriggerFailoverTwiceConflicts(t *testing.T) {
	s, controller, _ := testServer(t, nil)

	rec := do(t, s, "POST", "/api/v1/failover", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The topology already switched; a repeat trigger must not fail over again.
	rec = do(t, s, "POST", "/api/v1/failover", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int32(1), controller.stops.Load())
}

func TestServer_TriggerFailoverFailure(t *testing.T) {
	s, _, store := testServer(t, errors.New("routing update rejected"))

	rec := do(t, s, "POST", "/api/v1/failover", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var attempt failover.Attempt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attempt))
	assert.False(t, attempt.Success)
	assert.Equal(t, failover.StepUpdatingRouting, attempt.FailedStep)

	rs, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.StateFailoverFailed, rs.CurrentStatus)
}

func TestServer_RunDRTest(t *testing.T) {
	s, controller, _ := testServer(t, nil)

	rec := do(t, s, "POST", "/api/v1/dr-test", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report drtest.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Passed)
	assert.Len(t, report.Checks, 4)

	// DR tests are read-only.
	assert.Equal(t, int32(0), controller.stops.Load())
}

func TestServer_GetStatusBeforeAnyActivity(t *testing.T) {
	s, _, _ := testServer(t, nil)

	rec := do(t, s, "GET", "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rs status.RecoveryStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rs))
	assert.Equal(t, status.StateInitialized, rs.CurrentStatus)
}

func TestServer_GetAttempts(t *testing.T) {
	s, _, _ := testServer(t, nil)

	rec := do(t, s, "POST", "/api/v1/failover", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, "GET", "/api/v1/attempts?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp attemptsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Attempts, 1)
	assert.Equal(t, 1, resp.Stats.TotalAttempts)
	assert.Equal(t, 100.0, resp.Stats.SuccessRate)
}

func TestServer_GetAttemptsRejectsBadLimit(t *testing.T) {
	s, _, _ := testServer(t, nil)

	rec := do(t, s, "GET", "/api/v1/attempts?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	s, _, _ := testServer(t, nil)

	rec := do(t, s, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "failsafe_")
}
