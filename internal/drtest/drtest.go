package drtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/failsafe/internal/backup"
	"github.com/FairForge/failsafe/internal/notify"
	"github.com/FairForge/failsafe/internal/probe"
	"github.com/FairForge/failsafe/internal/replication"
	"github.com/FairForge/failsafe/internal/status"
)

// Check names as they appear in reports.
const (
	CheckPrimaryHealth   = "primary_health"
	CheckSecondaryHealth = "secondary_health"
	CheckReplication     = "replication_lag"
	CheckBackupIntegrity = "backup_integrity"
)

// CheckResult is one readiness finding. A failed check is a finding, not an
// error: the run always completes and reports everything it saw.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Report summarizes one disaster-recovery readiness test.
type Report struct {
	ReportID         string        `json:"report_id"`
	StartedAt        time.Time     `json:"started_at"`
	CompletedAt      time.Time     `json:"completed_at"`
	RTOTargetSeconds int64         `json:"rto_target_seconds"`
	RPOTargetSeconds int64         `json:"rpo_target_seconds"`
	Checks           []CheckResult `json:"checks"`
	Passed           bool          `json:"passed"`
}

// HealthChecker probes an endpoint and classifies the result.
type HealthChecker interface {
	Check(ctx context.Context, endpoint string) probe.Result
}

// RunnerConfig carries the endpoints and recovery objectives under test.
type RunnerConfig struct {
	PrimaryEndpoint   string
	SecondaryEndpoint string
	RTOTarget         time.Duration
	RPOTarget         time.Duration
	ReportDir         string
}

// Runner executes read-only DR readiness tests. It exercises the same
// probes the failover path depends on but never stops, promotes or
// reroutes anything, so it is safe to run against production on a schedule.
type Runner struct {
	config      RunnerConfig
	checker     HealthChecker
	replication *replication.Monitor
	verifier    *backup.Verifier
	catalog     backup.Catalog
	store       status.Store
	dispatcher  *notify.Dispatcher
	logger      *zap.Logger
}

// NewRunner wires a DR test runner.
func NewRunner(
	config RunnerConfig,
	checker HealthChecker,
	replicationMonitor *replication.Monitor,
	verifier *backup.Verifier,
	catalog backup.Catalog,
	store status.Store,
	dispatcher *notify.Dispatcher,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		config:      config,
		checker:     checker,
		replication: replicationMonitor,
		verifier:    verifier,
		catalog:     catalog,
		store:       store,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// Run performs all readiness checks and persists the report. The returned
// error covers report persistence only; check failures live in the report.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{
		ReportID:         uuid.New().String(),
		StartedAt:        time.Now().UTC(),
		RTOTargetSeconds: int64(r.config.RTOTarget.Seconds()),
		RPOTargetSeconds: int64(r.config.RPOTarget.Seconds()),
	}

	r.logger.Info("dr test starting", zap.String("report_id", report.ReportID))

	report.Checks = append(report.Checks,
		r.checkEndpoint(ctx, CheckPrimaryHealth, r.config.PrimaryEndpoint),
		r.checkEndpoint(ctx, CheckSecondaryHealth, r.config.SecondaryEndpoint),
		r.checkReplication(ctx),
		r.checkBackups(ctx),
	)

	report.Passed = true
	for _, c := range report.Checks {
		if !c.Passed {
			report.Passed = false
			break
		}
	}
	report.CompletedAt = time.Now().UTC()

	r.refreshStatus(ctx, report)
	r.notifyResult(ctx, report)

	path, err := r.persist(report)
	if err != nil {
		r.logger.Error("dr report persistence failed",
			zap.String("report_id", report.ReportID),
			zap.Error(err))
		return report, err
	}

	r.logger.Info("dr test completed",
		zap.String("report_id", report.ReportID),
		zap.Bool("passed", report.Passed),
		zap.String("report_path", path))

	return report, nil
}

func (r *Runner) checkEndpoint(ctx context.Context, name, endpoint string) CheckResult {
	result := r.checker.Check(ctx, endpoint)
	check := CheckResult{
		Name:   name,
		Passed: result.Status.Serving(),
		Detail: fmt.Sprintf("%s (%d ms)", result.Status, result.ResponseTimeMs),
	}
	if result.Error != "" {
		check.Detail = fmt.Sprintf("%s: %s", result.Status, result.Error)
	}
	return check
}

func (r *Runner) checkReplication(ctx context.Context) CheckResult {
	if r.replication == nil {
		return CheckResult{
			Name:   CheckReplication,
			Passed: false,
			Detail: "replication monitoring not configured",
		}
	}

	rs := r.replication.Status(ctx)
	check := CheckResult{
		Name:   CheckReplication,
		Passed: rs.Healthy && rs.LagSeconds <= r.config.RPOTarget.Seconds(),
		Detail: fmt.Sprintf("lag %.1fs (rpo target %.0fs)", rs.LagSeconds, r.config.RPOTarget.Seconds()),
	}
	if rs.Error != "" {
		check.Detail = rs.Error
	}
	return check
}

func (r *Runner) checkBackups(ctx context.Context) CheckResult {
	if r.verifier == nil || r.catalog == nil {
		return CheckResult{
			Name:   CheckBackupIntegrity,
			Passed: false,
			Detail: "backup verification not configured",
		}
	}

	v := r.verifier.VerifyLatest(ctx, r.catalog)
	check := CheckResult{
		Name:   CheckBackupIntegrity,
		Passed: v.Valid,
		Detail: v.Detail,
	}
	if v.Valid {
		check.Detail = fmt.Sprintf("backup %s verified", v.BackupID)
	}
	return check
}

// refreshStatus records when the test ran without touching the failover
// lifecycle state the monitor and orchestrator own.
func (r *Runner) refreshStatus(ctx context.Context, report Report) {
	if r.store == nil {
		return
	}

	rs, err := r.store.Read(ctx)
	if err != nil {
		rs = status.RecoveryStatus{CurrentStatus: status.StateInitialized}
	}

	rs.Message = fmt.Sprintf("dr test %s: passed=%t", report.ReportID, report.Passed)
	rs.UpdatedAt = time.Now().UTC()
	rs.LastHealthCheck = report.CompletedAt

	if err := r.store.Write(ctx, rs); err != nil {
		r.logger.Error("status refresh failed", zap.Error(err))
	}
}

func (r *Runner) notifyResult(ctx context.Context, report Report) {
	if r.dispatcher == nil {
		return
	}

	severity := notify.SeverityLow
	if !report.Passed {
		severity = notify.SeverityMedium
	}
	r.dispatcher.Notify(ctx, notify.EventDRTestCompleted, severity,
		fmt.Sprintf("dr test %s completed: passed=%t", report.ReportID, report.Passed))
}

func (r *Runner) persist(report Report) (string, error) {
	if r.config.ReportDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(r.config.ReportDir, 0o750); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	name := fmt.Sprintf("dr-test-%s-%s.json",
		report.StartedAt.Format("20060102-150405"), report.ReportID[:8])
	path := filepath.Join(r.config.ReportDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil { // #nosec G306
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
