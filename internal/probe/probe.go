package probe

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Status classifies a single health check outcome.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnhealthy   Status = "unhealthy"
	StatusUnreachable Status = "unreachable"
)

// Serving reports whether the endpoint is answering traffic at all.
// A degraded endpoint is slow but still serving.
func (s Status) Serving() bool {
	return s == StatusHealthy || s == StatusDegraded
}

// Result is the immutable outcome of one probe.
type Result struct {
	ServiceName    string    `json:"service_name"`
	Endpoint       string    `json:"endpoint"`
	Status         Status    `json:"status"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	ObservedAt     time.Time `json:"observed_at"`
	Error          string    `json:"error,omitempty"`
}

// Prober performs bounded-timeout HTTP health checks.
type Prober struct {
	serviceName       string
	timeout           time.Duration
	degradedThreshold time.Duration
	client            *http.Client
	logger            *zap.Logger
}

// NewProber creates a prober. A nil logger is replaced with a no-op one.
func NewProber(serviceName string, timeout, degradedThreshold time.Duration, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if degradedThreshold <= 0 {
		degradedThreshold = 2 * time.Second
	}

	return &Prober{
		serviceName:       serviceName,
		timeout:           timeout,
		degradedThreshold: degradedThreshold,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Check probes the endpoint once. Network failures, timeouts and bad status
// codes are classifications, never errors: the monitoring loop must survive
// a flaky network.
func (p *Prober) Check(ctx context.Context, endpoint string) Result {
	result := Result{
		ServiceName: p.serviceName,
		Endpoint:    endpoint,
		ObservedAt:  time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		result.Status = StatusUnreachable
		result.Error = err.Error()
		return result
	}
	req.Header.Set("User-Agent", "Failsafe-HealthProbe/1.0")

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	result.ResponseTimeMs = elapsed.Milliseconds()

	if err != nil {
		result.Status = StatusUnreachable
		result.Error = err.Error()
		p.logger.Debug("probe unreachable",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300 && elapsed < p.degradedThreshold:
		result.Status = StatusHealthy
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Status = StatusDegraded
	default:
		result.Status = StatusUnhealthy
	}

	return result
}
