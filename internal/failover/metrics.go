package failover

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the controller
type Metrics struct {
	ConsecutiveFailures prometheus.Gauge
	ProbeDuration       prometheus.Histogram
	FailoverAttempts    *prometheus.CounterVec
	MonitorRunning      prometheus.Gauge
	registry            *prometheus.Registry
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// NewMetrics creates and registers all metrics (singleton pattern for tests)
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		registry := prometheus.NewRegistry()

		m := &Metrics{
			ConsecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "failsafe_consecutive_failures",
				Help: "Consecutive unhealthy probe results since the last healthy one",
			}),
			ProbeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "failsafe_probe_duration_seconds",
				Help:    "Health probe round-trip time in seconds",
				Buckets: prometheus.DefBuckets,
			}),
			FailoverAttempts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "failsafe_failover_attempts_total",
					Help: "Total failover attempts by outcome",
				},
				[]string{"outcome"},
			),
			MonitorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "failsafe_monitor_running",
				Help: "1 while the monitoring loop is armed",
			}),
			registry: registry,
		}

		registry.MustRegister(m.ConsecutiveFailures)
		registry.MustRegister(m.ProbeDuration)
		registry.MustRegister(m.FailoverAttempts)
		registry.MustRegister(m.MonitorRunning)

		metricsInstance = m
	})

	return metricsInstance
}

// Registry returns the private registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
