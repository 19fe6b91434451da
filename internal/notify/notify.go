package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Severity levels for operational notifications.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Standard event types emitted by the controller.
const (
	EventMonitoringStarted = "monitoring.started"
	EventMonitoringStopped = "monitoring.stopped"
	EventFailoverInitiated = "failover.initiated"
	EventFailoverCompleted = "failover.completed"
	EventFailoverFailed    = "failover.failed"
	EventDRTestCompleted   = "drtest.completed"
)

// Payload is the wire format delivered to sinks.
type Payload struct {
	ID          string    `json:"id"`
	EventType   string    `json:"event_type"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SystemID    string    `json:"system_identifier"`
	Environment string    `json:"environment"`
}

// Sink delivers one payload. Implementations own their transport timeouts.
type Sink interface {
	Name() string
	Send(ctx context.Context, payload Payload) error
}

// Dispatcher fans notifications out to sinks with best-effort semantics.
// Delivery failures are logged and swallowed; dispatch never blocks the
// orchestration it reports on.
type Dispatcher struct {
	systemID    string
	environment string
	sinks       []Sink
	limiter     *rate.Limiter
	logger      *zap.Logger
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher. ratePerMin bounds outbound volume
// during failure storms; zero disables the limit.
func NewDispatcher(systemID, environment string, ratePerMin int, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(ratePerMin)/60.0), ratePerMin)
	}

	return &Dispatcher{
		systemID:    systemID,
		environment: environment,
		sinks:       sinks,
		limiter:     limiter,
		logger:      logger,
	}
}

// Notify sends an event to all sinks, fire-and-forget.
func (d *Dispatcher) Notify(ctx context.Context, eventType string, severity Severity, message string) {
	payload := Payload{
		ID:          uuid.New().String(),
		EventType:   eventType,
		Severity:    severity,
		Message:     message,
		Timestamp:   time.Now().UTC(),
		SystemID:    d.systemID,
		Environment: d.environment,
	}

	if !d.limiter.Allow() {
		d.logger.Warn("notification dropped by rate limit",
			zap.String("event_type", eventType),
			zap.String("severity", string(severity)))
		return
	}

	// Deliveries must outlive the caller: a request-scoped ctx would cancel
	// an in-flight send the moment the response is written.
	deliveryCtx := context.WithoutCancel(ctx)

	for _, sink := range d.sinks {
		sink := sink
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := sink.Send(deliveryCtx, payload); err != nil {
				d.logger.Error("notification delivery failed",
					zap.String("sink", sink.Name()),
					zap.String("event_type", eventType),
					zap.Error(err))
			}
		}()
	}
}

// Flush waits for in-flight deliveries; used on shutdown and in tests.
func (d *Dispatcher) Flush() {
	d.wg.Wait()
}

// LogSink writes notifications to the controller log. Always configured so
// operators have a local record even with no webhooks set up.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, payload Payload) error {
	s.logger.Info("notification",
		zap.String("event_type", payload.EventType),
		zap.String("severity", string(payload.Severity)),
		zap.String("message", payload.Message),
		zap.String("system_identifier", payload.SystemID),
		zap.String("environment", payload.Environment))
	return nil
}
