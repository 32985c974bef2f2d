package aggregates

import (
	"strings"
	"time"

	"github.com/yungbote/atelier-backend/internal/observability"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

// Hooks captures aggregate-level observability events.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}

type observabilityHooks struct {
	metrics *observability.Metrics
	log     *logger.Logger
}

// NewObservabilityHooks reports to metrics when enabled and logs non-success
// outcomes. Both sinks are optional.
func NewObservabilityHooks(metrics *observability.Metrics, log *logger.Logger) Hooks {
	if metrics == nil && log == nil {
		return noopHooks{}
	}
	h := &observabilityHooks{metrics: metrics}
	if log != nil {
		h.log = log.With("component", "AggregateHooks")
	}
	return h
}

func (h *observabilityHooks) ObserveOperation(name, status string, dur time.Duration) {
	name, status = strings.TrimSpace(name), strings.TrimSpace(status)
	h.metrics.ObserveAggregateOperation(name, status, dur)
	if h.log == nil {
		return
	}
	if status == "success" {
		h.log.Debug("aggregate write", "operation", name, "duration_ms", dur.Milliseconds())
		return
	}
	h.log.Info("aggregate write did not apply", "operation", name, "status", status, "duration_ms", dur.Milliseconds())
}

func (h *observabilityHooks) IncConflict(name string) {
	h.metrics.IncAggregateConflict(strings.TrimSpace(name))
}

func (h *observabilityHooks) IncRetry(name string) {
	h.metrics.IncAggregateRetry(strings.TrimSpace(name))
	if h.log != nil {
		h.log.Warn("aggregate write hit a transient error", "operation", strings.TrimSpace(name))
	}
}
