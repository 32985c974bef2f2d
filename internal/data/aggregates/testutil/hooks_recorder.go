package testutil

import (
	"sync"
	"time"

	"github.com/yungbote/atelier-backend/internal/data/aggregates"
)

// HooksRecorder keeps every hook call an aggregate makes, keyed by operation
// name, so ledger and generation tests can assert on outcome statuses.
type HooksRecorder struct {
	mu sync.Mutex

	Operations []OperationEvent
	Conflicts  []string
	Retries    []string
}

type OperationEvent struct {
	Name     string
	Status   string
	Duration time.Duration
}

var _ aggregates.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) ObserveOperation(name, status string, dur time.Duration) {
	h.mu.Lock()
	h.Operations = append(h.Operations, OperationEvent{Name: name, Status: status, Duration: dur})
	h.mu.Unlock()
}

func (h *HooksRecorder) IncConflict(name string) {
	h.mu.Lock()
	h.Conflicts = append(h.Conflicts, name)
	h.mu.Unlock()
}

func (h *HooksRecorder) IncRetry(name string) {
	h.mu.Lock()
	h.Retries = append(h.Retries, name)
	h.mu.Unlock()
}

// Statuses returns the recorded statuses for op in call order.
func (h *HooksRecorder) Statuses(op string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, ev := range h.Operations {
		if ev.Name == op {
			out = append(out, ev.Status)
		}
	}
	return out
}

// Count reports how many times op finished with status.
func (h *HooksRecorder) Count(op, status string) int {
	n := 0
	for _, s := range h.Statuses(op) {
		if s == status {
			n++
		}
	}
	return n
}
