package services

import (
	"context"
	"time"

	"github.com/yungbote/atelier-backend/internal/platform/eventbus"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

const publishTimeout = 2 * time.Second

// publishBestEffort announces a transition after it committed. A failed
// publish is logged and never reaches the caller.
func publishBestEffort(ctx context.Context, log *logger.Logger, bus eventbus.Bus, ev eventbus.Event) {
	if bus == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := bus.Publish(ctx, ev); err != nil {
		log.Warn("status event publish failed", "type", ev.Type, "order_id", ev.OrderID, "job_id", ev.JobID, "error", err)
	}
}
