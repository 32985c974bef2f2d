package aggregates

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

// BaseDeps is shared by the ledger and generation aggregates. Only DB is
// required; everything else has a working default.
type BaseDeps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Runner   TxRunner
	Hooks    Hooks
	CASGuard CASGuard
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.CASGuard.db == nil {
		d.CASGuard = NewCASGuard(d.DB)
	}
	return d
}

// executeWrite runs fn in one transaction and reports the outcome to the
// hooks under op. Errors come back as *domainagg.Error.
func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	deps = deps.withDefaults()
	if op = strings.TrimSpace(op); op == "" {
		op = "aggregate.write"
	}

	start := time.Now()
	err := MapError(op, deps.Runner.InTx(ctx, fn))
	status := outcomeStatus(err)

	switch domainagg.CodeOf(err) {
	case domainagg.CodeConflict:
		deps.Hooks.IncConflict(op)
	case domainagg.CodeRetryable:
		deps.Hooks.IncRetry(op)
	case domainagg.CodeInternal:
		deps.Log.Error("aggregate write failed", "operation", op, "error", err)
	}
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	return err
}

// outcomeStatus is the hook label for a mapped write error.
func outcomeStatus(err error) string {
	if err == nil {
		return "success"
	}
	if code := domainagg.CodeOf(MapError("aggregate.status", err)); code != "" {
		return string(code)
	}
	return "failure"
}
