package aggregates

import (
	"context"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
)

// TxRunner opens the transaction a ledger or generation write runs in.
// Tests replace it to inject begin and commit failures.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct{ db *gorm.DB }

func NewGormTxRunner(db *gorm.DB) TxRunner { return gormTxRunner{db: db} }

// InTx commits when fn returns nil and rolls back otherwise. Every repo call
// inside fn must use the dbctx it receives.
func (r gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if r.db == nil {
		return domainagg.NewError(domainagg.CodeInternal, "aggregate.tx", "no database configured for ledger writes", nil)
	}
	if fn == nil {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}
