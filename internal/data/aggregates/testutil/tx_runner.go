package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/atelier-backend/internal/data/aggregates"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
)

// InjectedTxRunner wraps a TxRunner (or runs without a DB when Inner is nil)
// and injects failures at chosen points of the transaction.
//
// FailAfterBody is returned from inside the transaction after the body
// succeeded, so a real Inner runner rolls back every write the body made.
// It stands in for a commit failure.
type InjectedTxRunner struct {
	Inner aggregates.TxRunner

	mu sync.Mutex

	FailBegin     error
	FailAfterBody error

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	failBegin := r.FailBegin
	failAfterBody := r.FailAfterBody
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}
	body := func(dbc dbctx.Context) error {
		if fn != nil {
			if err := fn(dbc); err != nil {
				return err
			}
		}
		return failAfterBody
	}

	var err error
	if r.Inner != nil {
		err = r.Inner.InTx(ctx, body)
	} else {
		err = body(dbctx.Context{Ctx: ctx})
	}

	r.mu.Lock()
	if err != nil {
		r.RollbackCalls++
	} else {
		r.CommitCalls++
	}
	r.mu.Unlock()
	return err
}
