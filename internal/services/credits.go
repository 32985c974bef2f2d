package services

import (
	"context"

	"github.com/yungbote/atelier-backend/internal/data/repos"
	types "github.com/yungbote/atelier-backend/internal/domain"
	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/domain/credits"
	"github.com/yungbote/atelier-backend/internal/platform/ctxutil"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

const defaultTransactionLimit = 50

type CreditService interface {
	// Balance returns the caller's paid credits and most recent transactions.
	Balance(ctx context.Context, limit int) (*BalanceView, error)
	// AuditBalances reports users whose transaction history does not sum to their
	// stored balance. An empty userIDs audits everyone.
	AuditBalances(ctx context.Context, userIDs []string) ([]credits.Drift, error)
}

type BalanceView struct {
	UserID       string
	PaidCredits  int64
	Transactions []*types.CreditTransaction
}

type creditService struct {
	log      *logger.Logger
	balances repos.CreditBalanceRepo
	txs      repos.CreditTransactionRepo
}

func NewCreditService(baseLog *logger.Logger, balances repos.CreditBalanceRepo, txs repos.CreditTransactionRepo) CreditService {
	return &creditService{
		log:      baseLog.With("service", "CreditService"),
		balances: balances,
		txs:      txs,
	}
}

func (s *creditService) Balance(ctx context.Context, limit int) (*BalanceView, error) {
	const op = "credits.balance"
	userID := ctxutil.UserID(ctx)
	if userID == "" {
		return nil, domainagg.NewError(domainagg.CodeNotAuthenticated, op, "sign in required", nil)
	}
	if limit <= 0 || limit > 200 {
		limit = defaultTransactionLimit
	}
	dbc := dbctx.Context{Ctx: ctx}
	bal, err := s.balances.Get(dbc, userID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	rows, err := s.txs.ListByUser(dbc, userID, limit)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	return &BalanceView{UserID: userID, PaidCredits: bal.PaidCredits, Transactions: rows}, nil
}

func (s *creditService) AuditBalances(ctx context.Context, userIDs []string) ([]credits.Drift, error) {
	drift, err := s.balances.Drift(dbctx.Context{Ctx: ctx}, userIDs)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, "credits.audit_balances", err)
	}
	for _, d := range drift {
		s.log.Error("credit balance drift", "user_id", d.UserID, "paid_credits", d.PaidCredits, "transaction_sum", d.TransactionSum)
	}
	return drift, nil
}
