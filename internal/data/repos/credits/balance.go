package credits

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/atelier-backend/internal/domain"
	"github.com/yungbote/atelier-backend/internal/domain/credits"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

type BalanceRepo interface {
	Get(dbc dbctx.Context, userID string) (*types.CreditBalance, error)
	// Increment adds delta to the user's paid credits, creating the row when
	// missing, and returns the new balance. Callers run it inside the same
	// transaction that writes the matching credit transaction.
	Increment(dbc dbctx.Context, userID string, delta int64) (int64, error)
	// Drift lists users whose stored balance differs from their transaction sum.
	Drift(dbc dbctx.Context, userIDs []string) ([]credits.Drift, error)
}

type balanceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBalanceRepo(db *gorm.DB, baseLog *logger.Logger) BalanceRepo {
	return &balanceRepo{
		db:  db,
		log: baseLog.With("repo", "BalanceRepo"),
	}
}

func (r *balanceRepo) Get(dbc dbctx.Context, userID string) (*types.CreditBalance, error) {
	var rows []*types.CreditBalance
	if err := dbc.DB(r.db).Where("user_id = ?", userID).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &types.CreditBalance{UserID: userID}, nil
	}
	return rows[0], nil
}

func (r *balanceRepo) Increment(dbc dbctx.Context, userID string, delta int64) (int64, error) {
	tx := dbc.DB(r.db)
	now := time.Now().UTC()
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&types.CreditBalance{UserID: userID, PaidCredits: 0, UpdatedAt: now}).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&types.CreditBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"paid_credits": gorm.Expr("paid_credits + ?", delta),
			"updated_at":   now,
		}).Error; err != nil {
		return 0, err
	}
	var after int64
	if err := tx.Model(&types.CreditBalance{}).
		Where("user_id = ?", userID).
		Select("paid_credits").
		Scan(&after).Error; err != nil {
		return 0, err
	}
	return after, nil
}

func (r *balanceRepo) Drift(dbc dbctx.Context, userIDs []string) ([]credits.Drift, error) {
	tx := dbc.DB(r.db)
	out := []credits.Drift{}

	q := tx.Table("user_balances AS b").
		Select("b.user_id AS user_id, b.paid_credits AS paid_credits, COALESCE(SUM(t.amount), 0) AS transaction_sum").
		Joins("LEFT JOIN credit_transactions t ON t.user_id = b.user_id").
		Group("b.user_id, b.paid_credits").
		Having("b.paid_credits <> COALESCE(SUM(t.amount), 0)")
	if len(userIDs) > 0 {
		q = q.Where("b.user_id IN ?", userIDs)
	}
	if err := q.Scan(&out).Error; err != nil {
		return nil, err
	}

	// Transactions whose owner has no balance row at all.
	var orphans []credits.Drift
	oq := tx.Table("credit_transactions AS t").
		Select("t.user_id AS user_id, 0 AS paid_credits, SUM(t.amount) AS transaction_sum").
		Joins("LEFT JOIN user_balances b ON b.user_id = t.user_id").
		Where("b.user_id IS NULL").
		Group("t.user_id")
	if len(userIDs) > 0 {
		oq = oq.Where("t.user_id IN ?", userIDs)
	}
	if err := oq.Scan(&orphans).Error; err != nil {
		return nil, err
	}
	for _, o := range orphans {
		if o.TransactionSum != 0 {
			out = append(out, o)
		}
	}
	return out, nil
}
