package credits

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/atelier-backend/internal/domain"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

type TransactionRepo interface {
	Create(dbc dbctx.Context, row *types.CreditTransaction) error
	ListByUser(dbc dbctx.Context, userID string, limit int) ([]*types.CreditTransaction, error)
	GetByReference(dbc dbctx.Context, referenceID, reason string) (*types.CreditTransaction, error)
}

type transactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTransactionRepo(db *gorm.DB, baseLog *logger.Logger) TransactionRepo {
	return &transactionRepo{
		db:  db,
		log: baseLog.With("repo", "CreditTransactionRepo"),
	}
}

func (r *transactionRepo) Create(dbc dbctx.Context, row *types.CreditTransaction) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return dbc.DB(r.db).Create(row).Error
}

func (r *transactionRepo) ListByUser(dbc dbctx.Context, userID string, limit int) ([]*types.CreditTransaction, error) {
	var out []*types.CreditTransaction
	if limit <= 0 {
		limit = 50
	}
	err := dbc.DB(r.db).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *transactionRepo) GetByReference(dbc dbctx.Context, referenceID, reason string) (*types.CreditTransaction, error) {
	var rows []*types.CreditTransaction
	err := dbc.DB(r.db).
		Where("reference_id = ? AND reason = ?", referenceID, reason).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
