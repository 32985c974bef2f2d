package payments

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/atelier-backend/internal/domain"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

type OrderRepo interface {
	Create(dbc dbctx.Context, order *types.Order) error
	GetByID(dbc dbctx.Context, id string) (*types.Order, error)
	ListByUser(dbc dbctx.Context, userID string, limit int) ([]*types.Order, error)
}

type orderRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrderRepo(db *gorm.DB, baseLog *logger.Logger) OrderRepo {
	return &orderRepo{
		db:  db,
		log: baseLog.With("repo", "OrderRepo"),
	}
}

func (r *orderRepo) Create(dbc dbctx.Context, order *types.Order) error {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	return dbc.DB(r.db).Create(order).Error
}

func (r *orderRepo) GetByID(dbc dbctx.Context, id string) (*types.Order, error) {
	if id == "" {
		return nil, nil
	}
	var rows []*types.Order
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *orderRepo) ListByUser(dbc dbctx.Context, userID string, limit int) ([]*types.Order, error) {
	var out []*types.Order
	if userID == "" {
		return out, nil
	}
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
