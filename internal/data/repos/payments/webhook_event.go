package payments

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/atelier-backend/internal/domain"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

type WebhookEventRepo interface {
	Create(dbc dbctx.Context, ev *types.WebhookEvent) error
	ListByOrder(dbc dbctx.Context, orderID string) ([]*types.WebhookEvent, error)
}

type webhookEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWebhookEventRepo(db *gorm.DB, baseLog *logger.Logger) WebhookEventRepo {
	return &webhookEventRepo{
		db:  db,
		log: baseLog.With("repo", "WebhookEventRepo"),
	}
}

func (r *webhookEventRepo) Create(dbc dbctx.Context, ev *types.WebhookEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return dbc.DB(r.db).Create(ev).Error
}

func (r *webhookEventRepo) ListByOrder(dbc dbctx.Context, orderID string) ([]*types.WebhookEvent, error) {
	var out []*types.WebhookEvent
	err := dbc.DB(r.db).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
