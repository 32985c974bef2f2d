package generation

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/atelier-backend/internal/domain"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

type JobRepo interface {
	GetByID(dbc dbctx.Context, id string) (*types.GenerationJob, error)
	// CreateIfAbsent inserts the row unless one with the same id exists.
	CreateIfAbsent(dbc dbctx.Context, job *types.GenerationJob) (bool, error)
	// SetOwnerIfUnowned claims an anonymous job.
	SetOwnerIfUnowned(dbc dbctx.Context, id, ownerID string) (bool, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "GenerationJobRepo"),
	}
}

func (r *jobRepo) GetByID(dbc dbctx.Context, id string) (*types.GenerationJob, error) {
	if id == "" {
		return nil, nil
	}
	var rows []*types.GenerationJob
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *jobRepo) CreateIfAbsent(dbc dbctx.Context, job *types.GenerationJob) (bool, error) {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}
	res := dbc.DB(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(job)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRepo) SetOwnerIfUnowned(dbc dbctx.Context, id, ownerID string) (bool, error) {
	res := dbc.DB(r.db).
		Model(&types.GenerationJob{}).
		Where("id = ? AND owner_id IS NULL", id).
		Updates(map[string]interface{}{
			"owner_id":   ownerID,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
