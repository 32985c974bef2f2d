package testutil

import (
	"testing"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/atelier-backend/internal/domain"
	"github.com/yungbote/atelier-backend/internal/domain/generation"
	"github.com/yungbote/atelier-backend/internal/domain/payments"
)

func SeedOrder(tb testing.TB, db *gorm.DB, id, userID string, amount, credits int64) *types.Order {
	tb.Helper()
	now := time.Now().UTC()
	o := &types.Order{
		ID:        id,
		UserID:    userID,
		PackageID: "pkg_test",
		Amount:    amount,
		Credits:   credits,
		Status:    payments.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(o).Error; err != nil {
		tb.Fatalf("seed order: %v", err)
	}
	return o
}

func SeedJob(tb testing.TB, db *gorm.DB, id string, status generation.JobStatus, ownerID *string) *types.GenerationJob {
	tb.Helper()
	now := time.Now().UTC()
	j := &types.GenerationJob{
		ID:        id,
		Status:    status,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(j).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return j
}
