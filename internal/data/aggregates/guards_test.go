package aggregates

import (
	"context"
	"testing"

	"github.com/yungbote/atelier-backend/internal/data/repos/testutil"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
)

func TestRequireStatusAllowed(t *testing.T) {
	if err := RequireStatusAllowed("pending", "pending"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireStatusAllowed("confirmed", "pending"); err == nil {
		t.Fatalf("expected conflict error")
	}
	if err := RequireStatusAllowed("Pending", "pending"); err == nil {
		t.Fatalf("expected conflict error for a non-canonical status")
	}
	if err := RequireStatusAllowed("pending"); err == nil {
		t.Fatalf("expected validation error for an empty allow list")
	}
}

func TestCASGuardUpdateByStatus(t *testing.T) {
	db := testutil.DB(t)
	testutil.SeedOrder(t, db, "ord_cas", "u1", 9900, 100)
	guard := NewCASGuard(db)
	dbc := dbctx.Context{Ctx: context.Background()}

	ok, err := guard.UpdateByStatus(dbc, StatusCAS{
		Table: "payment_orders", ID: "ord_cas", Allowed: []string{"pending"},
		Extra:   map[string]any{"user_id": "u2"},
		Updates: map[string]any{"status": "confirmed"},
	})
	if err != nil || ok {
		t.Fatalf("wrong owner must not match: ok=%v err=%v", ok, err)
	}

	ok, err = guard.UpdateByStatus(dbc, StatusCAS{
		Table: "payment_orders", ID: "ord_cas", Allowed: []string{"pending"},
		Extra:   map[string]any{"user_id": "u1", "credits": int64(100)},
		Updates: map[string]any{"status": "confirmed"},
	})
	if err != nil || !ok {
		t.Fatalf("first CAS: ok=%v err=%v", ok, err)
	}

	ok, err = guard.UpdateByStatus(dbc, StatusCAS{
		Table: "payment_orders", ID: "ord_cas", Allowed: []string{"pending"},
		Updates: map[string]any{"status": "canceled"},
	})
	if err != nil || ok {
		t.Fatalf("second CAS must lose: ok=%v err=%v", ok, err)
	}

	if _, err := guard.UpdateByStatus(dbc, StatusCAS{Table: "payment_orders", ID: "ord_cas"}); err == nil {
		t.Fatalf("expected validation error without allowed statuses")
	}
}
