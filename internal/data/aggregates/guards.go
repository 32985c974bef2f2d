package aggregates

import (
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
)

// CASGuard issues conditional updates whose WHERE clause is the only
// serialization point for a row's status machine.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx), nil
	}
	if g.db != nil {
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, ValidationError("missing db transaction context")
}

// StatusCAS describes one compare-and-set on a status column.
type StatusCAS struct {
	Table   string
	ID      string
	Allowed []string
	// Extra holds additional equality guards, e.g. {"user_id": "u1"}.
	Extra   map[string]any
	Updates map[string]any
}

// UpdateByStatus updates a row only when id, status and every Extra guard match.
// It reports whether a row changed.
func (g CASGuard) UpdateByStatus(dbc dbctx.Context, cas StatusCAS) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table := strings.TrimSpace(cas.Table)
	if table == "" || strings.TrimSpace(cas.ID) == "" {
		return false, ValidationError("table and id are required for UpdateByStatus")
	}
	if len(cas.Allowed) == 0 {
		return false, ValidationError("allowed statuses must not be empty")
	}
	if len(cas.Updates) == 0 {
		return false, ValidationError("updates must not be empty")
	}
	q := db.Table(table).Where("id = ? AND status IN ?", cas.ID, cas.Allowed)
	for _, col := range sortedColumns(cas.Extra) {
		q = q.Where(col+" = ?", cas.Extra[col])
	}
	res := q.Updates(cas.Updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequireStatusAllowed validates current status against allowed values.
// Statuses are stored lowercase, so the match is exact.
func RequireStatusAllowed(current string, allowed ...string) error {
	if len(allowed) == 0 {
		return ValidationError("allowed statuses cannot be empty")
	}
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	return ConflictError("status transition not allowed")
}

func sortedColumns(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
