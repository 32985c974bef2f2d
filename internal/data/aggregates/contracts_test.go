package aggregates

import (
	"testing"

	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/domain/credits"
	"github.com/yungbote/atelier-backend/internal/domain/generation"
	"github.com/yungbote/atelier-backend/internal/domain/payments"
)

func TestContractsOwnTheTablesTheyWrite(t *testing.T) {
	ledger := (&ledgerAggregate{}).Contract()
	for _, table := range []string{ordersTable, payments.Order{}.TableName(), credits.Balance{}.TableName(), credits.Transaction{}.TableName()} {
		if !ledger.Owns(table) {
			t.Fatalf("ledger contract does not own %q", table)
		}
	}
	gen := (&generationAggregate{}).Contract()
	if !gen.Owns(jobsTable) || !gen.Owns(generation.Job{}.TableName()) || gen.Owns(ordersTable) {
		t.Fatalf("generation contract tables: %v", gen.Tables)
	}
	for _, c := range []domainagg.Contract{ledger, gen} {
		if !c.RequiresAggregateOwnedTx() {
			t.Fatalf("%s must own its transactions", c.Name)
		}
	}
}
