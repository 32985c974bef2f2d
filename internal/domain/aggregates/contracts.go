package aggregates

// WriteTxOwnership says who opens the transaction around a write.
type WriteTxOwnership string

// WriteTxOwnedByAggregate means each write method runs in its own transaction
// and callers never pass one in.
const WriteTxOwnedByAggregate WriteTxOwnership = "aggregate_owned"

// ReadPolicy limits the reads an aggregate exposes.
type ReadPolicy string

// ReadPolicyInvariantScoped allows only reads a write decision depends on.
// Listing and history queries stay on the table repos.
const ReadPolicyInvariantScoped ReadPolicy = "invariant_scoped_reads"

// Contract names an aggregate and the tables only it may write.
type Contract struct {
	Name             string
	WriteTxOwnership WriteTxOwnership
	ReadPolicy       ReadPolicy
	Tables           []string
	Notes            string
}

type Aggregate interface {
	Contract() Contract
}

func (c Contract) RequiresAggregateOwnedTx() bool {
	return c.WriteTxOwnership == WriteTxOwnedByAggregate
}

// Owns reports whether table is written exclusively through this aggregate.
func (c Contract) Owns(table string) bool {
	for _, t := range c.Tables {
		if t == table {
			return true
		}
	}
	return false
}
