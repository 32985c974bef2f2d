package aggregates

import (
	"context"
	"time"

	"github.com/yungbote/atelier-backend/internal/domain/generation"
)

var GenerationAggregateContract = Contract{
	Name:             "Generation.JobAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Tables:           []string{"generation_jobs"},
	Notes:            "Owns the one-row-per-job provenance record and its single terminal transition.",
}

// GenerationAggregate owns generation job provenance invariants.
type GenerationAggregate interface {
	Aggregate

	// RecordOutcome inserts the job row if missing and applies a terminal status at
	// most once. Repeated calls for an already-terminal job report Applied=false.
	RecordOutcome(ctx context.Context, in RecordJobOutcomeInput) (RecordJobOutcomeResult, error)

	// ClaimOwner assigns an anonymous job to a user. Claiming a job owned by someone
	// else is CodeNotFound; re-claiming one's own job is a no-op.
	ClaimOwner(ctx context.Context, jobID, userID string) (*generation.Job, error)
}

type RecordJobOutcomeInput struct {
	JobID               string
	Prompt              string
	OwnerID             *string
	Status              generation.JobStatus
	ArtifactKey         string
	OriginalArtifactKey string
	Error               string
	At                  time.Time
}

type RecordJobOutcomeResult struct {
	JobID   string
	Status  generation.JobStatus
	Applied bool
}
