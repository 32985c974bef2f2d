package aggregates_test

import (
	"context"
	"testing"

	"github.com/yungbote/atelier-backend/internal/data/aggregates"
	"github.com/yungbote/atelier-backend/internal/data/repos"
	"github.com/yungbote/atelier-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/domain/generation"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
)

func newGenerationAggregate(t *testing.T) (domainagg.GenerationAggregate, repos.GenerationJobRepo) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	jobs := repos.NewGenerationJobRepo(db, log)
	return aggregates.NewGenerationAggregate(aggregates.GenerationAggregateDeps{
		Base: aggregates.BaseDeps{DB: db, Log: log},
		Jobs: jobs,
	}), jobs
}

func TestRecordOutcomeWritesOneRowPerJob(t *testing.T) {
	agg, jobs := newGenerationAggregate(t)
	ctx := context.Background()

	in := domainagg.RecordJobOutcomeInput{
		JobID:       "job_1",
		Prompt:      "a lighthouse at dusk",
		Status:      generation.JobStatusSucceeded,
		ArtifactKey: "generations/job_1/artifact.png",
	}
	res, err := agg.RecordOutcome(ctx, in)
	if err != nil || !res.Applied || res.Status != generation.JobStatusSucceeded {
		t.Fatalf("first record: res=%+v err=%v", res, err)
	}
	res, err = agg.RecordOutcome(ctx, in)
	if err != nil || res.Applied || res.Status != generation.JobStatusSucceeded {
		t.Fatalf("second record must be a no-op: res=%+v err=%v", res, err)
	}

	job, err := jobs.GetByID(dbctx.Context{Ctx: ctx}, "job_1")
	if err != nil || job == nil {
		t.Fatalf("GetByID: job=%v err=%v", job, err)
	}
	if job.ArtifactKey != in.ArtifactKey || job.CompletedAt == nil || job.Prompt != in.Prompt {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestRecordOutcomeAppliesTerminalTransitionOnce(t *testing.T) {
	agg, jobs := newGenerationAggregate(t)
	ctx := context.Background()

	if res, err := agg.RecordOutcome(ctx, domainagg.RecordJobOutcomeInput{JobID: "job_2", Status: generation.JobStatusStarting}); err != nil || !res.Applied {
		t.Fatalf("starting: res=%+v err=%v", res, err)
	}
	if res, err := agg.RecordOutcome(ctx, domainagg.RecordJobOutcomeInput{JobID: "job_2", Status: generation.JobStatusProcessing}); err != nil || !res.Applied {
		t.Fatalf("processing: res=%+v err=%v", res, err)
	}
	if res, err := agg.RecordOutcome(ctx, domainagg.RecordJobOutcomeInput{JobID: "job_2", Status: generation.JobStatusStarting}); err != nil || res.Applied || res.Status != generation.JobStatusProcessing {
		t.Fatalf("status must not move backwards: res=%+v err=%v", res, err)
	}
	if res, err := agg.RecordOutcome(ctx, domainagg.RecordJobOutcomeInput{JobID: "job_2", Status: generation.JobStatusFailed, Error: "nsfw"}); err != nil || !res.Applied {
		t.Fatalf("failed: res=%+v err=%v", res, err)
	}
	res, err := agg.RecordOutcome(ctx, domainagg.RecordJobOutcomeInput{JobID: "job_2", Status: generation.JobStatusSucceeded, ArtifactKey: "k"})
	if err != nil || res.Applied || res.Status != generation.JobStatusFailed {
		t.Fatalf("terminal status must stick: res=%+v err=%v", res, err)
	}
	job, _ := jobs.GetByID(dbctx.Context{Ctx: ctx}, "job_2")
	if job.Error != "nsfw" || job.ArtifactKey != "" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestRecordOutcomeAdoptsOwnerOnUpdate(t *testing.T) {
	agg, jobs := newGenerationAggregate(t)
	ctx := context.Background()
	u1, u2 := "u1", "u2"

	if _, err := agg.RecordOutcome(ctx, domainagg.RecordJobOutcomeInput{JobID: "job_5", Status: generation.JobStatusProcessing}); err != nil {
		t.Fatalf("anonymous processing: %v", err)
	}
	if _, err := agg.RecordOutcome(ctx, domainagg.RecordJobOutcomeInput{JobID: "job_5", Status: generation.JobStatusSucceeded, ArtifactKey: "k", OwnerID: &u1}); err != nil {
		t.Fatalf("signed-in success: %v", err)
	}
	if _, err := agg.RecordOutcome(ctx, domainagg.RecordJobOutcomeInput{JobID: "job_5", Status: generation.JobStatusSucceeded, ArtifactKey: "k", OwnerID: &u2}); err != nil {
		t.Fatalf("repeat by another user: %v", err)
	}
	job, _ := jobs.GetByID(dbctx.Context{Ctx: ctx}, "job_5")
	if job == nil || job.OwnerID == nil || *job.OwnerID != "u1" {
		t.Fatalf("owner: %+v", job)
	}
}

func TestRecordOutcomeValidation(t *testing.T) {
	agg, _ := newGenerationAggregate(t)
	ctx := context.Background()
	if _, err := agg.RecordOutcome(ctx, domainagg.RecordJobOutcomeInput{JobID: "job_3", Status: generation.JobStatusSucceeded}); !domainagg.IsCode(err, domainagg.CodeInvalidInput) {
		t.Fatalf("succeeded without key: got %v", err)
	}
	if _, err := agg.RecordOutcome(ctx, domainagg.RecordJobOutcomeInput{JobID: "job_3", Status: "exploded"}); !domainagg.IsCode(err, domainagg.CodeInvalidInput) {
		t.Fatalf("unknown status: got %v", err)
	}
}

func TestClaimOwner(t *testing.T) {
	agg, _ := newGenerationAggregate(t)
	ctx := context.Background()
	if _, err := agg.RecordOutcome(ctx, domainagg.RecordJobOutcomeInput{JobID: "job_4", Status: generation.JobStatusSucceeded, ArtifactKey: "k"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	job, err := agg.ClaimOwner(ctx, "job_4", "u1")
	if err != nil || job.OwnerID == nil || *job.OwnerID != "u1" {
		t.Fatalf("claim: job=%+v err=%v", job, err)
	}
	if _, err := agg.ClaimOwner(ctx, "job_4", "u1"); err != nil {
		t.Fatalf("re-claim by owner: %v", err)
	}
	if _, err := agg.ClaimOwner(ctx, "job_4", "u2"); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("claim by other: want not_found, got %v", err)
	}
	if _, err := agg.ClaimOwner(ctx, "job_missing", "u1"); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing: want not_found, got %v", err)
	}
}
