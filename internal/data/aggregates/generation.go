package aggregates

import (
	"context"
	"strings"
	"time"

	"github.com/yungbote/atelier-backend/internal/data/repos"
	types "github.com/yungbote/atelier-backend/internal/domain"
	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/domain/generation"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
)

const jobsTable = "generation_jobs"

type GenerationAggregateDeps struct {
	Base BaseDeps
	Jobs repos.GenerationJobRepo
}

type generationAggregate struct {
	deps BaseDeps
	jobs repos.GenerationJobRepo
}

func NewGenerationAggregate(deps GenerationAggregateDeps) domainagg.GenerationAggregate {
	base := deps.Base.withDefaults()
	base.Log = base.Log.With("aggregate", "GenerationAggregate")
	return &generationAggregate{deps: base, jobs: deps.Jobs}
}

func (a *generationAggregate) Contract() domainagg.Contract {
	return domainagg.GenerationAggregateContract
}

func (a *generationAggregate) RecordOutcome(ctx context.Context, in domainagg.RecordJobOutcomeInput) (domainagg.RecordJobOutcomeResult, error) {
	const op = "generation.record_outcome"
	out := domainagg.RecordJobOutcomeResult{JobID: strings.TrimSpace(in.JobID)}
	if out.JobID == "" {
		return out, domainagg.NewError(domainagg.CodeInvalidInput, op, "job id is required", nil)
	}
	switch in.Status {
	case generation.JobStatusStarting, generation.JobStatusProcessing,
		generation.JobStatusSucceeded, generation.JobStatusFailed, generation.JobStatusCanceled:
	default:
		return out, domainagg.NewError(domainagg.CodeInvalidInput, op, "unknown job status "+string(in.Status), nil)
	}
	if in.Status == generation.JobStatusSucceeded && strings.TrimSpace(in.ArtifactKey) == "" {
		return out, domainagg.NewError(domainagg.CodeInvalidInput, op, "a succeeded job needs an artifact key", nil)
	}
	at := in.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	err := executeWrite(ctx, a.deps, op, func(dbc dbctx.Context) error {
		row := &types.GenerationJob{
			ID:                  out.JobID,
			Prompt:              in.Prompt,
			Status:              in.Status,
			ArtifactKey:         strings.TrimSpace(in.ArtifactKey),
			OriginalArtifactKey: strings.TrimSpace(in.OriginalArtifactKey),
			OwnerID:             in.OwnerID,
			Error:               truncate(in.Error, 1024),
			CreatedAt:           at,
			UpdatedAt:           at,
		}
		if in.Status.IsTerminal() {
			row.CompletedAt = &at
		}
		created, err := a.jobs.CreateIfAbsent(dbc, row)
		if err != nil {
			return err
		}
		if created {
			out.Status = in.Status
			out.Applied = true
			return nil
		}
		// A signed-in poll adopts a row an anonymous poll created.
		if in.OwnerID != nil && strings.TrimSpace(*in.OwnerID) != "" {
			if _, err := a.jobs.SetOwnerIfUnowned(dbc, out.JobID, strings.TrimSpace(*in.OwnerID)); err != nil {
				return err
			}
		}

		updates := map[string]any{
			"status":     in.Status,
			"updated_at": at,
		}
		if in.Status.IsTerminal() {
			updates["completed_at"] = at
			if row.ArtifactKey != "" {
				updates["artifact_key"] = row.ArtifactKey
			}
			if row.OriginalArtifactKey != "" {
				updates["original_artifact_key"] = row.OriginalArtifactKey
			}
			if row.Error != "" {
				updates["error"] = row.Error
			}
		}
		// starting never overwrites an existing row; processing only advances starting.
		allowed := []string{string(generation.JobStatusStarting)}
		if in.Status.IsTerminal() {
			allowed = append(allowed, string(generation.JobStatusProcessing))
		}
		if in.Status != generation.JobStatusStarting {
			ok, err := a.deps.CASGuard.UpdateByStatus(dbc, StatusCAS{
				Table:   jobsTable,
				ID:      out.JobID,
				Allowed: allowed,
				Updates: updates,
			})
			if err != nil {
				return err
			}
			if ok {
				out.Status = in.Status
				out.Applied = true
				return nil
			}
		}
		current, err := a.jobs.GetByID(dbc, out.JobID)
		if err != nil {
			return err
		}
		if current != nil {
			out.Status = current.Status
		}
		return nil
	})
	if err != nil {
		return domainagg.RecordJobOutcomeResult{JobID: out.JobID}, err
	}
	return out, nil
}

func (a *generationAggregate) ClaimOwner(ctx context.Context, jobID, userID string) (*generation.Job, error) {
	const op = "generation.claim_owner"
	jobID, userID = strings.TrimSpace(jobID), strings.TrimSpace(userID)
	if jobID == "" || userID == "" {
		return nil, domainagg.NewError(domainagg.CodeInvalidInput, op, "job id and user id are required", nil)
	}
	var job *types.GenerationJob
	err := executeWrite(ctx, a.deps, op, func(dbc dbctx.Context) error {
		current, err := a.jobs.GetByID(dbc, jobID)
		if err != nil {
			return err
		}
		if current == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
		}
		if current.OwnerID == nil {
			ok, err := a.jobs.SetOwnerIfUnowned(dbc, jobID, userID)
			if err != nil {
				return err
			}
			if ok {
				owner := userID
				current.OwnerID = &owner
			} else if current, err = a.jobs.GetByID(dbc, jobID); err != nil {
				return err
			}
		}
		if current == nil || current.OwnerID == nil || *current.OwnerID != userID {
			return domainagg.NewError(domainagg.CodeNotFound, op, "job not found", nil)
		}
		job = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}
