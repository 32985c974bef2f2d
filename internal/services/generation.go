package services

import (
	"bytes"
	"context"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/yungbote/atelier-backend/internal/data/repos"
	types "github.com/yungbote/atelier-backend/internal/domain"
	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/domain/generation"
	"github.com/yungbote/atelier-backend/internal/observability"
	"github.com/yungbote/atelier-backend/internal/platform/ctxutil"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/eventbus"
	"github.com/yungbote/atelier-backend/internal/platform/gcp"
	"github.com/yungbote/atelier-backend/internal/platform/imagegen"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

type GenerationService interface {
	// CheckStatus polls the provider and, for a finished job, makes sure the
	// artifact is stored before handing out a signed URL.
	CheckStatus(ctx context.Context, jobID string) (*JobStatusView, error)
	ClaimJob(ctx context.Context, jobID string) (*types.GenerationJob, error)
}

type JobStatusView struct {
	JobID    string
	Status   generation.JobStatus
	ImageURL string
	Error    string
}

type GenerationServiceDeps struct {
	Log          *logger.Logger
	Jobs         repos.GenerationJobRepo
	Aggregate    domainagg.GenerationAggregate
	Provider     imagegen.Client
	Store        gcp.ArtifactStore
	Events       eventbus.Bus
	Metrics      *observability.Metrics
	SignedURLTTL time.Duration
}

type generationService struct {
	log      *logger.Logger
	jobs     repos.GenerationJobRepo
	agg      domainagg.GenerationAggregate
	provider imagegen.Client
	store    gcp.ArtifactStore
	events   eventbus.Bus
	metrics  *observability.Metrics
	ttl      time.Duration
}

func NewGenerationService(deps GenerationServiceDeps) GenerationService {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = eventbus.NewNoop()
	}
	ttl := deps.SignedURLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &generationService{
		log:      log.With("service", "GenerationService"),
		jobs:     deps.Jobs,
		agg:      deps.Aggregate,
		provider: deps.Provider,
		store:    deps.Store,
		events:   events,
		metrics:  deps.Metrics,
		ttl:      ttl,
	}
}

// ArtifactKey is the deterministic object key for a job's primary output.
func ArtifactKey(jobID, ext string) string {
	return "generations/" + jobID + "/artifact" + ext
}

// OriginalArtifactKey is the key for the input image a job was derived from.
func OriginalArtifactKey(jobID, ext string) string {
	return "generations/" + jobID + "/original" + ext
}

func (s *generationService) CheckStatus(ctx context.Context, jobID string) (*JobStatusView, error) {
	const op = "generation.check_status"
	jobID = strings.TrimSpace(jobID)
	if !jobIDPattern.MatchString(jobID) {
		return nil, domainagg.NewError(domainagg.CodeInvalidInput, op, "invalid job id", nil)
	}

	// A persisted outcome is served without asking the provider again.
	job, err := s.jobs.GetByID(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		s.log.Warn("job lookup failed; falling back to provider", "job_id", jobID, "error", err)
		job = nil
	}
	if job != nil {
		if job.OwnerID == nil {
			s.adoptOwner(ctx, jobID)
		}
		switch {
		case job.Status == generation.JobStatusSucceeded && job.ArtifactKey != "":
			s.metrics.IncGenerationOutcome(string(job.Status), "ledger")
			return s.succeededView(op, jobID, job.ArtifactKey)
		case job.Status == generation.JobStatusFailed || job.Status == generation.JobStatusCanceled:
			s.metrics.IncGenerationOutcome(string(job.Status), "ledger")
			return &JobStatusView{JobID: jobID, Status: job.Status, Error: job.Error}, nil
		}
	}

	p, err := s.provider.GetPrediction(ctx, jobID)
	if err != nil {
		return nil, err
	}
	status := p.JobStatus()
	switch status {
	case generation.JobStatusSucceeded:
		key, original, source, err := s.persistArtifacts(ctx, op, jobID, p)
		if err != nil {
			return nil, err
		}
		s.metrics.IncGenerationOutcome(string(status), source)
		s.recordOutcome(ctx, domainagg.RecordJobOutcomeInput{
			JobID:               jobID,
			Prompt:              p.Input.Prompt,
			Status:              status,
			ArtifactKey:         key,
			OriginalArtifactKey: original,
		})
		return s.succeededView(op, jobID, key)
	case generation.JobStatusFailed, generation.JobStatusCanceled:
		s.metrics.IncGenerationOutcome(string(status), "provider")
		msg := p.ErrorMessage()
		s.recordOutcome(ctx, domainagg.RecordJobOutcomeInput{
			JobID:  jobID,
			Prompt: p.Input.Prompt,
			Status: status,
			Error:  msg,
		})
		return &JobStatusView{JobID: jobID, Status: status, Error: msg}, nil
	default:
		return &JobStatusView{JobID: jobID, Status: status}, nil
	}
}

// persistArtifacts stores the first output under its deterministic key unless
// an earlier poll already did. source reports where the artifact came from.
func (s *generationService) persistArtifacts(ctx context.Context, op, jobID string, p *imagegen.Prediction) (key, original, source string, err error) {
	outputURL := p.FirstOutput()
	if outputURL == "" {
		return "", "", "", domainagg.NewError(domainagg.CodeDownloadFailed, op, "provider reported success without an output", nil)
	}

	// An output URL without a usable suffix is downloaded first so the
	// content type can pick the key. The ledger row keeps that key for later polls.
	ext := extensionFromURL(outputURL)
	var d *imagegen.Download
	if ext == "" {
		if d, err = s.provider.Download(ctx, outputURL); err != nil {
			s.log.Warn("artifact download failed", "job_id", jobID, "error", err)
			return "", "", "", err
		}
		ext = extensionForContent(d.ContentType)
	}
	key = ArtifactKey(jobID, ext)

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return "", "", "", domainagg.NewError(domainagg.CodeStorageUnavailable, op, "object store unavailable", err)
	}
	source = "store"
	if !exists {
		if d == nil {
			if d, err = s.provider.Download(ctx, outputURL); err != nil {
				// The job stays un-failed so the next poll retries the download.
				s.log.Warn("artifact download failed", "job_id", jobID, "error", err)
				return "", "", "", err
			}
		}
		created, err := s.store.Put(ctx, key, bytes.NewReader(d.Data), d.ContentType)
		if err != nil {
			s.log.Error("artifact store failed", "job_id", jobID, "key", key, "error", err)
			return "", "", "", domainagg.NewError(domainagg.CodeStorageUnavailable, op, "object store unavailable", err)
		}
		source = "provider"
		s.log.Info("artifact stored", "job_id", jobID, "key", key, "bytes", len(d.Data), "created", created)
	}

	original = s.persistOriginal(ctx, jobID, p.Input.Image)
	return key, original, source, nil
}

// persistOriginal copies the job's input image; failures are logged and the
// key is omitted.
func (s *generationService) persistOriginal(ctx context.Context, jobID, imageURL string) string {
	imageURL = strings.TrimSpace(imageURL)
	if !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
		return ""
	}
	if ext := extensionFromURL(imageURL); ext != "" {
		if ok, err := s.store.Exists(ctx, OriginalArtifactKey(jobID, ext)); err == nil && ok {
			return OriginalArtifactKey(jobID, ext)
		}
	}
	d, err := s.provider.Download(ctx, imageURL)
	if err != nil {
		s.log.Warn("original image download failed", "job_id", jobID, "error", err)
		return ""
	}
	ext := extensionFromURL(imageURL)
	if ext == "" {
		ext = extensionForContent(d.ContentType)
	}
	key := OriginalArtifactKey(jobID, ext)
	if _, err := s.store.Put(ctx, key, bytes.NewReader(d.Data), d.ContentType); err != nil {
		s.log.Warn("original image store failed", "job_id", jobID, "error", err)
		return ""
	}
	return key
}

func (s *generationService) succeededView(op, jobID, key string) (*JobStatusView, error) {
	u, err := s.store.SignedURL(key, s.ttl)
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeStorageUnavailable, op, "could not sign artifact url", err)
	}
	return &JobStatusView{JobID: jobID, Status: generation.JobStatusSucceeded, ImageURL: u}, nil
}

// recordOutcome writes the provenance row. The object store stays the source
// of truth for the artifact, so a ledger failure here is only logged.
func (s *generationService) recordOutcome(ctx context.Context, in domainagg.RecordJobOutcomeInput) {
	if uid := ctxutil.UserID(ctx); uid != "" {
		in.OwnerID = &uid
	}
	res, err := s.agg.RecordOutcome(context.WithoutCancel(ctx), in)
	if err != nil {
		s.log.Warn("job provenance write failed", "job_id", in.JobID, "status", in.Status, "error", err)
		return
	}
	if res.Applied {
		publishBestEffort(ctx, s.log, s.events, eventbus.Event{
			Type:   eventbus.EventJobStatusChanged,
			JobID:  in.JobID,
			Status: string(res.Status),
		})
	}
}

// adoptOwner records the signed-in caller on a job that has no owner yet.
// Best-effort, like recordOutcome.
func (s *generationService) adoptOwner(ctx context.Context, jobID string) {
	uid := ctxutil.UserID(ctx)
	if uid == "" {
		return
	}
	if _, err := s.jobs.SetOwnerIfUnowned(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, jobID, uid); err != nil {
		s.log.Warn("job owner write failed", "job_id", jobID, "error", err)
	}
}

func (s *generationService) ClaimJob(ctx context.Context, jobID string) (*types.GenerationJob, error) {
	const op = "generation.claim_job"
	userID := ctxutil.UserID(ctx)
	if userID == "" {
		return nil, domainagg.NewError(domainagg.CodeNotAuthenticated, op, "sign in required", nil)
	}
	jobID = strings.TrimSpace(jobID)
	if !jobIDPattern.MatchString(jobID) {
		return nil, domainagg.NewError(domainagg.CodeInvalidInput, op, "invalid job id", nil)
	}
	job, err := s.agg.ClaimOwner(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	s.log.Info("job claimed", "job_id", jobID, "user_id", userID)
	return job, nil
}

// extensionFromURL returns the key suffix implied by the URL path, or "" when
// the path has no suffix the object store knows.
func extensionFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if ext == "" || gcp.ContentTypeForKey("x"+ext) == "application/octet-stream" {
		return ""
	}
	return ext
}

func extensionForContent(contentType string) string {
	if ext := gcp.ExtensionForContentType(contentType); ext != "" {
		return ext
	}
	return ".bin"
}
