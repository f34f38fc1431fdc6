package job

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/skillsenselab/recap/artifact"
	"github.com/skillsenselab/recap/audio"
	"github.com/skillsenselab/recap/credits"
	"github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/insight"
	"github.com/skillsenselab/recap/logger"
	"github.com/skillsenselab/recap/util"
)

// Config holds orchestrator settings.
type Config struct {
	// ArtifactRetention bounds how long terminal jobs keep their audio
	// artifact for reprocessing.
	ArtifactRetention time.Duration `mapstructure:"artifact_retention" yaml:"artifact_retention"`

	// WorkDir hosts transient files while a provider call is in flight.
	WorkDir string `mapstructure:"work_dir" yaml:"work_dir"`
}

// ApplyDefaults fills in missing values.
func (c *Config) ApplyDefaults() {
	if c.ArtifactRetention == 0 {
		c.ArtifactRetention = 7 * 24 * time.Hour
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
}

// ViewCache caches rendered job views between polls. All methods are best
// effort; a cache failure never fails the request.
type ViewCache interface {
	GetJob(ctx context.Context, id string) (*Job, bool)
	SetJob(ctx context.Context, j *Job)
	Invalidate(ctx context.Context, id string)
}

// Compressor is the audio preprocessing contract the service needs.
type Compressor interface {
	Compress(ctx context.Context, src, dst string, opts audio.Options) error
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Service is the processing orchestrator.
type Service struct {
	store      Store
	ledger     *credits.Ledger
	router     *insight.Router
	artifacts  artifact.Store
	compressor Compressor
	views      ViewCache
	cfg        Config
	log        *logger.Logger
}

// NewService wires the orchestrator. views may be nil.
func NewService(cfg Config, store Store, ledger *credits.Ledger, router *insight.Router, artifacts artifact.Store, compressor Compressor, views ViewCache) *Service {
	cfg.ApplyDefaults()
	return &Service{
		store:      store,
		ledger:     ledger,
		router:     router,
		artifacts:  artifacts,
		compressor: compressor,
		views:      views,
		cfg:        cfg,
		log:        logger.Get("job"),
	}
}

// CreateFromUpload compresses an uploaded recording, stores the artifact and
// creates a pending job. The raw upload never reaches artifact storage.
func (s *Service) CreateFromUpload(ctx context.Context, userID, filename string, upload io.Reader, modelID string) (*Job, error) {
	ws, err := os.MkdirTemp(s.cfg.WorkDir, "recap-upload-*")
	if err != nil {
		return nil, errors.Internal(err)
	}
	defer os.RemoveAll(ws)

	src := filepath.Join(ws, "upload"+filepath.Ext(util.SanitizeString(filename)))
	f, err := os.Create(src)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if _, err := io.Copy(f, upload); err != nil {
		f.Close()
		return nil, errors.Internal(err)
	}
	f.Close()

	compressed := filepath.Join(ws, "compressed.m4a")
	if err := s.compressor.Compress(ctx, src, compressed, audio.DefaultOptions()); err != nil {
		return nil, err
	}
	duration, err := s.compressor.Duration(ctx, compressed)
	if err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	key := artifact.Key(userID, jobID, "audio.m4a")
	out, err := os.Open(compressed)
	if err != nil {
		return nil, errors.Internal(err)
	}
	defer out.Close()
	if err := s.artifacts.Put(ctx, key, out); err != nil {
		return nil, errors.Storage("put artifact", err)
	}

	now := time.Now().UTC()
	j := &Job{
		ID:              jobID,
		UserID:          userID,
		Status:          StatusPending,
		AudioRef:        key,
		DurationSecs:    duration.Seconds(),
		ProcessingModel: modelID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateJob(ctx, j); err != nil {
		s.artifacts.Delete(ctx, key)
		return nil, err
	}

	s.log.Info("job created", logger.Fields(
		logger.FieldJobID, jobID,
		logger.FieldUserID, userID,
		"duration_secs", j.DurationSecs,
	))
	return j, nil
}

// SubmitOptions control a submission.
type SubmitOptions struct {
	// Model overrides the job's stored model for this run.
	Model string
	// Reprocess re-enters the pipeline from a completed job.
	Reprocess bool
}

// Run is an admitted submission: the job has been claimed and credits
// debited. Execute performs the provider call and the terminal bookkeeping.
type Run struct {
	svc      *Service
	snapshot *Job
	model    string
	cost     int
	from     Status
}

// JobID returns the id of the claimed job.
func (r *Run) JobID() string { return r.snapshot.ID }

// Begin admits a submission: ownership, preconditions, credit check, the
// atomic status claim and the debit, in that order. On success the job is in
// processing and the returned Run must be executed (or the process crashed,
// in which case the job stays processing until operator intervention).
func (s *Service) Begin(ctx context.Context, userID, jobID string, opts SubmitOptions) (*Run, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	// Ownership comes before any state inspection so non-owners learn
	// nothing, not even that the id exists.
	if j.UserID != userID {
		return nil, errors.NotOwner("job", jobID)
	}

	from := StatusPending
	if opts.Reprocess {
		from = StatusCompleted
		if j.Status != StatusCompleted {
			return nil, errors.Precondition("only completed jobs can be reprocessed")
		}
	}

	if j.AudioRef == "" {
		return nil, errors.Precondition("no audio to process")
	}
	exists, err := s.artifacts.Exists(ctx, j.AudioRef)
	if err != nil {
		return nil, errors.Storage("check artifact", err)
	}
	if !exists {
		return nil, errors.Precondition("audio artifact is no longer available")
	}

	model := opts.Model
	if model == "" {
		model = j.ProcessingModel
	}
	provider, err := s.router.Resolve(model)
	if err != nil {
		return nil, err
	}
	cost := credits.EstimateCost(j.DurationSecs, provider.CostPerMinute())

	// Credit availability is checked before the claim so an underfunded
	// submission leaves the job status untouched.
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < cost {
		return nil, errors.InsufficientCredits(balance, cost)
	}

	snapshot := j.Clone()

	// The claim records the debit on the row so a cancel that lands while
	// the provider call is in flight knows how much to refund.
	claimed := j.Clone()
	claimed.Status = StatusProcessing
	claimed.CreditsHeld = cost
	ok, err := s.store.UpdateJobIfStatus(ctx, claimed, from)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.AlreadyProcessing(jobID)
	}
	s.invalidate(ctx, jobID)

	if err := s.ledger.Debit(ctx, userID, cost, fmt.Sprintf("usage: job %s", jobID)); err != nil {
		// The pre-check passed but a concurrent debit drained the balance.
		// Release the claim before surfacing the error.
		if _, rbErr := s.store.UpdateJobIfStatus(ctx, snapshot, StatusProcessing); rbErr != nil {
			s.log.Error("status rollback failed after debit rejection", logger.ErrorFields(rbErr,
				logger.FieldJobID, jobID,
			))
		}
		s.invalidate(ctx, jobID)
		return nil, err
	}

	return &Run{svc: s, snapshot: snapshot, model: model, cost: cost, from: from}, nil
}

// Execute performs the provider call for an admitted run and persists the
// outcome. Safe to call on a background goroutine.
func (r *Run) Execute(ctx context.Context) (*Job, error) {
	s := r.svc
	j := r.snapshot

	audioPath, cleanup, err := s.materialize(ctx, j.AudioRef)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	defer cleanup()

	result, err := s.router.Process(ctx, insight.Request{
		UserID:    j.UserID,
		AudioPath: audioPath,
		Model:     r.model,
		OnStatus: func(status string, pct float64) {
			s.log.Debug("processing status", logger.Fields(
				logger.FieldJobID, j.ID,
				"status", status,
				"progress", pct,
			))
		},
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return r.complete(ctx, result)
}

// complete persists a successful result, conditional on the job still being
// processing. A cancel that landed mid-flight wins; the late result is
// discarded.
func (r *Run) complete(ctx context.Context, result *insight.Result) (*Job, error) {
	s := r.svc
	done := r.snapshot.Clone()
	done.Status = StatusCompleted
	done.Transcript = &result.Transcript
	done.Summary = &result.Summary
	done.ActionItems = result.ActionItems
	done.KeyTopics = result.KeyTopics
	done.Sentiment = result.Sentiment
	done.ProcessingModel = result.Model
	done.CreditsConsumed = r.snapshot.CreditsConsumed + r.cost
	done.ErrorNote = ""
	if r.from == StatusCompleted {
		now := time.Now().UTC()
		done.ReprocessedAt = &now
	}

	ok, err := s.store.UpdateJobIfStatus(ctx, done, StatusProcessing)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, done.ID)
	if !ok {
		s.log.Info("late result discarded", logger.Fields(logger.FieldJobID, done.ID))
		return s.store.GetJob(ctx, done.ID)
	}

	s.log.Info("job completed", logger.Fields(
		logger.FieldJobID, done.ID,
		logger.FieldModel, done.ProcessingModel,
		"credits", r.cost,
	))
	return done, nil
}

// fail records the failure and refunds the debit. A first submission moves
// to failed with an error note; a reprocess restores the full pre-submission
// snapshot so the previously completed result survives. Either write is
// conditional on the job still being processing so a concurrent cancel is
// not overwritten.
func (r *Run) fail(ctx context.Context, cause error) error {
	s := r.svc
	restored := r.snapshot.Clone()
	if r.from == StatusPending {
		restored.Status = StatusFailed
		restored.ErrorNote = userFacingNote(cause)
	}

	ok, err := s.store.UpdateJobIfStatus(ctx, restored, StatusProcessing)
	if err != nil {
		s.log.Error("snapshot restore failed", logger.ErrorFields(err, logger.FieldJobID, restored.ID))
	}
	s.invalidate(ctx, restored.ID)

	// A lost write means a cancel landed first and already refunded the
	// held credits; refunding again would pay the user twice.
	if ok {
		if refundErr := s.ledger.Refund(ctx, restored.UserID, r.cost, fmt.Sprintf("refund: job %s failed", restored.ID)); refundErr != nil {
			s.log.Error("refund failed", logger.ErrorFields(refundErr, logger.FieldJobID, restored.ID))
		}
	}

	s.log.Warn("job failed", logger.Fields(
		logger.FieldJobID, restored.ID,
		logger.FieldError, cause.Error(),
	))
	return cause
}

// Process admits and executes a submission synchronously.
func (s *Service) Process(ctx context.Context, userID, jobID string, opts SubmitOptions) (*Job, error) {
	run, err := s.Begin(ctx, userID, jobID, opts)
	if err != nil {
		return nil, err
	}
	return run.Execute(ctx)
}

// Cancel stops a processing job. Terminal jobs are an idempotent success;
// pending jobs cannot be cancelled because nothing is running. The in-flight
// provider call is not aborted; its late result is discarded by the
// conditional completion write.
func (s *Service) Cancel(ctx context.Context, userID, jobID string) (*Job, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.UserID != userID {
		return nil, errors.NotOwner("job", jobID)
	}

	switch {
	case j.Status.Terminal():
		return j, nil
	case j.Status == StatusPending:
		return nil, errors.Precondition("job has not been submitted")
	}

	// Cancellation records as a failed job with a note; the in-flight
	// provider result is discarded by the conditional completion write.
	cancelled := j.Clone()
	cancelled.Status = StatusFailed
	cancelled.ErrorNote = "cancelled by user"
	cancelled.CreditsHeld = 0

	ok, err := s.store.UpdateJobIfStatus(ctx, cancelled, StatusProcessing)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, jobID)
	if !ok {
		// Lost the race against completion or failure; report what won.
		return s.store.GetJob(ctx, jobID)
	}

	// The winning write stops the attempt from being charged, so the
	// credits held at claim time go back to the user.
	if j.CreditsHeld > 0 {
		if refundErr := s.ledger.Refund(ctx, userID, j.CreditsHeld, fmt.Sprintf("refund: job %s cancelled", jobID)); refundErr != nil {
			s.log.Error("refund failed", logger.ErrorFields(refundErr, logger.FieldJobID, jobID))
		}
	}

	s.log.Info("job cancelled", logger.Fields(
		logger.FieldJobID, jobID,
		logger.FieldUserID, userID,
	))
	return cancelled, nil
}

// Get returns a job view for its owner. Non-owners get NOT_FOUND.
func (s *Service) Get(ctx context.Context, userID, jobID string) (*Job, error) {
	if s.views != nil {
		if cached, ok := s.views.GetJob(ctx, jobID); ok {
			if cached.UserID != userID {
				return nil, errors.NotOwner("job", jobID)
			}
			return cached, nil
		}
	}

	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.UserID != userID {
		return nil, errors.NotOwner("job", jobID)
	}
	if s.views != nil {
		s.views.SetJob(ctx, j)
	}
	return j, nil
}

// Providers lists the configured providers with live availability.
func (s *Service) Providers(ctx context.Context) ([]insight.Descriptor, string) {
	return s.router.Descriptors(ctx), s.router.DefaultID()
}

// ReleaseExpiredArtifacts deletes audio artifacts of terminal jobs older
// than the retention window. Returns the number of artifacts released.
func (s *Service) ReleaseExpiredArtifacts(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.ArtifactRetention)
	expired, err := s.store.ListTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, j := range expired {
		if err := s.artifacts.Delete(ctx, j.AudioRef); err != nil {
			s.log.Warn("artifact delete failed", logger.ErrorFields(err, logger.FieldJobID, j.ID))
			continue
		}
		j.AudioRef = ""
		if err := s.store.UpdateJob(ctx, j); err != nil {
			s.log.Warn("artifact release not recorded", logger.ErrorFields(err, logger.FieldJobID, j.ID))
			continue
		}
		s.invalidate(ctx, j.ID)
		released++
	}
	if released > 0 {
		s.log.Info("expired artifacts released", logger.Fields("count", released))
	}
	return released, nil
}

// materialize downloads the artifact to a local file for the provider call.
func (s *Service) materialize(ctx context.Context, key string) (string, func(), error) {
	ws, err := os.MkdirTemp(s.cfg.WorkDir, "recap-run-*")
	if err != nil {
		return "", nil, errors.Internal(err)
	}
	cleanup := func() { os.RemoveAll(ws) }

	rc, err := s.artifacts.Get(ctx, key)
	if err != nil {
		cleanup()
		return "", nil, errors.Storage("get artifact", err)
	}
	defer rc.Close()

	path := filepath.Join(ws, filepath.Base(key))
	f, err := os.Create(path)
	if err != nil {
		cleanup()
		return "", nil, errors.Internal(err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		cleanup()
		return "", nil, errors.Internal(err)
	}
	f.Close()
	return path, cleanup, nil
}

func (s *Service) invalidate(ctx context.Context, jobID string) {
	if s.views != nil {
		s.views.Invalidate(ctx, jobID)
	}
}

// userFacingNote renders an error as the job's stored error note.
func userFacingNote(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Message
	}
	return "processing failed"
}
