package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"voiceforge/internal/domain"
	"voiceforge/internal/domain/model"
	"voiceforge/internal/domain/ports/adapter"
	"voiceforge/internal/domain/ports/repository"
	"voiceforge/internal/infra/logging"
	"voiceforge/internal/infra/metrics"
)

// Dispatcher launches a job execution in its own goroutine, independent of
// the submitting request.
type Dispatcher interface {
	Go(task func(ctx context.Context))
}

// JobStatusView is a job plus its derived queue position. QueuePosition is
// non-nil only while the job is pending; it is recomputed on every poll.
type JobStatusView struct {
	Job           *model.Job
	QueuePosition *int
}

type JobUseCase interface {
	// Submit persists a pending job and schedules its execution. It never
	// blocks on the admission gate.
	Submit(ctx context.Context, ownerID string, params model.SynthesisParams) (*model.Job, error)

	// Execute drives one job through processing to a terminal state. All
	// synthesis errors are absorbed into the failed state; pollers learn
	// of them only through the job's error field.
	Execute(ctx context.Context, jobID string)

	GetStatus(ctx context.Context, jobID, ownerID string) (*JobStatusView, error)

	// GetResult returns the audio artifact of a completed job, or
	// domain.ErrNotReady while the job is in any other state.
	GetResult(ctx context.Context, jobID, ownerID string) (io.ReadCloser, *model.Job, error)

	List(ctx context.Context, ownerID string, status *model.JobStatus, page, pageSize int) ([]*JobStatusView, int, error)

	// Delete removes the job and its artifact. A job whose synthesis is
	// still running refuses deletion with domain.ErrNotReady. Repeating a
	// delete yields domain.ErrNotFound, as does deleting someone else's job.
	Delete(ctx context.Context, jobID, ownerID string) error

	// RecoverInterrupted fails jobs left processing by a previous run and
	// re-dispatches pending ones. Called once at startup.
	RecoverInterrupted(ctx context.Context) (failed, requeued int, err error)

	CountsByStatus(ctx context.Context) (map[model.JobStatus]int, error)
}

type jobUseCase struct {
	jobs      repository.JobRepository
	users     repository.UserRepository
	synth     adapter.SynthesisAdapter
	artifacts adapter.ArtifactStore
	gate      *AdmissionGate
	disp      Dispatcher
	timeout   time.Duration
	log       *zerolog.Logger
}

func NewJobUseCase(
	jobs repository.JobRepository,
	users repository.UserRepository,
	synth adapter.SynthesisAdapter,
	artifacts adapter.ArtifactStore,
	gate *AdmissionGate,
	disp Dispatcher,
	timeout time.Duration,
	logger *zerolog.Logger,
) JobUseCase {
	l := logger.With().Str("component", "JobUseCase").Logger()
	return &jobUseCase{
		jobs:      jobs,
		users:     users,
		synth:     synth,
		artifacts: artifacts,
		gate:      gate,
		disp:      disp,
		timeout:   timeout,
		log:       &l,
	}
}

// newJobID returns a ULID. ULIDs sort by creation time, and the process-wide
// monotonic entropy source keeps same-millisecond ids strictly increasing,
// so (created_at, id) is an unambiguous queue order.
func newJobID() string {
	return ulid.MustNew(ulid.Now(), ulid.DefaultEntropy()).String()
}

func (u *jobUseCase) Submit(ctx context.Context, ownerID string, params model.SynthesisParams) (*model.Job, error) {
	if ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	job := &model.Job{
		ID:        newJobID(),
		OwnerID:   ownerID,
		Status:    model.JobStatusPending,
		Progress:  0,
		Message:   "queued",
		Params:    params,
		CreatedAt: time.Now().UTC(),
	}
	if err := u.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	metrics.IncJobSubmitted()
	u.refreshQueueDepth(ctx)
	u.log.Info().Str("job_id", job.ID).Str("user_id", ownerID).Msg("job submitted")

	u.dispatch(job.ID)
	return job, nil
}

func (u *jobUseCase) dispatch(jobID string) {
	if u.disp == nil {
		return
	}
	u.disp.Go(func(ctx context.Context) {
		u.Execute(ctx, jobID)
	})
}

func (u *jobUseCase) Execute(ctx context.Context, jobID string) {
	log := logging.With(logging.WithJobID(ctx, jobID), u.log)
	defer logging.TraceDuration(log, "JobUseCase.Execute")()

	job, err := u.jobs.FindByID(ctx, jobID, "")
	if err != nil {
		log.Error().Err(err).Msg("job vanished before execution")
		return
	}
	if job.Status != model.JobStatusPending {
		log.Warn().Str("status", string(job.Status)).Msg("skipping non-pending job")
		return
	}

	if err := u.transition(ctx, jobID, model.JobStatusProcessing, "starting"); err != nil {
		log.Error().Err(err).Msg("failed to mark job processing")
		return
	}
	u.refreshQueueDepth(ctx)

	if err := u.gate.Acquire(ctx); err != nil {
		// Shutdown or cancellation while still queued for admission.
		u.fail(context.Background(), jobID, "cancelled before admission: "+err.Error())
		u.cleanupInputs(context.Background(), log, job)
		metrics.IncJobProcessed(string(model.JobStatusFailed))
		return
	}
	metrics.SetActiveSynthesis(u.gate.InFlight())
	defer func() {
		u.gate.Release()
		metrics.SetActiveSynthesis(u.gate.InFlight())
	}()

	runCtx := ctx
	if u.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	start := time.Now()
	resultRef, runErr := u.synth.Run(runCtx, adapter.SynthesisRequest{
		JobID:  job.ID,
		Params: job.Params,
	}, u.progressFunc(jobID))
	elapsed := time.Since(start)

	// Terminal writes use a fresh context so an in-flight shutdown cannot
	// leave the job stuck in processing.
	finCtx := context.Background()
	if runErr != nil {
		msg := runErr.Error()
		if errors.Is(runErr, context.DeadlineExceeded) {
			msg = fmt.Sprintf("%s after %s", domain.ErrSynthesisTimeout, u.timeout)
		}
		u.fail(finCtx, jobID, msg)
		metrics.IncJobProcessed(string(model.JobStatusFailed))
		log.Error().Err(runErr).Dur("duration", elapsed).Msg("synthesis failed")
	} else {
		now := time.Now().UTC()
		st := model.JobStatusCompleted
		progress := 1.0
		message := "generation completed"
		if err := u.jobs.Update(finCtx, jobID, repository.JobUpdate{
			Status:      &st,
			Progress:    &progress,
			Message:     &message,
			ResultRef:   &resultRef,
			CompletedAt: &now,
		}); err != nil {
			log.Error().Err(err).Msg("failed to record completion")
		}
		if err := u.users.IncrementGenerations(finCtx, job.OwnerID); err != nil {
			log.Warn().Err(err).Msg("failed to bump owner generation count")
		}
		metrics.IncJobProcessed(string(model.JobStatusCompleted))
		metrics.ObserveSynthesisDuration(elapsed)
		log.Info().Str("result_ref", resultRef).Dur("duration", elapsed).Msg("synthesis completed")
	}

	u.cleanupInputs(finCtx, log, job)
}

// progressFunc returns a callback that forwards monotonically non-decreasing
// progress to the store. Writes are best-effort; a missed tick never fails
// the run.
func (u *jobUseCase) progressFunc(jobID string) adapter.ProgressFunc {
	var mu sync.Mutex
	last := 0.0
	return func(fraction float64, message string) {
		mu.Lock()
		defer mu.Unlock()
		if fraction > 1 {
			fraction = 1
		}
		if fraction < last {
			fraction = last
		}
		last = fraction
		upd := repository.JobUpdate{Progress: &fraction}
		if message != "" {
			upd.Message = &message
		}
		if err := u.jobs.Update(context.Background(), jobID, upd); err != nil {
			u.log.Debug().Err(err).Str("job_id", jobID).Msg("progress update dropped")
		}
	}
}

// refreshQueueDepth republishes the pending count. Best-effort; the gauge is
// advisory and self-corrects on the next state change.
func (u *jobUseCase) refreshQueueDepth(ctx context.Context) {
	st := model.JobStatusPending
	n, err := u.jobs.Count(ctx, repository.JobFilter{Status: &st})
	if err != nil {
		return
	}
	metrics.SetQueueDepth(n)
}

func (u *jobUseCase) transition(ctx context.Context, jobID string, st model.JobStatus, message string) error {
	return u.jobs.Update(ctx, jobID, repository.JobUpdate{Status: &st, Message: &message})
}

// fail records the failed terminal state. Error text, status and
// completed_at land in one update so pollers never see a partial write.
func (u *jobUseCase) fail(ctx context.Context, jobID, errText string) {
	now := time.Now().UTC()
	st := model.JobStatusFailed
	message := "generation failed"
	if err := u.jobs.Update(ctx, jobID, repository.JobUpdate{
		Status:      &st,
		Message:     &message,
		Error:       &errText,
		CompletedAt: &now,
	}); err != nil {
		u.log.Error().Err(err).Str("job_id", jobID).Msg("failed to record failure")
	}
}

// cleanupInputs removes uploaded reference audio once execution finished,
// whatever the outcome. Failures are logged, never propagated.
func (u *jobUseCase) cleanupInputs(ctx context.Context, log *zerolog.Logger, job *model.Job) {
	for _, ref := range []string{job.Params.PromptAudioRef, job.Params.EmoAudioRef} {
		if ref == "" {
			continue
		}
		if err := u.artifacts.Delete(ctx, ref); err != nil {
			log.Warn().Err(err).Str("ref", ref).Msg("temp input cleanup failed")
		}
	}
}

func (u *jobUseCase) GetStatus(ctx context.Context, jobID, ownerID string) (*JobStatusView, error) {
	job, err := u.jobs.FindByID(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}
	view := &JobStatusView{Job: job}
	if job.Status == model.JobStatusPending {
		pos, err := u.jobs.QueuePosition(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		view.QueuePosition = &pos
	}
	return view, nil
}

func (u *jobUseCase) GetResult(ctx context.Context, jobID, ownerID string) (io.ReadCloser, *model.Job, error) {
	job, err := u.jobs.FindByID(ctx, jobID, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, job, domain.ErrNotReady
	}
	if job.ResultRef == "" || !u.artifacts.Exists(ctx, job.ResultRef) {
		return nil, job, domain.ErrNotFound
	}
	rc, err := u.artifacts.Open(ctx, job.ResultRef)
	if err != nil {
		return nil, job, err
	}
	return rc, job, nil
}

func (u *jobUseCase) List(ctx context.Context, ownerID string, status *model.JobStatus, page, pageSize int) ([]*JobStatusView, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	jobs, total, err := u.jobs.List(ctx, repository.JobFilter{OwnerID: ownerID, Status: status}, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	views := make([]*JobStatusView, 0, len(jobs))
	for _, j := range jobs {
		v := &JobStatusView{Job: j}
		if j.Status == model.JobStatusPending {
			pos, err := u.jobs.QueuePosition(ctx, j.ID)
			if err != nil {
				return nil, 0, err
			}
			v.QueuePosition = &pos
		}
		views = append(views, v)
	}
	return views, total, nil
}

func (u *jobUseCase) Delete(ctx context.Context, jobID, ownerID string) error {
	job, err := u.jobs.FindByID(ctx, jobID, ownerID)
	if err != nil {
		return err
	}
	// A mid-run delete would orphan the artifact the adapter writes after
	// the row is gone. Callers retry once the job reaches a terminal state.
	if job.Status == model.JobStatusProcessing {
		return domain.ErrNotReady
	}
	if job.ResultRef != "" {
		if err := u.artifacts.Delete(ctx, job.ResultRef); err != nil {
			u.log.Warn().Err(err).Str("job_id", jobID).Str("ref", job.ResultRef).Msg("artifact delete failed")
		}
	}
	return u.jobs.Delete(ctx, jobID)
}

func (u *jobUseCase) RecoverInterrupted(ctx context.Context) (int, int, error) {
	stuck, err := u.jobs.FindByStatus(ctx, model.JobStatusProcessing)
	if err != nil {
		return 0, 0, err
	}
	for _, j := range stuck {
		u.fail(ctx, j.ID, "interrupted by restart")
		u.cleanupInputs(ctx, u.log, j)
	}

	pending, err := u.jobs.FindByStatus(ctx, model.JobStatusPending)
	if err != nil {
		return len(stuck), 0, err
	}
	for _, j := range pending {
		u.dispatch(j.ID)
	}
	if len(stuck) > 0 || len(pending) > 0 {
		u.log.Info().Int("failed", len(stuck)).Int("requeued", len(pending)).Msg("recovered interrupted jobs")
	}
	return len(stuck), len(pending), nil
}

func (u *jobUseCase) CountsByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	out := make(map[model.JobStatus]int, 4)
	for _, st := range []model.JobStatus{
		model.JobStatusPending,
		model.JobStatusProcessing,
		model.JobStatusCompleted,
		model.JobStatusFailed,
	} {
		st := st
		n, err := u.jobs.Count(ctx, repository.JobFilter{Status: &st})
		if err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, nil
}
