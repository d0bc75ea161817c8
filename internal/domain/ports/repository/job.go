package repository

import (
	"context"
	"time"

	"voiceforge/internal/domain/model"
)

// JobFilter narrows List and Count queries. OwnerID is the authorization
// boundary: when set, jobs of other owners are invisible.
type JobFilter struct {
	OwnerID string
	Status  *model.JobStatus
}

// JobUpdate is a partial, atomic field update keyed by job id. Dependent
// fields of a status transition (result_ref/error/completed_at) must be
// applied in the same update so pollers never observe a half transition.
type JobUpdate struct {
	Status      *model.JobStatus
	Progress    *float64
	Message     *string
	ResultRef   *string
	Error       *string
	CompletedAt *time.Time
}

type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error

	// FindByID returns domain.ErrNotFound for unknown ids and for jobs
	// not owned by ownerID. ownerID "" skips the ownership check.
	FindByID(ctx context.Context, id, ownerID string) (*model.Job, error)

	// List returns one page ordered newest first, plus the total match count.
	List(ctx context.Context, f JobFilter, page, pageSize int) ([]*model.Job, int, error)

	Update(ctx context.Context, id string, upd JobUpdate) error

	// Delete returns domain.ErrNotFound when nothing was removed.
	Delete(ctx context.Context, id string) error

	Count(ctx context.Context, f JobFilter) (int, error)

	// QueuePosition ranks a pending job among pending jobs by
	// (created_at, id), zero-indexed.
	QueuePosition(ctx context.Context, id string) (int, error)

	// FindOlderThan returns jobs of any status created before cutoff.
	FindOlderThan(ctx context.Context, cutoff time.Time) ([]*model.Job, error)

	// FindByStatus returns all jobs in the given status, oldest first.
	FindByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error)
}
