package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"voiceforge/internal/domain"
	"voiceforge/internal/domain/model"
	"voiceforge/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*PostgresJobRepo)(nil)

type PostgresJobRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresJobRepo(pool *pgxpool.Pool) *PostgresJobRepo {
	return &PostgresJobRepo{pool: pool}
}

const jobColumns = `id, owner_id, status, progress, message, params, result_ref, error, created_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		j         model.Job
		statusStr string
		paramsRaw []byte
	)
	err := row.Scan(&j.ID, &j.OwnerID, &statusStr, &j.Progress, &j.Message,
		&paramsRaw, &j.ResultRef, &j.Error, &j.CreatedAt, &j.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Status = model.JobStatus(statusStr)
	if err := json.Unmarshal(paramsRaw, &j.Params); err != nil {
		return nil, fmt.Errorf("postgres: decode job params: %w", err)
	}
	return &j, nil
}

func (r *PostgresJobRepo) Create(ctx context.Context, job *model.Job) error {
	paramsRaw, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("postgres: encode job params: %w", err)
	}

	const q = `
INSERT INTO tts_jobs (id, owner_id, status, progress, message, params, result_ref, error, created_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err = r.pool.Exec(ctx, q,
		job.ID, job.OwnerID, string(job.Status), job.Progress, job.Message,
		paramsRaw, job.ResultRef, job.Error, job.CreatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("postgres: create job: %w", err)
	}
	return nil
}

func (r *PostgresJobRepo) FindByID(ctx context.Context, id, ownerID string) (*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM tts_jobs
 WHERE id = $1 AND ($2 = '' OR owner_id = $2);`

	return scanJob(r.pool.QueryRow(ctx, q, id, ownerID))
}

func (r *PostgresJobRepo) List(ctx context.Context, f repository.JobFilter, page, pageSize int) ([]*model.Job, int, error) {
	statusArg := statusFilterArg(f)

	total, err := r.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	const q = `
SELECT ` + jobColumns + `
  FROM tts_jobs
 WHERE ($1 = '' OR owner_id = $1)
   AND ($2::text IS NULL OR status = $2)
 ORDER BY created_at DESC, id DESC
 LIMIT $3 OFFSET $4;`

	offset := (page - 1) * pageSize
	rows, err := r.pool.Query(ctx, q, f.OwnerID, statusArg, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *PostgresJobRepo) Update(ctx context.Context, id string, upd repository.JobUpdate) error {
	var statusArg *string
	if upd.Status != nil {
		s := string(*upd.Status)
		statusArg = &s
	}

	const q = `
UPDATE tts_jobs SET
  status       = COALESCE($2, status),
  progress     = COALESCE($3, progress),
  message      = COALESCE($4, message),
  result_ref   = COALESCE($5, result_ref),
  error        = COALESCE($6, error),
  completed_at = COALESCE($7, completed_at)
WHERE id = $1;`

	ct, err := r.pool.Exec(ctx, q, id, statusArg, upd.Progress, upd.Message, upd.ResultRef, upd.Error, upd.CompletedAt)
	if err != nil {
		return fmt.Errorf("postgres: update job: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresJobRepo) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM tts_jobs WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete job: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresJobRepo) Count(ctx context.Context, f repository.JobFilter) (int, error) {
	const q = `
SELECT COUNT(*) FROM tts_jobs
 WHERE ($1 = '' OR owner_id = $1)
   AND ($2::text IS NULL OR status = $2);`

	var n int
	if err := r.pool.QueryRow(ctx, q, f.OwnerID, statusFilterArg(f)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count jobs: %w", err)
	}
	return n, nil
}

func (r *PostgresJobRepo) QueuePosition(ctx context.Context, id string) (int, error) {
	// Rank among pending jobs by submission order, ids breaking exact
	// timestamp ties. Zero means next in line.
	const q = `
SELECT COUNT(*)
  FROM tts_jobs j, tts_jobs me
 WHERE me.id = $1
   AND j.status = 'pending'
   AND (j.created_at, j.id) < (me.created_at, me.id);`

	var n int
	if err := r.pool.QueryRow(ctx, q, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: queue position: %w", err)
	}
	return n, nil
}

func (r *PostgresJobRepo) FindOlderThan(ctx context.Context, cutoff time.Time) ([]*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM tts_jobs
 WHERE created_at < $1
 ORDER BY created_at, id;`

	rows, err := r.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: find older than: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (r *PostgresJobRepo) FindByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM tts_jobs
 WHERE status = $1
 ORDER BY created_at, id;`

	rows, err := r.pool.Query(ctx, q, string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: find by status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]*model.Job, error) {
	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate jobs: %w", err)
	}
	return jobs, nil
}

func statusFilterArg(f repository.JobFilter) *string {
	if f.Status == nil {
		return nil
	}
	s := string(*f.Status)
	return &s
}
