package usecase

import (
	"context"

	"voiceforge/internal/domain/model"
	"voiceforge/internal/domain/ports/repository"
)

// SystemStats is the admin-facing snapshot of the system.
type SystemStats struct {
	Users        int                     `json:"users"`
	JobsByStatus map[model.JobStatus]int `json:"jobs_by_status"`
}

type StatsUseCase interface {
	Totals(ctx context.Context) (*SystemStats, error)
}

type statsUseCase struct {
	users repository.UserRepository
	jobs  JobUseCase
}

func NewStatsUseCase(users repository.UserRepository, jobs JobUseCase) StatsUseCase {
	return &statsUseCase{users: users, jobs: jobs}
}

func (s *statsUseCase) Totals(ctx context.Context) (*SystemStats, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.jobs.CountsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &SystemStats{Users: users, JobsByStatus: byStatus}, nil
}
