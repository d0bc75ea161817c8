package model

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transitions may occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Job tracks one synthesis request from submission to its terminal state.
// IDs are ULIDs, so lexicographic id order matches creation order; the
// pending queue is ranked by (created_at, id).
type Job struct {
	ID          string
	OwnerID     string
	Status      JobStatus
	Progress    float64
	Message     string
	Params      SynthesisParams
	ResultRef   string
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}
