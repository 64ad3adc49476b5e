package domain

import "time"

type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether a job in this status will never change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh     Priority = "high"
	PriorityStandard Priority = "standard"
	PriorityBatch    Priority = "batch"
	PriorityRetry    Priority = "retry"
)

// Job is the broker-side record of one synthesis request. A job is mutated
// only by the worker that owns it; once Status is terminal it is read-only.
type Job struct {
	ID          string
	Priority    Priority
	Queue       string
	Request     Request
	Fingerprint string
	Status      Status
	Progress    string
	RetryCount  int
	CreatedAt   time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
	Result      string
	Error       string
}
