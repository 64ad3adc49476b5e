package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/you/voxq/internal/broker"
	"github.com/you/voxq/internal/domain"
)

// terminalTTL keeps finished job records around long enough for callers to
// poll the outcome, then lets the broker reclaim them.
const terminalTTL = 24 * time.Hour

// Store persists job records as broker hashes. All mutation after creation
// happens from the single worker that owns the job, so read-modify-write
// without CAS is safe; the one cross-process signal, the cancel flag, is a
// plain flag field written by the API side and polled by the worker.
type Store struct {
	b broker.Broker
}

func NewStore(b broker.Broker) *Store { return &Store{b: b} }

func (s *Store) Create(ctx context.Context, j *domain.Job) error {
	req, err := json.Marshal(j.Request)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	fields := map[string]string{
		"id":          j.ID,
		"priority":    string(j.Priority),
		"queue":       j.Queue,
		"request":     string(req),
		"fingerprint": j.Fingerprint,
		"status":      string(j.Status),
		"progress":    j.Progress,
		"retry_count": strconv.Itoa(j.RetryCount),
		"created_at":  j.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	return errors.Wrap(s.b.HSet(ctx, jobKey(j.ID), fields), "create job record")
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	fields, err := s.b.HGetAll(ctx, jobKey(id))
	if err != nil {
		return nil, errors.Wrap(err, "load job record")
	}
	if len(fields) == 0 {
		return nil, domain.ErrJobNotFound
	}
	j := &domain.Job{
		ID:          fields["id"],
		Priority:    domain.Priority(fields["priority"]),
		Queue:       fields["queue"],
		Fingerprint: fields["fingerprint"],
		Status:      domain.Status(fields["status"]),
		Progress:    fields["progress"],
		Result:      fields["result"],
		Error:       fields["error"],
	}
	if raw := fields["request"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &j.Request); err != nil {
			return nil, errors.Wrap(err, "decode job request")
		}
	}
	j.RetryCount, _ = strconv.Atoi(fields["retry_count"])
	j.CreatedAt = parseTime(fields["created_at"])
	if t := parseTime(fields["started_at"]); !t.IsZero() {
		j.StartedAt = &t
	}
	if t := parseTime(fields["ended_at"]); !t.IsZero() {
		j.EndedAt = &t
	}
	return j, nil
}

// Start marks the job owned by a worker and in progress.
func (s *Store) Start(ctx context.Context, id string) error {
	return s.set(ctx, id, map[string]string{
		"status":     string(domain.StatusInProgress),
		"progress":   "synthesizing",
		"started_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Store) SetProgress(ctx context.Context, id, label string) error {
	return s.set(ctx, id, map[string]string{"progress": label})
}

func (s *Store) Complete(ctx context.Context, id, result string) error {
	return s.finish(ctx, id, map[string]string{
		"status":   string(domain.StatusCompleted),
		"progress": "done",
		"result":   result,
	})
}

func (s *Store) Fail(ctx context.Context, id, msg string) error {
	return s.finish(ctx, id, map[string]string{
		"status":   string(domain.StatusFailed),
		"progress": "failed",
		"error":    msg,
	})
}

func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	return s.finish(ctx, id, map[string]string{
		"status":   string(domain.StatusCancelled),
		"progress": "cancelled",
	})
}

// Requeue resets a job to queued ahead of a retry attempt.
func (s *Store) Requeue(ctx context.Context, id string, retryCount int) error {
	return s.set(ctx, id, map[string]string{
		"status":      string(domain.StatusQueued),
		"progress":    "retry scheduled",
		"retry_count": strconv.Itoa(retryCount),
	})
}

// RequestCancel raises the cooperative cancel flag the owning worker polls
// at safe points.
func (s *Store) RequestCancel(ctx context.Context, id string) error {
	return s.set(ctx, id, map[string]string{"cancel": "1"})
}

func (s *Store) CancelRequested(ctx context.Context, id string) bool {
	v, err := s.b.HGet(ctx, jobKey(id), "cancel")
	return err == nil && v == "1"
}

func (s *Store) set(ctx context.Context, id string, fields map[string]string) error {
	return errors.Wrap(s.b.HSet(ctx, jobKey(id), fields), "update job record")
}

func (s *Store) finish(ctx context.Context, id string, fields map[string]string) error {
	fields["ended_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.set(ctx, id, fields); err != nil {
		return err
	}
	return s.b.Expire(ctx, jobKey(id), terminalTTL)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
