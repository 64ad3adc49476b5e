// Package archive persists terminal job records to Postgres. The broker
// expires finished jobs after a day; the archive is the durable trail for
// dead-letter inspection and audit. It is optional: without a DSN the
// pipeline runs with no archive at all.
package archive

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose"

	"github.com/you/voxq/internal/domain"
)

type Store struct{ db *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{db} }

// Migrate brings the archive schema up to date before workers start
// writing to it.
func Migrate(dsn, dir string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return errors.Wrap(err, "open archive db")
	}
	defer db.Close()
	return errors.Wrap(goose.Up(db, dir), "migrate archive schema")
}

// Record upserts one terminal job. Workers call it best effort; a retried
// job that fails twice simply overwrites its previous terminal row.
func (s *Store) Record(ctx context.Context, j *domain.Job) error {
	_, err := s.db.Exec(ctx, `insert into job_archive(
id, priority, queue, fingerprint, status, retry_count, result, error, created_at, started_at, ended_at
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
on conflict (id) do update set
status = excluded.status, retry_count = excluded.retry_count,
result = excluded.result, error = excluded.error, ended_at = excluded.ended_at`,
		j.ID, j.Priority, j.Queue, j.Fingerprint, j.Status, j.RetryCount,
		j.Result, j.Error, j.CreatedAt, j.StartedAt, j.EndedAt,
	)
	return errors.Wrap(err, "archive job")
}
