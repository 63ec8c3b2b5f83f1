package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/video-refinery/internal/store"
	"github.com/jonathan/video-refinery/internal/types"
)

const jobColumns = `id::text, source_url, source_kind, source_id, task_type, status,
	executed_agents, title, options, metadata, storage_uri, segments, result, error,
	created_at, updated_at`

// Create inserts a new QUEUED job. The insert is committed before returning.
func (db *DB) Create(ctx context.Context, in store.NewJob) (*types.Job, error) {
	options, err := json.Marshal(in.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job options: %w", err)
	}

	row := db.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, source_url, source_kind, source_id, task_type, status, options)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
		 RETURNING `+jobColumns,
		uuid.NewString(), in.Source.URL, string(in.Source.Kind), in.Source.ID,
		string(in.TaskType), string(types.StatusQueued), options,
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, &types.StorageError{Op: "create job", Err: err}
	}
	return job, nil
}

// Get retrieves a job by id
func (db *DB) Get(ctx context.Context, id string) (*types.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	job, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1::uuid`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, &types.StorageError{Op: "get job", Err: err}
	}
	return job, nil
}

// Update locks the row, applies the transition rules and writes the result
// in one transaction.
func (db *DB) Update(ctx context.Context, id string, status types.Status, patch store.Patch) (*types.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, &types.StorageError{Op: "begin update", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	job, err := scanJob(tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1::uuid FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, &types.StorageError{Op: "lock job", Err: err}
	}

	if err := store.Apply(job, status, patch, time.Now().UTC()); err != nil {
		return nil, err
	}

	cols, err := encodeJSONColumns(job)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE jobs SET status = $2, executed_agents = $3, title = $4, metadata = $5,
		 storage_uri = $6, segments = $7, result = $8, error = $9, updated_at = $10
		 WHERE id = $1::uuid`,
		id, string(job.Status), job.ExecutedAgents, job.Title, cols.metadata,
		job.StorageURI, cols.segments, cols.result, job.Error, job.UpdatedAt,
	)
	if err != nil {
		return nil, &types.StorageError{Op: "update job", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, &types.StorageError{Op: "commit update", Err: err}
	}
	return job, nil
}

// List returns jobs newest first, optionally filtered by status
func (db *DB) List(ctx context.Context, filter store.Filter) ([]*types.Job, error) {
	filter = filter.Normalize()

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(filter.Status))
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &types.StorageError{Op: "list jobs", Err: err}
	}
	defer rows.Close()

	jobs := []*types.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, &types.StorageError{Op: "scan job", Err: err}
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Op: "list jobs", Err: err}
	}
	return jobs, nil
}

// Stats counts jobs per status
func (db *DB) Stats(ctx context.Context) (map[types.Status]int, error) {
	rows, err := db.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, &types.StorageError{Op: "job stats", Err: err}
	}
	defer rows.Close()

	counts := make(map[types.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, &types.StorageError{Op: "scan job stats", Err: err}
		}
		counts[types.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Op: "job stats", Err: err}
	}
	return counts, nil
}

type jsonColumns struct {
	metadata []byte
	segments []byte
	result   []byte
}

func encodeJSONColumns(job *types.Job) (jsonColumns, error) {
	var cols jsonColumns
	var err error
	if job.Metadata != nil {
		if cols.metadata, err = json.Marshal(job.Metadata); err != nil {
			return cols, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if job.Segments != nil {
		if cols.segments, err = json.Marshal(job.Segments); err != nil {
			return cols, fmt.Errorf("failed to marshal segments: %w", err)
		}
	}
	if job.Result != nil {
		if cols.result, err = json.Marshal(job.Result); err != nil {
			return cols, fmt.Errorf("failed to marshal result: %w", err)
		}
	}
	return cols, nil
}

// scanJob reads one row selected with jobColumns.
func scanJob(row pgx.Row) (*types.Job, error) {
	var (
		job                types.Job
		kind, task, status string
		options            []byte
		metadata, segments []byte
		result             []byte
	)
	err := row.Scan(&job.ID, &job.SourceURL, &kind, &job.SourceID, &task, &status,
		&job.ExecutedAgents, &job.Title, &options, &metadata, &job.StorageURI, &segments,
		&result, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	job.SourceKind = types.SourceKind(kind)
	job.TaskType = types.TaskType(task)
	job.Status = types.Status(status)
	if job.ExecutedAgents == nil {
		job.ExecutedAgents = []string{}
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()

	if len(options) > 0 {
		if err := json.Unmarshal(options, &job.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options: %w", err)
		}
	}
	if len(metadata) > 0 {
		job.Metadata = &types.VideoMetadata{}
		if err := json.Unmarshal(metadata, job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &job.Segments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal segments: %w", err)
		}
	}
	if len(result) > 0 {
		job.Result = &types.AnalysisResult{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return &job, nil
}
