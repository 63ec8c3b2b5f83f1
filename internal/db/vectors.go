package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/video-refinery/internal/types"
)

// SaveVectors replaces the stored vectors of a job in one batch.
func (db *DB) SaveVectors(ctx context.Context, jobID string, vectors []types.Vector) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return &types.StorageError{Op: "begin save vectors", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM job_vectors WHERE job_id = $1::uuid`, jobID); err != nil {
		return &types.StorageError{Op: "clear vectors", Err: err}
	}

	batch := &pgx.Batch{}
	for _, v := range vectors {
		batch.Queue(
			`INSERT INTO job_vectors (job_id, chunk, kind, content, embedding)
			 VALUES ($1::uuid, $2, $3, $4, $5)`,
			jobID, v.Chunk, v.Kind, v.Content, v.Embedding,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return &types.StorageError{Op: "insert vectors", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &types.StorageError{Op: "commit vectors", Err: err}
	}
	return nil
}

// CountVectors returns how many vectors are stored for a job.
func (db *DB) CountVectors(ctx context.Context, jobID string) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM job_vectors WHERE job_id = $1::uuid`, jobID,
	).Scan(&n)
	if err != nil {
		return 0, &types.StorageError{Op: "count vectors", Err: err}
	}
	return n, nil
}
