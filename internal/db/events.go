package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/video-refinery/internal/types"
)

// Append inserts an audit event. Rows are never updated or deleted.
func (db *DB) Append(ctx context.Context, event types.Event) (types.Event, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO job_events (id, job_id, event_type, agent, details, created_at)
		 VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)`,
		event.ID, event.JobID, string(event.Type), event.Agent, event.Details, event.Timestamp,
	)
	if err != nil {
		return types.Event{}, &types.StorageError{Op: "append event", Err: err}
	}
	return event, nil
}

// Events returns a job's events in append order
func (db *DB) Events(ctx context.Context, jobID string) ([]types.Event, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return []types.Event{}, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id::text, job_id::text, event_type, agent, details, created_at
		 FROM job_events WHERE job_id = $1::uuid ORDER BY seq`,
		jobID,
	)
	if err != nil {
		return nil, &types.StorageError{Op: "list events", Err: err}
	}
	defer rows.Close()

	events := []types.Event{}
	for rows.Next() {
		var event types.Event
		var eventType string
		if err := rows.Scan(&event.ID, &event.JobID, &eventType, &event.Agent, &event.Details, &event.Timestamp); err != nil {
			return nil, &types.StorageError{Op: "scan event", Err: err}
		}
		event.Type = types.EventType(eventType)
		event.Timestamp = event.Timestamp.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Op: "list events", Err: err}
	}
	return events, nil
}
