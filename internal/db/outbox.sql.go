package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const outboxColumns = `id, order_id, event_type, payload, processed, created_at, processed_at,
       claimed_by, claimed_at, attempts, last_error`

func scanOutboxRecords(rows pgx.Rows) ([]OutboxRecord, error) {
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var r OutboxRecord
		if err := rows.Scan(
			&r.ID,
			&r.OrderID,
			&r.EventType,
			&r.Payload,
			&r.Processed,
			&r.CreatedAt,
			&r.ProcessedAt,
			&r.ClaimedBy,
			&r.ClaimedAt,
			&r.Attempts,
			&r.LastError,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

const insertOutboxRecord = `-- name: InsertOutboxRecord :exec
INSERT INTO outbox_records (id, order_id, event_type, payload, created_at)
VALUES ($1, $2, $3, $4, $5)
`

type InsertOutboxRecordParams struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

func (q *Queries) InsertOutboxRecord(ctx context.Context, arg InsertOutboxRecordParams) error {
	_, err := q.db.Exec(ctx, insertOutboxRecord,
		arg.ID,
		arg.OrderID,
		arg.EventType,
		arg.Payload,
		arg.CreatedAt,
	)
	return err
}

const getOutboxRecords = `-- name: GetOutboxRecords :many
SELECT ` + outboxColumns + `
FROM outbox_records
WHERE order_id = $1
ORDER BY created_at, id
`

func (q *Queries) GetOutboxRecords(ctx context.Context, orderID uuid.UUID) ([]OutboxRecord, error) {
	rows, err := q.db.Query(ctx, getOutboxRecords, orderID)
	if err != nil {
		return nil, err
	}
	return scanOutboxRecords(rows)
}

const existsOutboxRecord = `-- name: ExistsOutboxRecord :one
SELECT EXISTS (SELECT 1 FROM outbox_records WHERE order_id = $1 AND event_type = $2)
`

func (q *Queries) ExistsOutboxRecord(ctx context.Context, orderID uuid.UUID, eventType string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, existsOutboxRecord, orderID, eventType).Scan(&exists)
	return exists, err
}

const claimOutboxRecords = `-- name: ClaimOutboxRecords :many
WITH claimable AS (SELECT id
                   FROM outbox_records
                   WHERE NOT processed
                     AND (claimed_at IS NULL OR claimed_at < $3)
                   ORDER BY created_at, id
                   LIMIT $2 FOR UPDATE SKIP LOCKED)
UPDATE outbox_records o
SET claimed_by = $1,
    claimed_at = $4
FROM claimable c
WHERE o.id = c.id
RETURNING o.id, o.order_id, o.event_type, o.payload, o.processed, o.created_at, o.processed_at,
    o.claimed_by, o.claimed_at, o.attempts, o.last_error
`

type ClaimOutboxRecordsParams struct {
	ClaimedBy   string
	Limit       int32
	StaleBefore time.Time
	ClaimedAt   time.Time
}

// ClaimOutboxRecords returns the claimed rows in no particular order.
func (q *Queries) ClaimOutboxRecords(ctx context.Context, arg ClaimOutboxRecordsParams) ([]OutboxRecord, error) {
	rows, err := q.db.Query(ctx, claimOutboxRecords,
		arg.ClaimedBy,
		arg.Limit,
		arg.StaleBefore,
		arg.ClaimedAt,
	)
	if err != nil {
		return nil, err
	}
	return scanOutboxRecords(rows)
}

const markOutboxRecordProcessed = `-- name: MarkOutboxRecordProcessed :execresult
UPDATE outbox_records
SET processed    = TRUE,
    processed_at = $2,
    claimed_by   = NULL,
    claimed_at   = NULL,
    attempts     = attempts + 1,
    last_error   = NULL
WHERE id = $1
  AND NOT processed
`

func (q *Queries) MarkOutboxRecordProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, markOutboxRecordProcessed, id, processedAt)
}

const releaseOutboxClaim = `-- name: ReleaseOutboxClaim :execresult
UPDATE outbox_records
SET claimed_by = NULL,
    claimed_at = NULL,
    attempts   = attempts + 1,
    last_error = $2
WHERE id = $1
  AND NOT processed
`

func (q *Queries) ReleaseOutboxClaim(ctx context.Context, id uuid.UUID, lastError string) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, releaseOutboxClaim, id, lastError)
}

const deleteProcessedOutboxRecords = `-- name: DeleteProcessedOutboxRecords :execresult
DELETE
FROM outbox_records
WHERE processed
  AND processed_at < $1
`

func (q *Queries) DeleteProcessedOutboxRecords(ctx context.Context, processedBefore time.Time) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, deleteProcessedOutboxRecords, processedBefore)
}
