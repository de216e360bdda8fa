package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/orderflow/internal/db"
	"github.com/nikolayk812/orderflow/internal/domain"
	"github.com/nikolayk812/orderflow/internal/port"
)

var ErrRecordNotFound = fmt.Errorf("unprocessed outbox record %w", domain.ErrNotFound)

type outboxRepository struct {
	q   *db.Queries
	now func() time.Time
}

func NewOutbox(pool *pgxpool.Pool) port.OutboxRepository {
	return &outboxRepository{
		q:   db.New(pool),
		now: utcNow,
	}
}

func NewOutboxWithTx(tx pgx.Tx) port.OutboxRepository {
	return &outboxRepository{
		q:   db.New(tx),
		now: utcNow,
	}
}

func (r *outboxRepository) InsertRecord(ctx context.Context, record domain.OutboxRecord) error {
	if record.ID == uuid.Nil {
		return fmt.Errorf("recordID is empty")
	}

	if record.OrderID == uuid.Nil {
		return fmt.Errorf("orderID is empty")
	}

	if err := r.q.InsertOutboxRecord(ctx, db.InsertOutboxRecordParams{
		ID:        record.ID,
		OrderID:   record.OrderID,
		EventType: string(record.EventType),
		Payload:   record.PayloadJSON,
		CreatedAt: record.CreatedAt,
	}); err != nil {
		return fmt.Errorf("q.InsertOutboxRecord: %w", err)
	}

	return nil
}

func (r *outboxRepository) GetRecords(ctx context.Context, orderID uuid.UUID) ([]domain.OutboxRecord, error) {
	rows, err := r.q.GetOutboxRecords(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("q.GetOutboxRecords: %w", err)
	}

	return mapDBOutboxRecordsToDomain(rows)
}

func (r *outboxRepository) ExistsForOrder(ctx context.Context, orderID uuid.UUID, eventType domain.EventType) (bool, error) {
	exists, err := r.q.ExistsOutboxRecord(ctx, orderID, string(eventType))
	if err != nil {
		return false, fmt.Errorf("q.ExistsOutboxRecord: %w", err)
	}

	return exists, nil
}

func (r *outboxRepository) ClaimBatch(ctx context.Context, claimer string, limit int, lease time.Duration) ([]domain.OutboxRecord, error) {
	if claimer == "" {
		return nil, fmt.Errorf("claimer is empty")
	}

	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive: %d", limit)
	}

	now := r.now()

	rows, err := r.q.ClaimOutboxRecords(ctx, db.ClaimOutboxRecordsParams{
		ClaimedBy:   claimer,
		Limit:       int32(limit),
		StaleBefore: now.Add(-lease),
		ClaimedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("q.ClaimOutboxRecords: %w", err)
	}

	records, err := mapDBOutboxRecordsToDomain(rows)
	if err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING does not keep the CTE order
	slices.SortFunc(records, compareOutboxRecords)

	return records, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, recordID uuid.UUID, processedAt time.Time) error {
	cmdTag, err := r.q.MarkOutboxRecordProcessed(ctx, recordID, processedAt)
	if err != nil {
		return fmt.Errorf("q.MarkOutboxRecordProcessed: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("q.MarkOutboxRecordProcessed: %w", ErrRecordNotFound)
	}

	return nil
}

func (r *outboxRepository) ReleaseClaim(ctx context.Context, recordID uuid.UUID, lastError string) error {
	cmdTag, err := r.q.ReleaseOutboxClaim(ctx, recordID, lastError)
	if err != nil {
		return fmt.Errorf("q.ReleaseOutboxClaim: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("q.ReleaseOutboxClaim: %w", ErrRecordNotFound)
	}

	return nil
}

func (r *outboxRepository) PruneProcessed(ctx context.Context, processedBefore time.Time) (int64, error) {
	cmdTag, err := r.q.DeleteProcessedOutboxRecords(ctx, processedBefore)
	if err != nil {
		return 0, fmt.Errorf("q.DeleteProcessedOutboxRecords: %w", err)
	}

	return cmdTag.RowsAffected(), nil
}

func compareOutboxRecords(a, b domain.OutboxRecord) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return slices.Compare(a.ID[:], b.ID[:])
}

func mapDBOutboxRecordToDomain(row db.OutboxRecord) (domain.OutboxRecord, error) {
	eventType, err := domain.ToEventType(row.EventType)
	if err != nil {
		return domain.OutboxRecord{}, fmt.Errorf("domain.ToEventType[%s]: %w", row.EventType, err)
	}

	return domain.OutboxRecord{
		ID:          row.ID,
		OrderID:     row.OrderID,
		EventType:   eventType,
		PayloadJSON: row.Payload,
		Processed:   row.Processed,
		CreatedAt:   row.CreatedAt,
		ProcessedAt: row.ProcessedAt,
		ClaimedBy:   row.ClaimedBy,
		ClaimedAt:   row.ClaimedAt,
		Attempts:    int(row.Attempts),
		LastError:   row.LastError,
	}, nil
}

func mapDBOutboxRecordsToDomain(rows []db.OutboxRecord) ([]domain.OutboxRecord, error) {
	records := make([]domain.OutboxRecord, 0, len(rows))

	for _, row := range rows {
		record, err := mapDBOutboxRecordToDomain(row)
		if err != nil {
			return nil, fmt.Errorf("mapDBOutboxRecordToDomain: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
