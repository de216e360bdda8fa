package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/orderflow/internal/domain"
	"github.com/samber/lo"
)

var errRecordNotFound = fmt.Errorf("unprocessed outbox record %w", domain.ErrNotFound)

type outboxRepository struct {
	access accessor
	now    func() time.Time
}

func (r *outboxRepository) InsertRecord(_ context.Context, record domain.OutboxRecord) error {
	if record.ID == uuid.Nil {
		return fmt.Errorf("recordID is empty")
	}

	return r.access(func(st *state) error {
		if _, ok := st.orders[record.OrderID]; !ok {
			return fmt.Errorf("outbox record references missing %w", errOrderNotFound)
		}
		record.Processed = false
		record.ProcessedAt = nil
		st.outbox = append(st.outbox, record)
		return nil
	})
}

func (r *outboxRepository) GetRecords(_ context.Context, orderID uuid.UUID) ([]domain.OutboxRecord, error) {
	var records []domain.OutboxRecord

	err := r.access(func(st *state) error {
		records = lo.Filter(st.outbox, func(rec domain.OutboxRecord, _ int) bool {
			return rec.OrderID == orderID
		})
		return nil
	})

	return records, err
}

func (r *outboxRepository) ExistsForOrder(_ context.Context, orderID uuid.UUID, eventType domain.EventType) (bool, error) {
	var exists bool

	err := r.access(func(st *state) error {
		exists = slices.ContainsFunc(st.outbox, func(rec domain.OutboxRecord) bool {
			return rec.OrderID == orderID && rec.EventType == eventType
		})
		return nil
	})

	return exists, err
}

func (r *outboxRepository) ClaimBatch(_ context.Context, claimer string, limit int, lease time.Duration) ([]domain.OutboxRecord, error) {
	if claimer == "" {
		return nil, fmt.Errorf("claimer is empty")
	}

	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive: %d", limit)
	}

	now := r.now()
	staleBefore := now.Add(-lease)

	var claimed []domain.OutboxRecord

	err := r.access(func(st *state) error {
		order := make([]int, 0, len(st.outbox))
		for i := range st.outbox {
			order = append(order, i)
		}
		slices.SortStableFunc(order, func(a, b int) int {
			return st.outbox[a].CreatedAt.Compare(st.outbox[b].CreatedAt)
		})

		for _, i := range order {
			if len(claimed) == limit {
				break
			}

			rec := st.outbox[i]
			if rec.Processed || (rec.ClaimedAt != nil && !rec.ClaimedAt.Before(staleBefore)) {
				continue
			}

			rec.ClaimedBy = lo.ToPtr(claimer)
			rec.ClaimedAt = lo.ToPtr(now)
			st.outbox[i] = rec
			claimed = append(claimed, rec)
		}
		return nil
	})

	return claimed, err
}

func (r *outboxRepository) MarkProcessed(_ context.Context, recordID uuid.UUID, processedAt time.Time) error {
	return r.update(recordID, func(rec *domain.OutboxRecord) {
		rec.Processed = true
		rec.ProcessedAt = lo.ToPtr(processedAt)
		rec.ClaimedBy = nil
		rec.ClaimedAt = nil
		rec.Attempts++
		rec.LastError = nil
	})
}

func (r *outboxRepository) ReleaseClaim(_ context.Context, recordID uuid.UUID, lastError string) error {
	return r.update(recordID, func(rec *domain.OutboxRecord) {
		rec.ClaimedBy = nil
		rec.ClaimedAt = nil
		rec.Attempts++
		rec.LastError = lo.ToPtr(lastError)
	})
}

func (r *outboxRepository) PruneProcessed(_ context.Context, processedBefore time.Time) (int64, error) {
	var pruned int64

	err := r.access(func(st *state) error {
		kept := st.outbox[:0:0]
		for _, rec := range st.outbox {
			if rec.Processed && rec.ProcessedAt != nil && rec.ProcessedAt.Before(processedBefore) {
				pruned++
				continue
			}
			kept = append(kept, rec)
		}
		st.outbox = kept
		return nil
	})

	return pruned, err
}

// update applies fn to an unprocessed record.
func (r *outboxRepository) update(recordID uuid.UUID, fn func(rec *domain.OutboxRecord)) error {
	return r.access(func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].ID == recordID && !st.outbox[i].Processed {
				fn(&st.outbox[i])
				return nil
			}
		}
		return errRecordNotFound
	})
}
