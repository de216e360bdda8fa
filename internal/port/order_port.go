package port

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/orderflow/internal/domain"
)

type OrderRepository interface {
	// GetOrder returns the order with all of its items.
	GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error)
	// GetOrderForUpdate is GetOrder that also locks the order row until the
	// surrounding transaction ends.
	GetOrderForUpdate(ctx context.Context, orderID uuid.UUID) (domain.Order, error)

	SearchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	// GetItemOwner returns the id of the order the item belongs to.
	GetItemOwner(ctx context.Context, itemID uuid.UUID) (uuid.UUID, error)

	InsertOrder(ctx context.Context, order domain.Order) error

	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error
	UpdateItemStatuses(ctx context.Context, orderID uuid.UUID, itemIDs []uuid.UUID, status domain.ItemStatus) error
	UpdateTrackingNumber(ctx context.Context, orderID uuid.UUID, trackingNumber string) error

	// CancelIfPending cancels the order only if it is still PENDING and was
	// created before cutoff. It reports whether the order was cancelled.
	CancelIfPending(ctx context.Context, orderID uuid.UUID, cutoff time.Time) (bool, error)
}

type OutboxRepository interface {
	InsertRecord(ctx context.Context, record domain.OutboxRecord) error
	GetRecords(ctx context.Context, orderID uuid.UUID) ([]domain.OutboxRecord, error)
	ExistsForOrder(ctx context.Context, orderID uuid.UUID, eventType domain.EventType) (bool, error)

	// ClaimBatch marks up to limit unprocessed records, oldest first, as
	// claimed by claimer. Records claimed by someone else within lease are skipped.
	ClaimBatch(ctx context.Context, claimer string, limit int, lease time.Duration) ([]domain.OutboxRecord, error)
	MarkProcessed(ctx context.Context, recordID uuid.UUID, processedAt time.Time) error
	ReleaseClaim(ctx context.Context, recordID uuid.UUID, lastError string) error

	PruneProcessed(ctx context.Context, processedBefore time.Time) (int64, error)
}

// Repositories are bound to one transaction.
type Repositories struct {
	Orders OrderRepository
	Outbox OutboxRepository
}

// Transactor runs fn in a single transaction: everything fn writes through
// the given repositories commits together, or nothing does.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
