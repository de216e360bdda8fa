package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_id, payment_method, status, total_amount, total_currency,
       delivery_address, recipient_name, recipient_phone, tracking_number, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.PaymentMethod,
		&o.Status,
		&o.TotalAmount,
		&o.TotalCurrency,
		&o.DeliveryAddress,
		&o.RecipientName,
		&o.RecipientPhone,
		&o.TrackingNumber,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	return o, err
}

const insertOrder = `-- name: InsertOrder :exec
INSERT INTO orders (id, user_id, payment_method, status, total_amount, total_currency,
                    delivery_address, recipient_name, recipient_phone, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
`

type InsertOrderParams struct {
	ID              uuid.UUID
	UserID          string
	PaymentMethod   string
	Status          string
	TotalAmount     decimal.Decimal
	TotalCurrency   string
	DeliveryAddress *string
	RecipientName   *string
	RecipientPhone  *string
	CreatedAt       time.Time
}

func (q *Queries) InsertOrder(ctx context.Context, arg InsertOrderParams) error {
	_, err := q.db.Exec(ctx, insertOrder,
		arg.ID,
		arg.UserID,
		arg.PaymentMethod,
		arg.Status,
		arg.TotalAmount,
		arg.TotalCurrency,
		arg.DeliveryAddress,
		arg.RecipientName,
		arg.RecipientPhone,
		arg.CreatedAt,
	)
	return err
}

const insertOrderItem = `-- name: InsertOrderItem :exec
INSERT INTO order_items (id, order_id, product_type, product_id, quantity, price_amount, price_currency,
                         customization, item_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
`

type InsertOrderItemParams struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	ProductType   string
	ProductID     string
	Quantity      int32
	PriceAmount   decimal.Decimal
	PriceCurrency string
	Customization []byte
	ItemStatus    string
	CreatedAt     time.Time
}

func (q *Queries) InsertOrderItem(ctx context.Context, arg InsertOrderItemParams) error {
	_, err := q.db.Exec(ctx, insertOrderItem,
		arg.ID,
		arg.OrderID,
		arg.ProductType,
		arg.ProductID,
		arg.Quantity,
		arg.PriceAmount,
		arg.PriceCurrency,
		arg.Customization,
		arg.ItemStatus,
		arg.CreatedAt,
	)
	return err
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const getOrderItems = `-- name: GetOrderItems :many
SELECT id, order_id, product_type, product_id, quantity, price_amount, price_currency,
       customization, item_status, created_at, updated_at
FROM order_items
WHERE order_id = ANY ($1::uuid[])
ORDER BY created_at, id
`

// GetOrderItems returns the items of all given orders.
func (q *Queries) GetOrderItems(ctx context.Context, orderIDs []uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, getOrderItems, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.ProductType,
			&i.ProductID,
			&i.Quantity,
			&i.PriceAmount,
			&i.PriceCurrency,
			&i.Customization,
			&i.ItemStatus,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getItemOrderID = `-- name: GetItemOrderID :one
SELECT order_id
FROM order_items
WHERE id = $1
`

func (q *Queries) GetItemOrderID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var orderID uuid.UUID
	err := q.db.QueryRow(ctx, getItemOrderID, id).Scan(&orderID)
	return orderID, err
}

const searchOrders = `-- name: SearchOrders :many
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::uuid[] IS NULL OR id = ANY ($1::uuid[]))
  AND ($2::text[] IS NULL OR user_id = ANY ($2::text[]))
  AND ($3::text[] IS NULL OR status = ANY ($3::text[]))
  AND ($4::timestamptz IS NULL OR created_at > $4)
  AND ($5::timestamptz IS NULL OR created_at < $5)
ORDER BY created_at, id
LIMIT NULLIF($6::int, 0)
`

type SearchOrdersParams struct {
	Ids           []uuid.UUID
	UserIds       []string
	Statuses      []string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int32
}

func (q *Queries) SearchOrders(ctx context.Context, arg SearchOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, searchOrders,
		arg.Ids,
		arg.UserIds,
		arg.Statuses,
		arg.CreatedAfter,
		arg.CreatedBefore,
		arg.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

const updateOrderStatus = `-- name: UpdateOrderStatus :execresult
UPDATE orders
SET status     = $2,
    updated_at = now()
WHERE id = $1
`

func (q *Queries) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, updateOrderStatus, id, status)
}

const updateItemStatuses = `-- name: UpdateItemStatuses :execresult
UPDATE order_items
SET item_status = $3,
    updated_at  = now()
WHERE order_id = $1
  AND id = ANY ($2::uuid[])
`

func (q *Queries) UpdateItemStatuses(ctx context.Context, orderID uuid.UUID, ids []uuid.UUID, status string) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, updateItemStatuses, orderID, ids, status)
}

const updateTrackingNumber = `-- name: UpdateTrackingNumber :execresult
UPDATE orders
SET tracking_number = $2,
    updated_at      = now()
WHERE id = $1
`

func (q *Queries) UpdateTrackingNumber(ctx context.Context, id uuid.UUID, trackingNumber string) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, updateTrackingNumber, id, trackingNumber)
}

const cancelPendingOrder = `-- name: CancelPendingOrder :execresult
UPDATE orders
SET status     = 'CANCELLED',
    updated_at = now()
WHERE id = $1
  AND status = 'PENDING'
  AND created_at < $2
`

func (q *Queries) CancelPendingOrder(ctx context.Context, id uuid.UUID, cutoff time.Time) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, cancelPendingOrder, id, cutoff)
}
