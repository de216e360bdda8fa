package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/orderflow/internal/db"
	"github.com/nikolayk812/orderflow/internal/domain"
	"github.com/nikolayk812/orderflow/internal/port"
	"github.com/samber/lo"
	"golang.org/x/text/currency"
)

var (
	ErrOrderNotFound = fmt.Errorf("order %w", domain.ErrNotFound)
	ErrItemNotFound  = fmt.Errorf("order item %w", domain.ErrNotFound)
)

type orderRepository struct {
	q    *db.Queries
	dbtx db.DBTX
}

func NewOrder(pool *pgxpool.Pool) port.OrderRepository {
	return &orderRepository{
		q:    db.New(pool),
		dbtx: pool,
	}
}

func NewOrderWithTx(tx pgx.Tx) port.OrderRepository {
	return &orderRepository{
		q:    db.New(tx),
		dbtx: tx, // use provided transaction instead
	}
}

func (r *orderRepository) GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	return r.getOrder(ctx, orderID, false)
}

func (r *orderRepository) GetOrderForUpdate(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	return r.getOrder(ctx, orderID, true)
}

func (r *orderRepository) getOrder(ctx context.Context, orderID uuid.UUID, forUpdate bool) (domain.Order, error) {
	var o domain.Order

	order, err := withTx(ctx, r.dbtx, func(q *db.Queries) (domain.Order, error) {
		get := q.GetOrder
		if forUpdate {
			get = q.GetOrderForUpdate
		}

		dbOrder, err := get(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return o, fmt.Errorf("q.GetOrder: %w", ErrOrderNotFound)
			}
			return o, fmt.Errorf("q.GetOrder: %w", err)
		}

		dbOrderItems, err := q.GetOrderItems(ctx, []uuid.UUID{orderID})
		if err != nil {
			return o, fmt.Errorf("q.GetOrderItems: %w", err)
		}

		domainOrder, err := mapDBOrderToDomain(dbOrder, dbOrderItems)
		if err != nil {
			return o, fmt.Errorf("mapDBOrderToDomain: %w", err)
		}

		return domainOrder, nil
	})
	if err != nil {
		return o, err
	}

	return order, nil
}

func (r *orderRepository) InsertOrder(ctx context.Context, order domain.Order) error {
	if len(order.Items) == 0 {
		return errors.New("no items in order")
	}

	if order.ID == uuid.Nil {
		return errors.New("orderID is empty")
	}

	_, err := withTx(ctx, r.dbtx, func(q *db.Queries) (struct{}, error) {
		err := q.InsertOrder(ctx, db.InsertOrderParams{
			ID:              order.ID,
			UserID:          order.UserID,
			PaymentMethod:   string(order.PaymentMethod),
			Status:          string(order.Status),
			TotalAmount:     order.TotalAmount.Amount,
			TotalCurrency:   order.TotalAmount.Currency.String(),
			DeliveryAddress: order.DeliveryAddress,
			RecipientName:   order.RecipientName,
			RecipientPhone:  order.RecipientPhone,
			CreatedAt:       order.CreatedAt,
		})
		if err != nil {
			return struct{}{}, fmt.Errorf("q.InsertOrder: %w", err)
		}

		for _, item := range order.Items {
			arg := db.InsertOrderItemParams{
				ID:            item.ID,
				OrderID:       order.ID,
				ProductType:   string(item.ProductType),
				ProductID:     item.ProductID,
				Quantity:      int32(item.Quantity),
				PriceAmount:   item.PricePerUnit.Amount,
				PriceCurrency: item.PricePerUnit.Currency.String(),
				Customization: item.CustomizationJSON,
				ItemStatus:    string(item.Status),
				CreatedAt:     order.CreatedAt,
			}
			if err := q.InsertOrderItem(ctx, arg); err != nil {
				return struct{}{}, fmt.Errorf("q.InsertOrderItem: %w", err)
			}
		}

		return struct{}{}, nil
	})

	return err
}

func mapDomainOrderFilterToDBFilter(filter domain.OrderFilter) db.SearchOrdersParams {
	statuses := lo.Map(filter.Statuses, func(s domain.OrderStatus, _ int) string {
		return string(s)
	})

	var createdAfter, createdBefore *time.Time

	if filter.CreatedAt != nil {
		createdAfter = filter.CreatedAt.After
		createdBefore = filter.CreatedAt.Before
	}

	return db.SearchOrdersParams{
		Ids:           nilSliceIfEmpty(filter.IDs),
		UserIds:       nilSliceIfEmpty(filter.UserIDs),
		Statuses:      nilSliceIfEmpty(statuses),
		CreatedAfter:  createdAfter,
		CreatedBefore: createdBefore,
		Limit:         int32(filter.Limit),
	}
}

func (r *orderRepository) SearchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter.Validate: %w", err)
	}

	dbFilter := mapDomainOrderFilterToDBFilter(filter)

	return withTx(ctx, r.dbtx, func(q *db.Queries) ([]domain.Order, error) {
		dbOrders, err := q.SearchOrders(ctx, dbFilter)
		if err != nil {
			return nil, fmt.Errorf("q.SearchOrders: %w", err)
		}

		if len(dbOrders) == 0 {
			return nil, nil
		}

		orderIDs := lo.Map(dbOrders, func(o db.Order, _ int) uuid.UUID {
			return o.ID
		})

		dbItems, err := q.GetOrderItems(ctx, orderIDs)
		if err != nil {
			return nil, fmt.Errorf("q.GetOrderItems: %w", err)
		}

		itemsByOrder := lo.GroupBy(dbItems, func(item db.OrderItem) uuid.UUID {
			return item.OrderID
		})

		orders := make([]domain.Order, 0, len(dbOrders))
		for _, dbOrder := range dbOrders {
			order, err := mapDBOrderToDomain(dbOrder, itemsByOrder[dbOrder.ID])
			if err != nil {
				return nil, fmt.Errorf("mapDBOrderToDomain: %w", err)
			}
			orders = append(orders, order)
		}

		return orders, nil
	})
}

func (r *orderRepository) GetItemOwner(ctx context.Context, itemID uuid.UUID) (uuid.UUID, error) {
	orderID, err := r.q.GetItemOrderID(ctx, itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("q.GetItemOrderID: %w", ErrItemNotFound)
		}
		return uuid.Nil, fmt.Errorf("q.GetItemOrderID: %w", err)
	}

	return orderID, nil
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("orderID is empty")
	}

	if status == "" {
		return fmt.Errorf("status is empty")
	}

	cmdTag, err := r.q.UpdateOrderStatus(ctx, orderID, string(status))
	if err != nil {
		return fmt.Errorf("q.UpdateOrderStatus: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("q.UpdateOrderStatus: %w", ErrOrderNotFound)
	}

	return nil
}

func (r *orderRepository) UpdateItemStatuses(ctx context.Context, orderID uuid.UUID, itemIDs []uuid.UUID, status domain.ItemStatus) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("orderID is empty")
	}

	if status == "" {
		return fmt.Errorf("status is empty")
	}

	itemIDs = lo.Uniq(itemIDs)
	if len(itemIDs) == 0 {
		return nil
	}

	_, err := withTx(ctx, r.dbtx, func(q *db.Queries) (struct{}, error) {
		cmdTag, err := q.UpdateItemStatuses(ctx, orderID, itemIDs, string(status))
		if err != nil {
			return struct{}{}, fmt.Errorf("q.UpdateItemStatuses: %w", err)
		}

		// a partial match rolls the whole batch back
		if cmdTag.RowsAffected() != int64(len(itemIDs)) {
			return struct{}{}, fmt.Errorf("q.UpdateItemStatuses: %w", ErrItemNotFound)
		}

		return struct{}{}, nil
	})

	return err
}

func (r *orderRepository) UpdateTrackingNumber(ctx context.Context, orderID uuid.UUID, trackingNumber string) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("orderID is empty")
	}

	cmdTag, err := r.q.UpdateTrackingNumber(ctx, orderID, trackingNumber)
	if err != nil {
		return fmt.Errorf("q.UpdateTrackingNumber: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("q.UpdateTrackingNumber: %w", ErrOrderNotFound)
	}

	return nil
}

func (r *orderRepository) CancelIfPending(ctx context.Context, orderID uuid.UUID, cutoff time.Time) (bool, error) {
	cmdTag, err := r.q.CancelPendingOrder(ctx, orderID, cutoff)
	if err != nil {
		return false, fmt.Errorf("q.CancelPendingOrder: %w", err)
	}

	return cmdTag.RowsAffected() > 0, nil
}

func mapDBOrderItemToDomain(row db.OrderItem) (domain.OrderItem, error) {
	parsedCurrency, err := currency.ParseISO(row.PriceCurrency)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("currency[%s] is not valid: %w", row.PriceCurrency, err)
	}

	productType, err := domain.ToProductType(row.ProductType)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("domain.ToProductType[%s]: %w", row.ProductType, err)
	}

	status, err := domain.ToItemStatus(row.ItemStatus)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("domain.ToItemStatus[%s]: %w", row.ItemStatus, err)
	}

	return domain.OrderItem{
		ID:                row.ID,
		OrderID:           row.OrderID,
		ProductType:       productType,
		ProductID:         row.ProductID,
		Quantity:          int(row.Quantity),
		PricePerUnit:      domain.Money{Amount: row.PriceAmount, Currency: parsedCurrency},
		CustomizationJSON: row.Customization,
		Status:            status,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}, nil
}

func mapDBOrderToDomain(dbOrder db.Order, dbOrderItems []db.OrderItem) (domain.Order, error) {
	var o domain.Order

	items := make([]domain.OrderItem, 0, len(dbOrderItems))
	for _, row := range dbOrderItems {
		item, err := mapDBOrderItemToDomain(row)
		if err != nil {
			return o, fmt.Errorf("mapDBOrderItemToDomain: %w", err)
		}
		items = append(items, item)
	}

	status, err := domain.ToOrderStatus(dbOrder.Status)
	if err != nil {
		return o, fmt.Errorf("domain.ToOrderStatus[%s]: %w", dbOrder.Status, err)
	}

	paymentMethod, err := domain.ToPaymentMethod(dbOrder.PaymentMethod)
	if err != nil {
		return o, fmt.Errorf("domain.ToPaymentMethod[%s]: %w", dbOrder.PaymentMethod, err)
	}

	parsedCurrency, err := currency.ParseISO(dbOrder.TotalCurrency)
	if err != nil {
		return o, fmt.Errorf("currency[%s] is not valid: %w", dbOrder.TotalCurrency, err)
	}

	return domain.Order{
		ID:              dbOrder.ID,
		UserID:          dbOrder.UserID,
		PaymentMethod:   paymentMethod,
		Status:          status,
		TotalAmount:     domain.Money{Amount: dbOrder.TotalAmount, Currency: parsedCurrency},
		Items:           items,
		DeliveryAddress: dbOrder.DeliveryAddress,
		RecipientName:   dbOrder.RecipientName,
		RecipientPhone:  dbOrder.RecipientPhone,
		TrackingNumber:  dbOrder.TrackingNumber,
		CreatedAt:       dbOrder.CreatedAt,
		UpdatedAt:       dbOrder.UpdatedAt,
	}, nil
}

func nilSliceIfEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}
