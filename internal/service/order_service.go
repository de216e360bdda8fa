// Package service is the order lifecycle facade used by payment and
// delivery callbacks: it creates orders together with their outbox
// records and moves items through their statuses, recomputing the order
// status after every change-set.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/orderflow/internal/domain"
	"github.com/nikolayk812/orderflow/internal/port"
	"github.com/samber/lo"
)

type OrderService struct {
	tx       port.Transactor
	orders   port.OrderRepository
	payments port.PaymentGateway
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*OrderService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *OrderService) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *OrderService) {
		s.now = now
	}
}

// NewOrderService wires the service. orders serves reads outside of transactions.
func NewOrderService(tx port.Transactor, orders port.OrderRepository, payments port.PaymentGateway, opts ...Option) (*OrderService, error) {
	if tx == nil {
		return nil, errors.New("transactor is nil")
	}
	if orders == nil {
		return nil, errors.New("order repository is nil")
	}
	if payments == nil {
		return nil, errors.New("payment gateway is nil")
	}

	s := &OrderService{
		tx:       tx,
		orders:   orders,
		payments: payments,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// CreateOrder persists the order, its items and, when physical delivery has
// to start, the START_DELIVERY outbox record in one transaction. It returns
// without waiting for the record to be published.
func (s *OrderService) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.CreateOrderResult, error) {
	var result domain.CreateOrderResult

	if err := req.Validate(); err != nil {
		return result, fmt.Errorf("req.Validate: %w", err)
	}

	if err := s.payments.ValidatePaymentMethod(ctx, req); err != nil {
		return result, fmt.Errorf("payments.ValidatePaymentMethod: %w", err)
	}

	order, err := domain.NewOrder(req, s.now())
	if err != nil {
		return result, fmt.Errorf("domain.NewOrder: %w", err)
	}

	var payment domain.PaymentResult

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		if err := repos.Orders.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("repos.Orders.InsertOrder: %w", err)
		}

		payment, err = s.payments.InitiatePayment(ctx, order, req.ReturnURLBase)
		if err != nil {
			return fmt.Errorf("payments.InitiatePayment: %w", err)
		}

		if payment.ShouldDeliverClothes && order.HasPhysicalItems() {
			if err := enrollDelivery(ctx, repos, order, s.now()); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return result, fmt.Errorf("tx.WithinTx: %w", err)
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID.String()),
		slog.String("total", order.TotalAmount.String()),
		slog.Bool("cash_on_delivery", payment.IsCashOnDelivery),
		slog.Bool("deliver", payment.ShouldDeliverClothes))

	status := order.Status

	// A failure here leaves the order PENDING, the outbox record is already committed.
	if payment.ShouldMarkPaidImmediately {
		if err := s.MarkOrderPaid(ctx, order.ID); err != nil {
			s.logger.ErrorContext(ctx, "mark order paid after creation",
				slog.String("order_id", order.ID.String()),
				slog.Any("error", err))
		} else {
			status = domain.OrderStatusPaid
		}
	}

	return domain.CreateOrderResult{
		OrderID:     order.ID,
		TotalAmount: order.TotalAmount,
		Status:      status,
		PaymentURL:  payment.PaymentURL,
	}, nil
}

func enrollDelivery(ctx context.Context, repos port.Repositories, order domain.Order, now time.Time) error {
	record, err := domain.NewStartDeliveryRecord(order, now)
	if err != nil {
		return fmt.Errorf("domain.NewStartDeliveryRecord: %w", err)
	}

	if err := repos.Outbox.InsertRecord(ctx, record); err != nil {
		return fmt.Errorf("repos.Outbox.InsertRecord: %w", err)
	}

	return nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders.GetOrder: %w", err)
	}

	return order, nil
}

func (s *OrderService) GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return order.Items, nil
}

func (s *OrderService) GetOrderStatus(ctx context.Context, orderID uuid.UUID) (domain.OrderStatus, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}

	return order.Status, nil
}

// Recalculate derives the order status from all of its items and stores it.
func (s *OrderService) Recalculate(ctx context.Context, orderID uuid.UUID) (domain.OrderStatus, error) {
	var status domain.OrderStatus

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		order, err := repos.Orders.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("repos.Orders.GetOrderForUpdate: %w", err)
		}

		status, err = recalculate(ctx, repos, order)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("tx.WithinTx: %w", err)
	}

	return status, nil
}

// recalculate expects order to be locked and to carry its current items.
func recalculate(ctx context.Context, repos port.Repositories, order domain.Order) (domain.OrderStatus, error) {
	next := domain.DeriveOrderStatus(order.Status, order.Items)
	if next == order.Status {
		return next, nil
	}

	if err := repos.Orders.UpdateOrderStatus(ctx, order.ID, next); err != nil {
		return "", fmt.Errorf("repos.Orders.UpdateOrderStatus: %w", err)
	}

	return next, nil
}

func (s *OrderService) MarkItemDigitalUnlocked(ctx context.Context, orderID, itemID uuid.UUID) (domain.OrderStatus, error) {
	return s.transitionItems(ctx, orderID, []uuid.UUID{itemID}, domain.ItemStatusDigitalUnlocked)
}

func (s *OrderService) MarkItemShipped(ctx context.Context, orderID, itemID uuid.UUID) (domain.OrderStatus, error) {
	return s.transitionItems(ctx, orderID, []uuid.UUID{itemID}, domain.ItemStatusShipped)
}

func (s *OrderService) MarkItemDelivered(ctx context.Context, orderID, itemID uuid.UUID) (domain.OrderStatus, error) {
	return s.transitionItems(ctx, orderID, []uuid.UUID{itemID}, domain.ItemStatusDelivered)
}

func (s *OrderService) CancelItem(ctx context.Context, orderID, itemID uuid.UUID) (domain.OrderStatus, error) {
	return s.transitionItems(ctx, orderID, []uuid.UUID{itemID}, domain.ItemStatusCancelled)
}

func (s *OrderService) MarkItemsDigitalUnlocked(ctx context.Context, orderID uuid.UUID, itemIDs []uuid.UUID) (domain.OrderStatus, error) {
	return s.transitionItems(ctx, orderID, itemIDs, domain.ItemStatusDigitalUnlocked)
}

func (s *OrderService) MarkItemsShipped(ctx context.Context, orderID uuid.UUID, itemIDs []uuid.UUID) (domain.OrderStatus, error) {
	return s.transitionItems(ctx, orderID, itemIDs, domain.ItemStatusShipped)
}

func (s *OrderService) MarkItemsDelivered(ctx context.Context, orderID uuid.UUID, itemIDs []uuid.UUID) (domain.OrderStatus, error) {
	return s.transitionItems(ctx, orderID, itemIDs, domain.ItemStatusDelivered)
}

// transitionItems moves all itemIDs to next and recalculates the order once,
// in the same transaction. Either every item moves or none does.
func (s *OrderService) transitionItems(ctx context.Context, orderID uuid.UUID, itemIDs []uuid.UUID, next domain.ItemStatus) (domain.OrderStatus, error) {
	if len(itemIDs) == 0 {
		return "", fmt.Errorf("no item ids: %w", domain.ErrInvalidRequest)
	}

	var status domain.OrderStatus

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		order, err := repos.Orders.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("repos.Orders.GetOrderForUpdate: %w", err)
		}

		if !order.Status.AcceptsItemChanges() {
			return fmt.Errorf("order %s is %s: %w", order.ID, order.Status, domain.ErrInvalidTransition)
		}

		var changed []uuid.UUID
		for _, itemID := range lo.Uniq(itemIDs) {
			item, ok := order.Item(itemID)
			if !ok {
				return itemLookupError(ctx, repos, orderID, itemID)
			}

			if err := domain.CheckItemTransition(item, next); err != nil {
				return fmt.Errorf("domain.CheckItemTransition: %w", err)
			}

			if item.Status != next {
				changed = append(changed, itemID)
			}
		}

		if len(changed) > 0 {
			if err := repos.Orders.UpdateItemStatuses(ctx, orderID, changed, next); err != nil {
				return fmt.Errorf("repos.Orders.UpdateItemStatuses: %w", err)
			}
		}

		order.Items = applyItemStatus(order.Items, changed, next)

		status, err = recalculate(ctx, repos, order)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("tx.WithinTx: %w", err)
	}

	return status, nil
}

// itemLookupError tells a missing item apart from an item of another order.
func itemLookupError(ctx context.Context, repos port.Repositories, orderID, itemID uuid.UUID) error {
	owner, err := repos.Orders.GetItemOwner(ctx, itemID)
	if err != nil {
		return fmt.Errorf("repos.Orders.GetItemOwner: %w", err)
	}

	return fmt.Errorf("item %s belongs to order %s, not %s: %w", itemID, owner, orderID, domain.ErrOwnershipMismatch)
}

func applyItemStatus(items []domain.OrderItem, itemIDs []uuid.UUID, status domain.ItemStatus) []domain.OrderItem {
	updated := slices.Clone(items)
	for i := range updated {
		if slices.Contains(itemIDs, updated[i].ID) {
			updated[i].Status = status
		}
	}
	return updated
}

// CancelOrder cancels the order itself, items keep their statuses.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID) error {
	return s.setOrderStatus(ctx, orderID, domain.OrderStatusCancelled, func(current domain.OrderStatus) bool {
		return !current.IsTerminal()
	})
}

// MarkOrderFailed records a failed payment of a PENDING order.
func (s *OrderService) MarkOrderFailed(ctx context.Context, orderID uuid.UUID) error {
	return s.setOrderStatus(ctx, orderID, domain.OrderStatusFailed, func(current domain.OrderStatus) bool {
		return current == domain.OrderStatusPending
	})
}

func (s *OrderService) setOrderStatus(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus, allowed func(domain.OrderStatus) bool) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		order, err := repos.Orders.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("repos.Orders.GetOrderForUpdate: %w", err)
		}

		if order.Status == next {
			return nil
		}

		if !allowed(order.Status) {
			return fmt.Errorf("order %s %s -> %s: %w", order.ID, order.Status, next, domain.ErrInvalidTransition)
		}

		if err := repos.Orders.UpdateOrderStatus(ctx, orderID, next); err != nil {
			return fmt.Errorf("repos.Orders.UpdateOrderStatus: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("tx.WithinTx: %w", err)
	}

	s.logger.InfoContext(ctx, "order status set",
		slog.String("order_id", orderID.String()),
		slog.String("status", string(next)))

	return nil
}

// MarkOrderPaid moves a PENDING order and its PENDING items to PAID. Orders with
// physical items get a START_DELIVERY record unless one was enrolled at creation.
func (s *OrderService) MarkOrderPaid(ctx context.Context, orderID uuid.UUID) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		order, err := repos.Orders.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("repos.Orders.GetOrderForUpdate: %w", err)
		}

		switch order.Status {
		case domain.OrderStatusPending:
		case domain.OrderStatusCancelled, domain.OrderStatusFailed:
			return fmt.Errorf("order %s %s -> %s: %w", order.ID, order.Status, domain.OrderStatusPaid, domain.ErrInvalidTransition)
		default:
			// already paid
			return nil
		}

		pendingIDs := lo.FilterMap(order.Items, func(item domain.OrderItem, _ int) (uuid.UUID, bool) {
			return item.ID, item.Status == domain.ItemStatusPending
		})

		if len(pendingIDs) > 0 {
			if err := repos.Orders.UpdateItemStatuses(ctx, orderID, pendingIDs, domain.ItemStatusPaid); err != nil {
				return fmt.Errorf("repos.Orders.UpdateItemStatuses: %w", err)
			}
		}

		if err := repos.Orders.UpdateOrderStatus(ctx, orderID, domain.OrderStatusPaid); err != nil {
			return fmt.Errorf("repos.Orders.UpdateOrderStatus: %w", err)
		}

		if !order.HasPhysicalItems() {
			return nil
		}

		enrolled, err := repos.Outbox.ExistsForOrder(ctx, orderID, domain.EventTypeStartDelivery)
		if err != nil {
			return fmt.Errorf("repos.Outbox.ExistsForOrder: %w", err)
		}

		if enrolled {
			return nil
		}

		return enrollDelivery(ctx, repos, order, s.now())
	})
	if err != nil {
		return fmt.Errorf("tx.WithinTx: %w", err)
	}

	return nil
}

// MarkOrderFulfilled finishes every item that is neither cancelled nor finished
// and recalculates once.
func (s *OrderService) MarkOrderFulfilled(ctx context.Context, orderID uuid.UUID) (domain.OrderStatus, error) {
	var status domain.OrderStatus

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		order, err := repos.Orders.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("repos.Orders.GetOrderForUpdate: %w", err)
		}

		if !order.Status.AcceptsItemChanges() {
			return fmt.Errorf("order %s is %s: %w", order.ID, order.Status, domain.ErrInvalidTransition)
		}

		open := lo.Filter(order.Items, func(item domain.OrderItem, _ int) bool {
			return !item.Status.IsTerminal()
		})

		byTarget := lo.GroupBy(open, func(item domain.OrderItem) domain.ItemStatus {
			return item.ProductType.FinishedStatus()
		})

		for target, items := range byTarget {
			ids := lo.Map(items, func(item domain.OrderItem, _ int) uuid.UUID { return item.ID })

			if err := repos.Orders.UpdateItemStatuses(ctx, orderID, ids, target); err != nil {
				return fmt.Errorf("repos.Orders.UpdateItemStatuses: %w", err)
			}

			order.Items = applyItemStatus(order.Items, ids, target)
		}

		status, err = recalculate(ctx, repos, order)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("tx.WithinTx: %w", err)
	}

	return status, nil
}

func (s *OrderService) UpdateTrackingNumber(ctx context.Context, orderID uuid.UUID, trackingNumber string) error {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return fmt.Errorf("tracking number is blank: %w", domain.ErrInvalidRequest)
	}

	if err := s.orders.UpdateTrackingNumber(ctx, orderID, trackingNumber); err != nil {
		return fmt.Errorf("orders.UpdateTrackingNumber: %w", err)
	}

	return nil
}

// GetUserOrderSummary lists the orders of a user, newest first.
func (s *OrderService) GetUserOrderSummary(ctx context.Context, userID string) (domain.UserOrderSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.UserOrderSummary{}, fmt.Errorf("userID is empty: %w", domain.ErrInvalidRequest)
	}

	orders, err := s.orders.SearchOrders(ctx, domain.OrderFilter{UserIDs: []string{userID}})
	if err != nil {
		return domain.UserOrderSummary{}, fmt.Errorf("orders.SearchOrders: %w", err)
	}

	summary := domain.UserOrderSummary{
		UserID:       userID,
		Orders:       make([]domain.OrderSummary, 0, len(orders)),
		StatusCounts: make(map[domain.OrderStatus]int),
	}

	for _, order := range slices.Backward(orders) {
		summary.Orders = append(summary.Orders, domain.OrderSummary{
			OrderID:     order.ID,
			Status:      order.Status,
			TotalAmount: order.TotalAmount,
			ItemCount:   len(order.Items),
			CreatedAt:   order.CreatedAt,
		})
		summary.StatusCounts[order.Status]++
	}

	return summary, nil
}
