package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/orderflow/internal/domain"
	"github.com/samber/lo"
)

var (
	errOrderNotFound = fmt.Errorf("order %w", domain.ErrNotFound)
	errItemNotFound  = fmt.Errorf("order item %w", domain.ErrNotFound)
)

type orderRepository struct {
	access accessor
}

func (r *orderRepository) GetOrder(_ context.Context, orderID uuid.UUID) (domain.Order, error) {
	var order domain.Order

	err := r.access(func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return errOrderNotFound
		}
		order = withItems(st, o)
		return nil
	})

	return order, err
}

// GetOrderForUpdate needs no extra locking, transactions are serialized.
func (r *orderRepository) GetOrderForUpdate(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	return r.GetOrder(ctx, orderID)
}

func (r *orderRepository) SearchOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter.Validate: %w", err)
	}

	var result []domain.Order

	err := r.access(func(st *state) error {
		for _, o := range st.orders {
			if matches(filter, o) {
				result = append(result, withItems(st, o))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

func (r *orderRepository) InsertOrder(_ context.Context, order domain.Order) error {
	if len(order.Items) == 0 {
		return errors.New("no items in order")
	}

	if order.ID == uuid.Nil {
		return errors.New("orderID is empty")
	}

	return r.access(func(st *state) error {
		if _, exists := st.orders[order.ID]; exists {
			return fmt.Errorf("order %s already exists", order.ID)
		}

		items := slices.Clone(order.Items)
		for i := range items {
			items[i].OrderID = order.ID
		}

		order.Items = nil
		st.orders[order.ID] = order
		st.items[order.ID] = items
		return nil
	})
}

func (r *orderRepository) GetItemOwner(_ context.Context, itemID uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID

	err := r.access(func(st *state) error {
		for orderID, items := range st.items {
			if slices.ContainsFunc(items, func(item domain.OrderItem) bool { return item.ID == itemID }) {
				owner = orderID
				return nil
			}
		}
		return errItemNotFound
	})

	return owner, err
}

func (r *orderRepository) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, status domain.OrderStatus) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("orderID is empty")
	}

	if status == "" {
		return fmt.Errorf("status is empty")
	}

	return r.access(func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return errOrderNotFound
		}
		o.Status = status
		o.UpdatedAt = time.Now().UTC()
		st.orders[orderID] = o
		return nil
	})
}

func (r *orderRepository) UpdateItemStatuses(_ context.Context, orderID uuid.UUID, itemIDs []uuid.UUID, status domain.ItemStatus) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("orderID is empty")
	}

	if status == "" {
		return fmt.Errorf("status is empty")
	}

	itemIDs = lo.Uniq(itemIDs)

	return r.access(func(st *state) error {
		items := slices.Clone(st.items[orderID])

		updated := 0
		for i := range items {
			if slices.Contains(itemIDs, items[i].ID) {
				items[i].Status = status
				items[i].UpdatedAt = time.Now().UTC()
				updated++
			}
		}

		if updated != len(itemIDs) {
			return errItemNotFound
		}

		st.items[orderID] = items
		return nil
	})
}

func (r *orderRepository) UpdateTrackingNumber(_ context.Context, orderID uuid.UUID, trackingNumber string) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("orderID is empty")
	}

	return r.access(func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return errOrderNotFound
		}
		o.TrackingNumber = lo.ToPtr(trackingNumber)
		st.orders[orderID] = o
		return nil
	})
}

func (r *orderRepository) CancelIfPending(_ context.Context, orderID uuid.UUID, cutoff time.Time) (bool, error) {
	var cancelled bool

	err := r.access(func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok || o.Status != domain.OrderStatusPending || !o.CreatedAt.Before(cutoff) {
			return nil
		}
		o.Status = domain.OrderStatusCancelled
		st.orders[orderID] = o
		cancelled = true
		return nil
	})

	return cancelled, err
}

func withItems(st *state, o domain.Order) domain.Order {
	o.Items = slices.Clone(st.items[o.ID])
	return o
}

func matches(f domain.OrderFilter, o domain.Order) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, o.ID) {
		return false
	}
	if len(f.UserIDs) > 0 && !slices.Contains(f.UserIDs, o.UserID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, o.Status) {
		return false
	}
	if f.CreatedAt != nil && !f.CreatedAt.Contains(o.CreatedAt) {
		return false
	}
	return true
}
