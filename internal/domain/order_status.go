package domain

import "fmt"

type OrderStatus string

// remember to add new statuses to the validOrderStatuses map
const (
	OrderStatusPending            OrderStatus = "PENDING"
	OrderStatusPaid               OrderStatus = "PAID"
	OrderStatusPartiallyFulfilled OrderStatus = "PARTIALLY_FULFILLED"
	OrderStatusFulfilled          OrderStatus = "FULFILLED"
	OrderStatusCancelled          OrderStatus = "CANCELLED"
	OrderStatusFailed             OrderStatus = "FAILED"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:            {},
	OrderStatusPaid:               {},
	OrderStatusPartiallyFulfilled: {},
	OrderStatusFulfilled:          {},
	OrderStatusCancelled:          {},
	OrderStatusFailed:             {},
}

func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := validOrderStatuses[status]; ok {
		return status, nil
	}

	return "", fmt.Errorf("invalid order status %q", s)
}

func OrderStatuses() []OrderStatus {
	result := make([]OrderStatus, 0, len(validOrderStatuses))
	for status := range validOrderStatuses {
		result = append(result, status)
	}
	return result
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusFailed || s == OrderStatusFulfilled
}

// AcceptsItemChanges reports whether items of an order in this status may still move.
func (s OrderStatus) AcceptsItemChanges() bool {
	return s != OrderStatusCancelled && s != OrderStatusFailed
}

type ItemStatus string

// remember to add new statuses to the validItemStatuses map
const (
	ItemStatusPending         ItemStatus = "PENDING"
	ItemStatusPaid            ItemStatus = "PAID"
	ItemStatusShipped         ItemStatus = "SHIPPED"
	ItemStatusDelivered       ItemStatus = "DELIVERED"
	ItemStatusDigitalUnlocked ItemStatus = "DIGITAL_UNLOCKED"
	ItemStatusCancelled       ItemStatus = "CANCELLED"
)

var validItemStatuses = map[ItemStatus]struct{}{
	ItemStatusPending:         {},
	ItemStatusPaid:            {},
	ItemStatusShipped:         {},
	ItemStatusDelivered:       {},
	ItemStatusDigitalUnlocked: {},
	ItemStatusCancelled:       {},
}

func ToItemStatus(s string) (ItemStatus, error) {
	status := ItemStatus(s)
	if _, ok := validItemStatuses[status]; ok {
		return status, nil
	}

	return "", fmt.Errorf("invalid item status %q", s)
}

func (s ItemStatus) IsFinished() bool {
	return s == ItemStatusDigitalUnlocked || s == ItemStatusDelivered
}

func (s ItemStatus) IsActive() bool {
	return s == ItemStatusPending || s == ItemStatusPaid || s == ItemStatusShipped
}

func (s ItemStatus) IsTerminal() bool {
	return s.IsFinished() || s == ItemStatusCancelled
}

var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemStatusPending: {ItemStatusPaid, ItemStatusCancelled},
	ItemStatusPaid:    {ItemStatusShipped, ItemStatusDigitalUnlocked, ItemStatusCancelled},
	ItemStatusShipped: {ItemStatusDelivered},
}

// CheckItemTransition validates moving item to status next.
// Moving an item to the status it already has is allowed and means no change.
func CheckItemTransition(item OrderItem, next ItemStatus) error {
	if item.Status == next {
		return nil
	}

	allowed := false
	for _, s := range itemTransitions[item.Status] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("item %s %s -> %s: %w", item.ID, item.Status, next, ErrInvalidTransition)
	}

	switch next {
	case ItemStatusShipped, ItemStatusDelivered:
		if !item.ProductType.IsPhysical() {
			return fmt.Errorf("item %s is digital, cannot be %s: %w", item.ID, next, ErrInvalidTransition)
		}
	case ItemStatusDigitalUnlocked:
		if item.ProductType.IsPhysical() {
			return fmt.Errorf("item %s is physical, cannot be %s: %w", item.ID, next, ErrInvalidTransition)
		}
	}

	return nil
}

// FinishedStatus is the terminal success status for an item of this product type.
func (t ProductType) FinishedStatus() ItemStatus {
	if t.IsPhysical() {
		return ItemStatusDelivered
	}
	return ItemStatusDigitalUnlocked
}
