package domain

// DeriveOrderStatus computes the order status implied by its items.
//
// Rules, first match wins:
//  1. every item finished or cancelled, at least one finished: FULFILLED
//  2. at least one finished and at least one active: PARTIALLY_FULFILLED
//  3. none finished, at least one active: PAID, but only for an order that is
//     PENDING or PAID and has an item past PENDING; otherwise unchanged
//  4. all cancelled: unchanged, cancelling an order is an explicit call
//
// Rule 3 needs an item past PENDING because only payment moves items there.
// An unpaid order whose remaining items are all PENDING stays PENDING, which
// keeps it visible to the stale-order reaper. A PARTIALLY_FULFILLED order
// never drops back to PAID.
//
// CANCELLED and FAILED orders never change here. The result depends only on
// the inputs, so deriving twice with the same items yields the same status.
func DeriveOrderStatus(current OrderStatus, items []OrderItem) OrderStatus {
	if current == OrderStatusCancelled || current == OrderStatusFailed {
		return current
	}

	var finished, active, paidActive int
	for _, item := range items {
		switch {
		case item.Status.IsFinished():
			finished++
		case item.Status.IsActive():
			active++
			if item.Status != ItemStatusPending {
				paidActive++
			}
		}
	}

	switch {
	case finished > 0 && active == 0:
		return OrderStatusFulfilled
	case finished > 0 && active > 0:
		return OrderStatusPartiallyFulfilled
	case active > 0:
		if (current == OrderStatusPending || current == OrderStatusPaid) && paidActive > 0 {
			return OrderStatusPaid
		}
		return current
	default:
		return current
	}
}
