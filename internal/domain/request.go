package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	UserID          string
	PaymentMethod   PaymentMethod
	Items           []CreateOrderItem
	DeliveryAddress *string
	RecipientName   *string
	RecipientPhone  *string
	// ReturnURLBase is where the payment provider sends the customer back to.
	ReturnURLBase string
}

type CreateOrderItem struct {
	ProductType       ProductType
	ProductID         string
	Quantity          int
	PricePerUnit      Money
	CustomizationJSON []byte
}

func (r CreateOrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("no items in order: %w", ErrInvalidRequest)
	}

	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("userID is empty: %w", ErrInvalidRequest)
	}

	currencyUnit := r.Items[0].PricePerUnit.Currency
	for idx, item := range r.Items {
		if _, err := ToProductType(string(item.ProductType)); err != nil {
			return fmt.Errorf("item[%d]: %w", idx, err)
		}
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("item[%d]: productID is empty: %w", idx, ErrInvalidRequest)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item[%d]: quantity %d is not positive: %w", idx, item.Quantity, ErrInvalidRequest)
		}
		if item.PricePerUnit.Amount.IsNegative() {
			return fmt.Errorf("item[%d]: price is negative: %w", idx, ErrInvalidRequest)
		}
		if item.PricePerUnit.Currency != currencyUnit {
			return fmt.Errorf("item[%d]: mixed currencies: %w", idx, ErrInvalidRequest)
		}
	}

	return nil
}

func (r CreateOrderRequest) HasPhysicalItems() bool {
	for _, item := range r.Items {
		if item.ProductType.IsPhysical() {
			return true
		}
	}
	return false
}

// NewOrder builds a PENDING order with PENDING items from a validated request.
// TotalAmount is the sum of item subtotals.
func NewOrder(r CreateOrderRequest, now time.Time) (Order, error) {
	if err := r.Validate(); err != nil {
		return Order{}, err
	}

	order := Order{
		ID:              uuid.New(),
		UserID:          r.UserID,
		PaymentMethod:   r.PaymentMethod,
		Status:          OrderStatusPending,
		TotalAmount:     Money{Amount: decimal.Zero, Currency: r.Items[0].PricePerUnit.Currency},
		DeliveryAddress: r.DeliveryAddress,
		RecipientName:   r.RecipientName,
		RecipientPhone:  r.RecipientPhone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, in := range r.Items {
		item := OrderItem{
			ID:                uuid.New(),
			OrderID:           order.ID,
			ProductType:       in.ProductType,
			ProductID:         in.ProductID,
			Quantity:          in.Quantity,
			PricePerUnit:      in.PricePerUnit,
			CustomizationJSON: in.CustomizationJSON,
			Status:            ItemStatusPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		total, err := order.TotalAmount.Add(item.Subtotal())
		if err != nil {
			return Order{}, fmt.Errorf("item %s: %w", item.ID, err)
		}
		order.TotalAmount = total
		order.Items = append(order.Items, item)
	}

	return order, nil
}

// PaymentResult is what the payment collaborator decided for a new order.
type PaymentResult struct {
	IsCashOnDelivery          bool
	ShouldDeliverClothes      bool
	ShouldMarkPaidImmediately bool
	PaymentURL                *string
}

type CreateOrderResult struct {
	OrderID     uuid.UUID
	TotalAmount Money
	Status      OrderStatus
	PaymentURL  *string
}

type OrderSummary struct {
	OrderID     uuid.UUID
	Status      OrderStatus
	TotalAmount Money
	ItemCount   int
	CreatedAt   time.Time
}

type UserOrderSummary struct {
	UserID       string
	Orders       []OrderSummary
	StatusCounts map[OrderStatus]int
}
