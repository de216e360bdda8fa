package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Order struct {
	ID              uuid.UUID
	UserID          string
	PaymentMethod   PaymentMethod
	Status          OrderStatus
	TotalAmount     Money
	Items           []OrderItem
	DeliveryAddress *string
	RecipientName   *string
	RecipientPhone  *string
	TrackingNumber  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	ID                uuid.UUID
	OrderID           uuid.UUID
	ProductType       ProductType
	ProductID         string
	Quantity          int
	PricePerUnit      Money
	CustomizationJSON []byte
	Status            ItemStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subtotal is PricePerUnit times Quantity.
func (i OrderItem) Subtotal() Money {
	return i.PricePerUnit.Times(i.Quantity)
}

// PhysicalItemIDs returns ids of the items that need physical delivery, in item order.
// Cancelled items are never delivered.
func (o Order) PhysicalItemIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, item := range o.Items {
		if item.ProductType.IsPhysical() && item.Status != ItemStatusCancelled {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

func (o Order) HasPhysicalItems() bool {
	return len(o.PhysicalItemIDs()) > 0
}

// Item looks an item up by id within the order.
func (o Order) Item(itemID uuid.UUID) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return OrderItem{}, false
}

type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "CASH"
	PaymentMethodCard PaymentMethod = "CARD"
)

func ToPaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentMethodCash:
		return PaymentMethodCash, nil
	case PaymentMethodCard, "STRIPE":
		return PaymentMethodCard, nil
	}

	return "", ErrInvalidPaymentMethod
}

type ProductType string

// CLOTHES ship physically, SAMPLE and PACK are digital downloads.
const (
	ProductTypeClothes ProductType = "CLOTHES"
	ProductTypeSample  ProductType = "SAMPLE"
	ProductTypePack    ProductType = "PACK"
)

func ToProductType(s string) (ProductType, error) {
	switch ProductType(s) {
	case ProductTypeClothes, ProductTypeSample, ProductTypePack:
		return ProductType(s), nil
	}

	return "", fmt.Errorf("product type %q: %w", s, ErrInvalidRequest)
}

func (t ProductType) IsPhysical() bool {
	return t == ProductTypeClothes
}
