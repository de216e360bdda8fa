package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID              uuid.UUID
	UserID          string
	PaymentMethod   string
	Status          string
	TotalAmount     decimal.Decimal
	TotalCurrency   string
	DeliveryAddress *string
	RecipientName   *string
	RecipientPhone  *string
	TrackingNumber  *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OrderItem struct {
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
	UpdatedAt     time.Time
}

type OutboxRecord struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	EventType   string
	Payload     []byte
	Processed   bool
	CreatedAt   time.Time
	ProcessedAt *time.Time
	ClaimedBy   *string
	ClaimedAt   *time.Time
	Attempts    int32
	LastError   *string
}
