package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeStartDelivery EventType = "START_DELIVERY"
)

func ToEventType(s string) (EventType, error) {
	if EventType(s) == EventTypeStartDelivery {
		return EventTypeStartDelivery, nil
	}

	return "", fmt.Errorf("invalid event type %q", s)
}

// OutboxRecord is a pending domain event stored next to the order it describes.
// Processed only ever moves from false to true.
type OutboxRecord struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	EventType   EventType
	PayloadJSON []byte
	Processed   bool
	CreatedAt   time.Time
	ProcessedAt *time.Time

	ClaimedBy *string
	ClaimedAt *time.Time
	Attempts  int
	LastError *string
}

type StartDeliveryPayload struct {
	OrderID         uuid.UUID   `json:"orderId"`
	PhysicalItemIDs []uuid.UUID `json:"physicalItemIds"`
	DeliveryAddress string      `json:"deliveryAddress"`
	RecipientName   string      `json:"recipientName"`
	RecipientPhone  string      `json:"recipientPhone"`
}

// NewStartDeliveryRecord builds the START_DELIVERY record for the physical items of order.
func NewStartDeliveryRecord(order Order, now time.Time) (OutboxRecord, error) {
	itemIDs := order.PhysicalItemIDs()
	if len(itemIDs) == 0 {
		return OutboxRecord{}, fmt.Errorf("order %s has no physical items: %w", order.ID, ErrInvalidRequest)
	}

	payload := StartDeliveryPayload{
		OrderID:         order.ID,
		PhysicalItemIDs: itemIDs,
		DeliveryAddress: deref(order.DeliveryAddress),
		RecipientName:   deref(order.RecipientName),
		RecipientPhone:  deref(order.RecipientPhone),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxRecord{}, fmt.Errorf("json.Marshal: %w", err)
	}

	return OutboxRecord{
		ID:          uuid.New(),
		OrderID:     order.ID,
		EventType:   EventTypeStartDelivery,
		PayloadJSON: data,
		CreatedAt:   now,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
