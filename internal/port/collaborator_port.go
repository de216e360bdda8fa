package port

import (
	"context"

	"github.com/nikolayk812/orderflow/internal/domain"
)

type PaymentGateway interface {
	// ValidatePaymentMethod fails with domain.ErrInvalidPaymentMethod or
	// domain.ErrMissingDeliveryAddress.
	ValidatePaymentMethod(ctx context.Context, req domain.CreateOrderRequest) error
	InitiatePayment(ctx context.Context, order domain.Order, returnURLBase string) (domain.PaymentResult, error)
}

type Producer interface {
	Publish(ctx context.Context, eventType domain.EventType, key string, payload []byte) error
}
