package httpapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/orderflow/internal/domain"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type MoneyDTO struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type CreateOrderRequest struct {
	UserID          string                   `json:"userId"`
	PaymentMethod   string                   `json:"paymentMethod"`
	Items           []CreateOrderItemRequest `json:"items"`
	DeliveryAddress *string                  `json:"deliveryAddress,omitempty"`
	RecipientName   *string                  `json:"recipientName,omitempty"`
	RecipientPhone  *string                  `json:"recipientPhone,omitempty"`
}

type CreateOrderItemRequest struct {
	ProductType   string          `json:"productType"`
	ProductID     string          `json:"productId"`
	Quantity      int             `json:"quantity"`
	PricePerUnit  MoneyDTO        `json:"pricePerUnit"`
	Customization json.RawMessage `json:"customization,omitempty"`
}

type CreateOrderResponse struct {
	OrderID     uuid.UUID `json:"orderId"`
	TotalAmount MoneyDTO  `json:"totalAmount"`
	Status      string    `json:"status"`
	PaymentURL  *string   `json:"paymentUrl,omitempty"`
}

type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	UserID          string              `json:"userId"`
	PaymentMethod   string              `json:"paymentMethod"`
	Status          string              `json:"status"`
	TotalAmount     MoneyDTO            `json:"totalAmount"`
	Items           []OrderItemResponse `json:"items"`
	DeliveryAddress *string             `json:"deliveryAddress,omitempty"`
	RecipientName   *string             `json:"recipientName,omitempty"`
	RecipientPhone  *string             `json:"recipientPhone,omitempty"`
	TrackingNumber  *string             `json:"trackingNumber,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

type OrderItemResponse struct {
	ID            uuid.UUID       `json:"id"`
	ProductType   string          `json:"productType"`
	ProductID     string          `json:"productId"`
	Quantity      int             `json:"quantity"`
	PricePerUnit  MoneyDTO        `json:"pricePerUnit"`
	Status        string          `json:"status"`
	Customization json.RawMessage `json:"customization,omitempty"`
}

type StatusResponse struct {
	OrderID uuid.UUID `json:"orderId"`
	Status  string    `json:"status"`
}

type ItemIDsRequest struct {
	ItemIDs []uuid.UUID `json:"itemIds"`
}

type TrackingRequest struct {
	TrackingNumber string `json:"trackingNumber"`
}

type UserOrderSummaryResponse struct {
	UserID       string                 `json:"userId"`
	Orders       []OrderSummaryResponse `json:"orders"`
	StatusCounts map[string]int         `json:"statusCounts"`
}

type OrderSummaryResponse struct {
	OrderID     uuid.UUID `json:"orderId"`
	Status      string    `json:"status"`
	TotalAmount MoneyDTO  `json:"totalAmount"`
	ItemCount   int       `json:"itemCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r CreateOrderRequest) toDomain(returnURLBase string) (domain.CreateOrderRequest, error) {
	method, err := domain.ToPaymentMethod(r.PaymentMethod)
	if err != nil {
		return domain.CreateOrderRequest{}, err
	}

	items := make([]domain.CreateOrderItem, 0, len(r.Items))
	for idx, it := range r.Items {
		productType, err := domain.ToProductType(it.ProductType)
		if err != nil {
			return domain.CreateOrderRequest{}, fmt.Errorf("items[%d]: %w", idx, err)
		}

		price, err := it.PricePerUnit.toDomain()
		if err != nil {
			return domain.CreateOrderRequest{}, fmt.Errorf("items[%d]: %w", idx, err)
		}

		items = append(items, domain.CreateOrderItem{
			ProductType:       productType,
			ProductID:         it.ProductID,
			Quantity:          it.Quantity,
			PricePerUnit:      price,
			CustomizationJSON: it.Customization,
		})
	}

	return domain.CreateOrderRequest{
		UserID:          r.UserID,
		PaymentMethod:   method,
		Items:           items,
		DeliveryAddress: r.DeliveryAddress,
		RecipientName:   r.RecipientName,
		RecipientPhone:  r.RecipientPhone,
		ReturnURLBase:   returnURLBase,
	}, nil
}

func (m MoneyDTO) toDomain() (domain.Money, error) {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return domain.Money{}, fmt.Errorf("currency %q: %w", m.Currency, domain.ErrInvalidRequest)
	}

	return domain.Money{Amount: m.Amount, Currency: unit}, nil
}

func mapMoney(m domain.Money) MoneyDTO {
	return MoneyDTO{Amount: m.Amount, Currency: m.Currency.String()}
}

func mapOrder(o domain.Order) OrderResponse {
	return OrderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		PaymentMethod:   string(o.PaymentMethod),
		Status:          string(o.Status),
		TotalAmount:     mapMoney(o.TotalAmount),
		Items:           mapItems(o.Items),
		DeliveryAddress: o.DeliveryAddress,
		RecipientName:   o.RecipientName,
		RecipientPhone:  o.RecipientPhone,
		TrackingNumber:  o.TrackingNumber,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func mapItems(items []domain.OrderItem) []OrderItemResponse {
	return lo.Map(items, func(it domain.OrderItem, _ int) OrderItemResponse {
		return OrderItemResponse{
			ID:            it.ID,
			ProductType:   string(it.ProductType),
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			PricePerUnit:  mapMoney(it.PricePerUnit),
			Status:        string(it.Status),
			Customization: it.CustomizationJSON,
		}
	})
}

func mapSummary(s domain.UserOrderSummary) UserOrderSummaryResponse {
	counts := make(map[string]int, len(s.StatusCounts))
	for status, n := range s.StatusCounts {
		counts[string(status)] = n
	}

	return UserOrderSummaryResponse{
		UserID: s.UserID,
		Orders: lo.Map(s.Orders, func(o domain.OrderSummary, _ int) OrderSummaryResponse {
			return OrderSummaryResponse{
				OrderID:     o.OrderID,
				Status:      string(o.Status),
				TotalAmount: mapMoney(o.TotalAmount),
				ItemCount:   o.ItemCount,
				CreatedAt:   o.CreatedAt,
			}
		}),
		StatusCounts: counts,
	}
}
