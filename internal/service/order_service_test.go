package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/nikolayk812/orderflow/internal/domain"
	"github.com/nikolayk812/orderflow/internal/payment"
	"github.com/nikolayk812/orderflow/internal/port"
	"github.com/nikolayk812/orderflow/internal/repository/memory"
	"github.com/nikolayk812/orderflow/internal/service"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/text/currency"
)

type stubGateway struct {
	validateErr error
	result      domain.PaymentResult
	initiateErr error
}

func (g *stubGateway) ValidatePaymentMethod(context.Context, domain.CreateOrderRequest) error {
	return g.validateErr
}

func (g *stubGateway) InitiatePayment(context.Context, domain.Order, string) (domain.PaymentResult, error) {
	return g.result, g.initiateErr
}

type orderServiceSuite struct {
	suite.Suite

	store *memory.Store
	svc   *service.OrderService
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(orderServiceSuite))
}

// before each test
func (suite *orderServiceSuite) SetupTest() {
	suite.store = memory.New()
	suite.svc = suite.newService(payment.NewGateway(nil, nil))
}

func (suite *orderServiceSuite) newService(gateway port.PaymentGateway) *service.OrderService {
	svc, err := service.NewOrderService(suite.store, suite.store.Orders(), gateway)
	suite.Require().NoError(err)
	return svc
}

func (suite *orderServiceSuite) TestCreateOrder_MixedItems() {
	t := suite.T()
	ctx := t.Context()

	req := cashRequest(
		item(domain.ProductTypeClothes, 1, "49.99"),
		item(domain.ProductTypeSample, 2, "19.99"),
	)

	result, err := suite.svc.CreateOrder(ctx, req)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("89.97").Equal(result.TotalAmount.Amount), result.TotalAmount.String())
	assert.Equal(t, domain.OrderStatusPaid, result.Status)
	assert.Nil(t, result.PaymentURL)

	order, err := suite.svc.GetOrder(ctx, result.OrderID)
	require.NoError(t, err)
	require.Len(t, order.Items, 2)

	types := lo.Map(order.Items, func(i domain.OrderItem, _ int) domain.ProductType { return i.ProductType })
	assert.ElementsMatch(t, []domain.ProductType{domain.ProductTypeClothes, domain.ProductTypeSample}, types)

	records := suite.store.OutboxRecords()
	require.Len(t, records, 1)
	assert.Equal(t, domain.EventTypeStartDelivery, records[0].EventType)
	assert.Equal(t, result.OrderID, records[0].OrderID)
	assert.False(t, records[0].Processed)

	var payload domain.StartDeliveryPayload
	require.NoError(t, json.Unmarshal(records[0].PayloadJSON, &payload))
	assert.Equal(t, order.PhysicalItemIDs(), payload.PhysicalItemIDs)
	assert.Equal(t, *req.DeliveryAddress, payload.DeliveryAddress)
}

func (suite *orderServiceSuite) TestCreateOrder_DigitalOnly() {
	t := suite.T()
	ctx := t.Context()

	req := cashRequest(
		item(domain.ProductTypeSample, 1, "5.00"),
		item(domain.ProductTypePack, 3, "12.50"),
	)
	req.DeliveryAddress = nil

	result, err := suite.svc.CreateOrder(ctx, req)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("42.50").Equal(result.TotalAmount.Amount))
	assert.Empty(t, suite.store.OutboxRecords())
}

func (suite *orderServiceSuite) TestCreateOrder_Invalid() {
	tests := []struct {
		name    string
		reqFunc func() domain.CreateOrderRequest
		wantErr error
	}{
		{
			name: "no items: fail",
			reqFunc: func() domain.CreateOrderRequest {
				return cashRequest()
			},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name: "zero quantity: fail",
			reqFunc: func() domain.CreateOrderRequest {
				return cashRequest(item(domain.ProductTypeClothes, 0, "1.00"))
			},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name: "clothes without address: fail",
			reqFunc: func() domain.CreateOrderRequest {
				req := cashRequest(item(domain.ProductTypeClothes, 1, "1.00"))
				req.DeliveryAddress = lo.ToPtr("  ")
				return req
			},
			wantErr: domain.ErrMissingDeliveryAddress,
		},
		{
			name: "card without stripe: fail",
			reqFunc: func() domain.CreateOrderRequest {
				req := cashRequest(item(domain.ProductTypeSample, 1, "1.00"))
				req.PaymentMethod = domain.PaymentMethodCard
				return req
			},
			wantErr: domain.ErrInvalidPaymentMethod,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()

			_, err := suite.svc.CreateOrder(t.Context(), tt.reqFunc())
			require.ErrorIs(t, err, tt.wantErr)

			assert.Zero(t, suite.store.OrderCount())
			assert.Empty(t, suite.store.OutboxRecords())
		})
	}
}

func (suite *orderServiceSuite) TestCreateOrder_PaymentFailureRollsBack() {
	t := suite.T()

	svc := suite.newService(&stubGateway{initiateErr: errors.New("provider down")})

	_, err := svc.CreateOrder(t.Context(), cashRequest(item(domain.ProductTypeClothes, 1, "10.00")))
	require.ErrorContains(t, err, "provider down")

	assert.Zero(t, suite.store.OrderCount())
	assert.Empty(t, suite.store.OutboxRecords())
}

func (suite *orderServiceSuite) TestCreateOrder_CardThenPaid() {
	t := suite.T()
	ctx := t.Context()

	svc := suite.newService(&stubGateway{
		result: domain.PaymentResult{PaymentURL: lo.ToPtr("https://checkout.example/s/1")},
	})

	req := cashRequest(item(domain.ProductTypeClothes, 2, "10.00"), item(domain.ProductTypePack, 1, "3.00"))
	req.PaymentMethod = domain.PaymentMethodCard

	result, err := svc.CreateOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, result.Status)
	assert.Equal(t, "https://checkout.example/s/1", lo.FromPtr(result.PaymentURL))
	assert.Empty(t, suite.store.OutboxRecords())

	require.NoError(t, svc.MarkOrderPaid(ctx, result.OrderID))
	// second confirmation must not enroll delivery twice
	require.NoError(t, svc.MarkOrderPaid(ctx, result.OrderID))

	order, err := svc.GetOrder(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
	for _, i := range order.Items {
		assert.Equal(t, domain.ItemStatusPaid, i.Status)
	}

	assert.Len(t, suite.store.OutboxRecords(), 1)
}

func (suite *orderServiceSuite) TestMarkOrderPaid_SkipsCancelledClothes() {
	t := suite.T()
	ctx := t.Context()

	svc := suite.newService(&stubGateway{
		result: domain.PaymentResult{PaymentURL: lo.ToPtr("https://checkout.example/s/2")},
	})

	req := cashRequest(item(domain.ProductTypeClothes, 1, "30.00"), item(domain.ProductTypePack, 1, "3.00"))
	req.PaymentMethod = domain.PaymentMethodCard

	result, err := svc.CreateOrder(ctx, req)
	require.NoError(t, err)

	order, err := svc.GetOrder(ctx, result.OrderID)
	require.NoError(t, err)
	clothes, _ := lo.Find(order.Items, func(i domain.OrderItem) bool { return i.ProductType == domain.ProductTypeClothes })

	_, err = svc.CancelItem(ctx, result.OrderID, clothes.ID)
	require.NoError(t, err)

	require.NoError(t, svc.MarkOrderPaid(ctx, result.OrderID))

	order, err = svc.GetOrder(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)

	cancelled, _ := order.Item(clothes.ID)
	assert.Equal(t, domain.ItemStatusCancelled, cancelled.Status)

	assert.Empty(t, suite.store.OutboxRecords())
}

func (suite *orderServiceSuite) TestMarkOrderPaid_DeliversOnlyActiveClothes() {
	t := suite.T()
	ctx := t.Context()

	svc := suite.newService(&stubGateway{
		result: domain.PaymentResult{PaymentURL: lo.ToPtr("https://checkout.example/s/3")},
	})

	req := cashRequest(item(domain.ProductTypeClothes, 1, "30.00"), item(domain.ProductTypeClothes, 1, "40.00"))
	req.PaymentMethod = domain.PaymentMethodCard

	result, err := svc.CreateOrder(ctx, req)
	require.NoError(t, err)

	order, err := svc.GetOrder(ctx, result.OrderID)
	require.NoError(t, err)
	cancelledID, keptID := order.Items[0].ID, order.Items[1].ID

	_, err = svc.CancelItem(ctx, result.OrderID, cancelledID)
	require.NoError(t, err)

	require.NoError(t, svc.MarkOrderPaid(ctx, result.OrderID))

	records := suite.store.OutboxRecords()
	require.Len(t, records, 1)

	var payload domain.StartDeliveryPayload
	require.NoError(t, json.Unmarshal(records[0].PayloadJSON, &payload))
	assert.Equal(t, []uuid.UUID{keptID}, payload.PhysicalItemIDs)
}

func (suite *orderServiceSuite) TestRecalculate() {
	tests := []struct {
		name     string
		current  domain.OrderStatus
		items    []domain.OrderItem
		expected domain.OrderStatus
	}{
		{
			name:    "digital unlocked, delivered, cancelled: fulfilled",
			current: domain.OrderStatusPaid,
			items: []domain.OrderItem{
				seededItem(domain.ProductTypePack, domain.ItemStatusDigitalUnlocked),
				seededItem(domain.ProductTypeClothes, domain.ItemStatusDelivered),
				seededItem(domain.ProductTypeClothes, domain.ItemStatusCancelled),
			},
			expected: domain.OrderStatusFulfilled,
		},
		{
			name:    "digital unlocked, paid: partially fulfilled",
			current: domain.OrderStatusPaid,
			items: []domain.OrderItem{
				seededItem(domain.ProductTypeSample, domain.ItemStatusDigitalUnlocked),
				seededItem(domain.ProductTypeClothes, domain.ItemStatusPaid),
			},
			expected: domain.OrderStatusPartiallyFulfilled,
		},
		{
			name:    "all cancelled: unchanged",
			current: domain.OrderStatusPaid,
			items: []domain.OrderItem{
				seededItem(domain.ProductTypeSample, domain.ItemStatusCancelled),
			},
			expected: domain.OrderStatusPaid,
		},
		{
			name:    "cancelled order: unchanged",
			current: domain.OrderStatusCancelled,
			items: []domain.OrderItem{
				seededItem(domain.ProductTypeClothes, domain.ItemStatusDelivered),
			},
			expected: domain.OrderStatusCancelled,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()

			orderID := suite.seedOrder(tt.current, tt.items...)

			status, err := suite.svc.Recalculate(ctx, orderID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, status)

			// idempotent
			again, err := suite.svc.Recalculate(ctx, orderID)
			require.NoError(t, err)
			assert.Equal(t, status, again)

			stored, err := suite.svc.GetOrderStatus(ctx, orderID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, stored)
		})
	}
}

func (suite *orderServiceSuite) TestRecalculate_NotFound() {
	t := suite.T()

	_, err := suite.svc.Recalculate(t.Context(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func (suite *orderServiceSuite) TestMarkItemsDelivered_Batch() {
	t := suite.T()
	ctx := t.Context()

	first := seededItem(domain.ProductTypeClothes, domain.ItemStatusShipped)
	second := seededItem(domain.ProductTypeClothes, domain.ItemStatusShipped)
	third := seededItem(domain.ProductTypeClothes, domain.ItemStatusPending)
	orderID := suite.seedOrder(domain.OrderStatusPaid, first, second, third)

	status, err := suite.svc.MarkItemsDelivered(ctx, orderID, []uuid.UUID{first.ID, second.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPartiallyFulfilled, status)

	items, err := suite.svc.GetOrderItems(ctx, orderID)
	require.NoError(t, err)

	statuses := lo.SliceToMap(items, func(i domain.OrderItem) (uuid.UUID, domain.ItemStatus) { return i.ID, i.Status })
	assert.Equal(t, domain.ItemStatusDelivered, statuses[first.ID])
	assert.Equal(t, domain.ItemStatusDelivered, statuses[second.ID])
	assert.Equal(t, domain.ItemStatusPending, statuses[third.ID])
}

func (suite *orderServiceSuite) TestMarkItemsDelivered_AllOrNothing() {
	t := suite.T()
	ctx := t.Context()

	shipped := seededItem(domain.ProductTypeClothes, domain.ItemStatusShipped)
	paid := seededItem(domain.ProductTypeClothes, domain.ItemStatusPaid)
	orderID := suite.seedOrder(domain.OrderStatusPaid, shipped, paid)

	_, err := suite.svc.MarkItemsDelivered(ctx, orderID, []uuid.UUID{shipped.ID, paid.ID})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	items, err := suite.svc.GetOrderItems(ctx, orderID)
	require.NoError(t, err)
	for _, i := range items {
		assert.NotEqual(t, domain.ItemStatusDelivered, i.Status)
	}
}

func (suite *orderServiceSuite) TestItemTransitions() {
	t := suite.T()
	ctx := t.Context()

	clothes := seededItem(domain.ProductTypeClothes, domain.ItemStatusPaid)
	pack := seededItem(domain.ProductTypePack, domain.ItemStatusPaid)
	orderID := suite.seedOrder(domain.OrderStatusPaid, clothes, pack)

	_, err := suite.svc.MarkItemShipped(ctx, orderID, pack.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = suite.svc.MarkItemDigitalUnlocked(ctx, orderID, clothes.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	status, err := suite.svc.MarkItemDigitalUnlocked(ctx, orderID, pack.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPartiallyFulfilled, status)

	// repeated callback
	status, err = suite.svc.MarkItemDigitalUnlocked(ctx, orderID, pack.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPartiallyFulfilled, status)

	status, err = suite.svc.MarkItemShipped(ctx, orderID, clothes.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPartiallyFulfilled, status)

	status, err = suite.svc.MarkItemDelivered(ctx, orderID, clothes.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFulfilled, status)
}

func (suite *orderServiceSuite) TestItemOwnership() {
	t := suite.T()
	ctx := t.Context()

	own := seededItem(domain.ProductTypeClothes, domain.ItemStatusPaid)
	other := seededItem(domain.ProductTypeClothes, domain.ItemStatusPaid)
	orderID := suite.seedOrder(domain.OrderStatusPaid, own)
	suite.seedOrder(domain.OrderStatusPaid, other)

	_, err := suite.svc.MarkItemShipped(ctx, orderID, other.ID)
	require.ErrorIs(t, err, domain.ErrOwnershipMismatch)

	_, err = suite.svc.MarkItemShipped(ctx, orderID, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = suite.svc.MarkItemShipped(ctx, uuid.New(), own.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func (suite *orderServiceSuite) TestCancelledOrderRejectsItemChanges() {
	t := suite.T()
	ctx := t.Context()

	i := seededItem(domain.ProductTypeClothes, domain.ItemStatusShipped)
	orderID := suite.seedOrder(domain.OrderStatusCancelled, i)

	_, err := suite.svc.MarkItemDelivered(ctx, orderID, i.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func (suite *orderServiceSuite) TestOrderStatusOperations() {
	t := suite.T()
	ctx := t.Context()

	pending := suite.seedOrder(domain.OrderStatusPending, seededItem(domain.ProductTypeSample, domain.ItemStatusPending))
	require.NoError(t, suite.svc.MarkOrderFailed(ctx, pending))
	require.NoError(t, suite.svc.MarkOrderFailed(ctx, pending))
	require.ErrorIs(t, suite.svc.MarkOrderPaid(ctx, pending), domain.ErrInvalidTransition)
	require.ErrorIs(t, suite.svc.CancelOrder(ctx, pending), domain.ErrInvalidTransition)

	paid := suite.seedOrder(domain.OrderStatusPaid, seededItem(domain.ProductTypeSample, domain.ItemStatusPaid))
	require.ErrorIs(t, suite.svc.MarkOrderFailed(ctx, paid), domain.ErrInvalidTransition)
	require.NoError(t, suite.svc.CancelOrder(ctx, paid))

	status, err := suite.svc.GetOrderStatus(ctx, paid)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, status)
}

func (suite *orderServiceSuite) TestMarkOrderFulfilled() {
	t := suite.T()
	ctx := t.Context()

	orderID := suite.seedOrder(domain.OrderStatusPaid,
		seededItem(domain.ProductTypeClothes, domain.ItemStatusShipped),
		seededItem(domain.ProductTypePack, domain.ItemStatusPaid),
		seededItem(domain.ProductTypeClothes, domain.ItemStatusCancelled),
	)

	status, err := suite.svc.MarkOrderFulfilled(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFulfilled, status)

	items, err := suite.svc.GetOrderItems(ctx, orderID)
	require.NoError(t, err)

	got := lo.Map(items, func(i domain.OrderItem, _ int) domain.ItemStatus { return i.Status })
	assert.ElementsMatch(t, []domain.ItemStatus{
		domain.ItemStatusDelivered,
		domain.ItemStatusDigitalUnlocked,
		domain.ItemStatusCancelled,
	}, got)
}

func (suite *orderServiceSuite) TestUpdateTrackingNumber() {
	t := suite.T()
	ctx := t.Context()

	orderID := suite.seedOrder(domain.OrderStatusPaid, seededItem(domain.ProductTypeClothes, domain.ItemStatusShipped))

	require.ErrorIs(t, suite.svc.UpdateTrackingNumber(ctx, orderID, " "), domain.ErrInvalidRequest)
	require.ErrorIs(t, suite.svc.UpdateTrackingNumber(ctx, uuid.New(), "TRK1"), domain.ErrNotFound)
	require.NoError(t, suite.svc.UpdateTrackingNumber(ctx, orderID, " TRK1 "))

	order, err := suite.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "TRK1", lo.FromPtr(order.TrackingNumber))
}

func (suite *orderServiceSuite) TestGetUserOrderSummary() {
	t := suite.T()
	ctx := t.Context()

	userID := gofakeit.UUID()
	base := time.Now().UTC().Add(-time.Hour)

	older := suite.seedOrderFor(userID, base, domain.OrderStatusPaid, seededItem(domain.ProductTypeSample, domain.ItemStatusPaid))
	newer := suite.seedOrderFor(userID, base.Add(time.Minute), domain.OrderStatusPending,
		seededItem(domain.ProductTypeSample, domain.ItemStatusPending),
		seededItem(domain.ProductTypePack, domain.ItemStatusPending))
	suite.seedOrderFor(gofakeit.UUID(), base, domain.OrderStatusPaid, seededItem(domain.ProductTypeSample, domain.ItemStatusPaid))

	summary, err := suite.svc.GetUserOrderSummary(ctx, userID)
	require.NoError(t, err)

	require.Len(t, summary.Orders, 2)
	assert.Equal(t, newer, summary.Orders[0].OrderID)
	assert.Equal(t, 2, summary.Orders[0].ItemCount)
	assert.Equal(t, older, summary.Orders[1].OrderID)
	assert.Equal(t, map[domain.OrderStatus]int{
		domain.OrderStatusPaid:    1,
		domain.OrderStatusPending: 1,
	}, summary.StatusCounts)

	_, err = suite.svc.GetUserOrderSummary(ctx, "")
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func (suite *orderServiceSuite) seedOrder(status domain.OrderStatus, items ...domain.OrderItem) uuid.UUID {
	return suite.seedOrderFor(gofakeit.UUID(), time.Now().UTC(), status, items...)
}

func (suite *orderServiceSuite) seedOrderFor(userID string, createdAt time.Time, status domain.OrderStatus, items ...domain.OrderItem) uuid.UUID {
	order := domain.Order{
		ID:              uuid.New(),
		UserID:          userID,
		PaymentMethod:   domain.PaymentMethodCash,
		Status:          status,
		TotalAmount:     domain.Money{Amount: decimal.NewFromInt(1), Currency: currency.EUR},
		DeliveryAddress: lo.ToPtr(gofakeit.Address().Address),
		Items:           items,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}

	suite.Require().NoError(suite.store.Orders().InsertOrder(suite.T().Context(), order))

	return order.ID
}

func seededItem(productType domain.ProductType, status domain.ItemStatus) domain.OrderItem {
	return domain.OrderItem{
		ID:           uuid.New(),
		ProductType:  productType,
		ProductID:    gofakeit.UUID(),
		Quantity:     1,
		PricePerUnit: domain.Money{Amount: decimal.NewFromInt(1), Currency: currency.EUR},
		Status:       status,
	}
}

func cashRequest(items ...domain.CreateOrderItem) domain.CreateOrderRequest {
	return domain.CreateOrderRequest{
		UserID:          gofakeit.UUID(),
		PaymentMethod:   domain.PaymentMethodCash,
		Items:           items,
		DeliveryAddress: lo.ToPtr(gofakeit.Address().Address),
		RecipientName:   lo.ToPtr(gofakeit.Name()),
		RecipientPhone:  lo.ToPtr(gofakeit.Phone()),
		ReturnURLBase:   "https://shop.example",
	}
}

func item(productType domain.ProductType, quantity int, price string) domain.CreateOrderItem {
	return domain.CreateOrderItem{
		ProductType:  productType,
		ProductID:    gofakeit.UUID(),
		Quantity:     quantity,
		PricePerUnit: domain.Money{Amount: decimal.RequireFromString(price), Currency: currency.EUR},
	}
}
