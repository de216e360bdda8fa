package reaper_test

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/nikolayk812/orderflow/internal/domain"
	"github.com/nikolayk812/orderflow/internal/metrics"
	"github.com/nikolayk812/orderflow/internal/reaper"
	"github.com/nikolayk812/orderflow/internal/repository/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/text/currency"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunOnce(t *testing.T) {
	ctx := t.Context()
	now := time.Now().UTC()
	threshold := time.Hour

	store := memory.New()
	orders := store.Orders()

	tests := []struct {
		name      string
		status    domain.OrderStatus
		age       time.Duration
		cancelled bool
	}{
		{name: "pending, just past threshold: cancelled", status: domain.OrderStatusPending, age: threshold + time.Second, cancelled: true},
		{name: "pending, old: cancelled", status: domain.OrderStatusPending, age: 24 * time.Hour, cancelled: true},
		{name: "pending, just under threshold: kept", status: domain.OrderStatusPending, age: threshold - time.Second},
		{name: "pending, at threshold: kept", status: domain.OrderStatusPending, age: threshold},
		{name: "paid, old: kept", status: domain.OrderStatusPaid, age: 24 * time.Hour},
		{name: "failed, old: kept", status: domain.OrderStatusFailed, age: 24 * time.Hour},
	}

	ids := make([]uuid.UUID, len(tests))
	for i, tt := range tests {
		ids[i] = seedOrder(t, orders, tt.status, now.Add(-tt.age))
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewReaperMetrics(reg)

	r, err := reaper.New(orders, threshold,
		reaper.WithClock(func() time.Time { return now }),
		reaper.WithMetrics(m))
	require.NoError(t, err)

	cancelled, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Cancelled), 0)

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := orders.GetOrder(ctx, ids[i])
			require.NoError(t, err)

			if tt.cancelled {
				assert.Equal(t, domain.OrderStatusCancelled, order.Status)
				return
			}
			assert.Equal(t, tt.status, order.Status)
		})
	}

	// nothing left to reap
	cancelled, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, cancelled)
}

func TestRunOnce_BatchSize(t *testing.T) {
	ctx := t.Context()
	now := time.Now().UTC()

	store := memory.New()
	for range 5 {
		seedOrder(t, store.Orders(), domain.OrderStatusPending, now.Add(-2*time.Hour))
	}

	r, err := reaper.New(store.Orders(), time.Hour,
		reaper.WithClock(func() time.Time { return now }),
		reaper.WithBatchSize(2))
	require.NoError(t, err)

	for _, want := range []int{2, 2, 1, 0} {
		cancelled, err := r.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, cancelled)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	now := time.Now().UTC()
	store := memory.New()
	id := seedOrder(t, store.Orders(), domain.OrderStatusPending, now.Add(-2*time.Hour))

	r, err := reaper.New(store.Orders(), time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, 10*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		order, err := store.Orders().GetOrder(t.Context(), id)
		return err == nil && order.Status == domain.OrderStatusCancelled
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestNew_Invalid(t *testing.T) {
	store := memory.New()

	_, err := reaper.New(store.Orders(), 0)
	require.EqualError(t, err, "threshold must be positive: 0s")

	_, err = reaper.New(store.Orders(), time.Hour, reaper.WithBatchSize(-1))
	require.EqualError(t, err, "batch size must be positive: -1")
}

type orderInserter interface {
	InsertOrder(ctx context.Context, order domain.Order) error
}

func seedOrder(t *testing.T, orders orderInserter, status domain.OrderStatus, createdAt time.Time) uuid.UUID {
	t.Helper()

	price := domain.Money{Amount: decimal.NewFromInt(5), Currency: currency.USD}
	order := domain.Order{
		ID:            uuid.New(),
		UserID:        gofakeit.UUID(),
		PaymentMethod: domain.PaymentMethodCard,
		Status:        status,
		TotalAmount:   price,
		Items: []domain.OrderItem{{
			ID:           uuid.New(),
			ProductType:  domain.ProductTypeSample,
			ProductID:    gofakeit.UUID(),
			Quantity:     1,
			PricePerUnit: price,
			Status:       domain.ItemStatusPending,
		}},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}

	require.NoError(t, orders.InsertOrder(t.Context(), order))

	return order.ID
}
