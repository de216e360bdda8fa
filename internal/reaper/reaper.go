// Package reaper cancels orders that stayed PENDING for too long.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nikolayk812/orderflow/internal/domain"
	"github.com/nikolayk812/orderflow/internal/metrics"
	"github.com/nikolayk812/orderflow/internal/port"
)

var ErrCycleInProgress = errors.New("reaper cycle in progress")

type Reaper struct {
	orders    port.OrderRepository
	threshold time.Duration
	batchSize int

	metrics *metrics.ReaperMetrics
	logger  *slog.Logger
	now     func() time.Time

	running atomic.Bool
}

type Option func(*Reaper)

func WithBatchSize(n int) Option {
	return func(r *Reaper) {
		r.batchSize = n
	}
}

func WithMetrics(m *metrics.ReaperMetrics) Option {
	return func(r *Reaper) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) {
		r.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reaper) {
		r.now = now
	}
}

// New returns a reaper that cancels PENDING orders older than threshold.
func New(orders port.OrderRepository, threshold time.Duration, opts ...Option) (*Reaper, error) {
	if orders == nil {
		return nil, errors.New("order repository is nil")
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("threshold must be positive: %s", threshold)
	}

	r := &Reaper{
		orders:    orders,
		threshold: threshold,
		batchSize: 500,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive: %d", r.batchSize)
	}

	return r, nil
}

// RunOnce cancels up to one batch of stale orders and returns how many it
// cancelled. An order paid between the search and its cancellation is left
// alone, the cancel is conditional on the order still being PENDING.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	if !r.running.CompareAndSwap(false, true) {
		return 0, ErrCycleInProgress
	}
	defer r.running.Store(false)

	cutoff := r.now().Add(-r.threshold)

	stale, err := r.orders.SearchOrders(ctx, domain.OrderFilter{
		Statuses:  []domain.OrderStatus{domain.OrderStatusPending},
		CreatedAt: &domain.TimeRange{Before: &cutoff},
		Limit:     r.batchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("orders.SearchOrders: %w", err)
	}

	var cancelled int
	for _, order := range stale {
		if ctx.Err() != nil {
			return cancelled, ctx.Err()
		}

		ok, err := r.orders.CancelIfPending(ctx, order.ID, cutoff)
		if err != nil {
			if r.metrics != nil {
				r.metrics.Errors.Inc()
			}
			r.logger.ErrorContext(ctx, "cancel stale order",
				slog.String("order_id", order.ID.String()),
				slog.Any("error", err))
			continue
		}

		if !ok {
			continue
		}

		cancelled++
		if r.metrics != nil {
			r.metrics.Cancelled.Inc()
		}
		r.logger.InfoContext(ctx, "stale order cancelled",
			slog.String("order_id", order.ID.String()),
			slog.Time("created_at", order.CreatedAt))
	}

	return cancelled, nil
}

// Run calls RunOnce every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive: %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "reaper started",
		slog.Duration("interval", interval),
		slog.Duration("threshold", r.threshold))

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "reaper stopped")
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "reaper cycle", slog.Any("error", err))
			}
		}
	}
}
