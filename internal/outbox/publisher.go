// Package outbox relays committed outbox records to the message broker.
//
// Delivery is at-least-once: a record is marked processed only after the
// broker accepted it, so a crash in between publishes it again on the next
// cycle. An order has at most one record per event type, so consumers
// deduplicate by message key and event_type header.
package outbox

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

// ErrCycleInProgress is returned by RunOnce while another cycle of the same
// publisher is still running.
var ErrCycleInProgress = errors.New("outbox cycle in progress")

type Publisher struct {
	records  port.OutboxRepository
	producer port.Producer

	claimer        string
	batchSize      int
	lease          time.Duration
	publishTimeout time.Duration
	retention      time.Duration

	metrics *metrics.OutboxMetrics
	logger  *slog.Logger
	now     func() time.Time

	running atomic.Bool
}

type Option func(*Publisher)

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		p.batchSize = n
	}
}

// WithClaimLease sets how long a claim keeps other publishers away from a record.
func WithClaimLease(d time.Duration) Option {
	return func(p *Publisher) {
		p.lease = d
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.publishTimeout = d
	}
}

// WithRetention enables deleting records processed longer than d ago. Zero keeps them.
func WithRetention(d time.Duration) Option {
	return func(p *Publisher) {
		p.retention = d
	}
}

func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher returns a publisher that claims records as claimer.
// Every running instance needs its own claimer id.
func NewPublisher(records port.OutboxRepository, producer port.Producer, claimer string, opts ...Option) (*Publisher, error) {
	if records == nil {
		return nil, errors.New("outbox repository is nil")
	}
	if producer == nil {
		return nil, errors.New("producer is nil")
	}
	if claimer == "" {
		return nil, errors.New("claimer is empty")
	}

	p := &Publisher{
		records:        records,
		producer:       producer,
		claimer:        claimer,
		batchSize:      100,
		lease:          time.Minute,
		publishTimeout: 3 * time.Second,
		logger:         slog.Default(),
		now:            func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive: %d", p.batchSize)
	}
	if p.publishTimeout <= 0 {
		return nil, fmt.Errorf("publish timeout must be positive: %s", p.publishTimeout)
	}
	if p.lease < p.publishTimeout {
		return nil, fmt.Errorf("claim lease %s is shorter than publish timeout %s", p.lease, p.publishTimeout)
	}

	return p, nil
}

// CycleResult counts what one cycle did.
type CycleResult struct {
	Claimed   int
	Published int
	Failed    int
	Pruned    int64
}

// RunOnce claims a batch of unprocessed records, oldest first, and publishes
// them one by one. A failed record stays unprocessed and does not stop the
// rest of the batch.
func (p *Publisher) RunOnce(ctx context.Context) (CycleResult, error) {
	var result CycleResult

	if !p.running.CompareAndSwap(false, true) {
		return result, ErrCycleInProgress
	}
	defer p.running.Store(false)

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.CycleDuration.Observe(time.Since(start).Seconds())
		}
	}()

	batch, err := p.records.ClaimBatch(ctx, p.claimer, p.batchSize, p.lease)
	if err != nil {
		return result, fmt.Errorf("records.ClaimBatch: %w", err)
	}
	result.Claimed = len(batch)

	for _, record := range batch {
		if ctx.Err() != nil {
			// unpublished claims expire with the lease
			return result, ctx.Err()
		}

		if err := p.publish(ctx, record); err != nil {
			result.Failed++
			p.failed(ctx, record, err)
			continue
		}

		result.Published++
	}

	if p.retention > 0 {
		pruned, err := p.records.PruneProcessed(ctx, p.now().Add(-p.retention))
		if err != nil {
			return result, fmt.Errorf("records.PruneProcessed: %w", err)
		}
		result.Pruned = pruned

		if p.metrics != nil {
			p.metrics.Pruned.Add(float64(pruned))
		}
	}

	if result.Claimed > 0 {
		p.logger.InfoContext(ctx, "outbox cycle finished",
			slog.Int("claimed", result.Claimed),
			slog.Int("published", result.Published),
			slog.Int("failed", result.Failed))
	}

	return result, nil
}

func (p *Publisher) publish(ctx context.Context, record domain.OutboxRecord) error {
	pubCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	err := p.producer.Publish(pubCtx, record.EventType, record.OrderID.String(), record.PayloadJSON)
	cancel()
	if err != nil {
		return fmt.Errorf("producer.Publish: %w", err)
	}

	if err := p.records.MarkProcessed(ctx, record.ID, p.now()); err != nil {
		// already published, the record goes out again after the lease
		return fmt.Errorf("records.MarkProcessed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.Published.WithLabelValues(string(record.EventType)).Inc()
	}

	return nil
}

func (p *Publisher) failed(ctx context.Context, record domain.OutboxRecord, cause error) {
	if p.metrics != nil {
		p.metrics.Failures.WithLabelValues(string(record.EventType)).Inc()
	}

	p.logger.WarnContext(ctx, "outbox record not published",
		slog.String("record_id", record.ID.String()),
		slog.String("order_id", record.OrderID.String()),
		slog.String("event_type", string(record.EventType)),
		slog.Int("attempts", record.Attempts+1),
		slog.Any("error", cause))

	if err := p.records.ReleaseClaim(ctx, record.ID, cause.Error()); err != nil {
		p.logger.ErrorContext(ctx, "release outbox claim",
			slog.String("record_id", record.ID.String()),
			slog.Any("error", err))
	}
}

// Run calls RunOnce every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive: %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.InfoContext(ctx, "outbox publisher started",
		slog.String("claimer", p.claimer),
		slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "outbox publisher stopped")
			return nil
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) && ctx.Err() == nil {
				p.logger.ErrorContext(ctx, "outbox cycle", slog.Any("error", err))
			}
		}
	}
}
