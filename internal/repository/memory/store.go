// Package memory keeps orders and outbox records in process memory.
// It implements the same ports as the Postgres repositories, including
// all-or-nothing transactions, and backs tests that need no database.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/orderflow/internal/domain"
	"github.com/nikolayk812/orderflow/internal/port"
)

type state struct {
	orders map[uuid.UUID]domain.Order
	// items are keyed by owning order id, orders carry no items here
	items  map[uuid.UUID][]domain.OrderItem
	outbox []domain.OutboxRecord
}

func (s *state) clone() *state {
	items := make(map[uuid.UUID][]domain.OrderItem, len(s.items))
	for orderID, orderItems := range s.items {
		items[orderID] = slices.Clone(orderItems)
	}

	return &state{
		orders: maps.Clone(s.orders),
		items:  items,
		outbox: slices.Clone(s.outbox),
	}
}

type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now for claim leases.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		state: &state{
			orders: make(map[uuid.UUID]domain.Order),
			items:  make(map[uuid.UUID][]domain.OrderItem),
		},
		now: func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// accessor runs fn against a state, either the shared one under the store
// lock or a transaction-private copy.
type accessor func(fn func(st *state) error) error

func (s *Store) locked(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *Store) Orders() port.OrderRepository {
	return &orderRepository{access: s.locked}
}

func (s *Store) Outbox() port.OutboxRepository {
	return &outboxRepository{access: s.locked, now: s.now}
}

// WithinTx holds the store lock for the whole of fn, so transactions are serialized.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.state.clone()
	access := func(f func(st *state) error) error {
		return f(tx)
	}

	if err := fn(ctx, port.Repositories{
		Orders: &orderRepository{access: access},
		Outbox: &outboxRepository{access: access, now: s.now},
	}); err != nil {
		return err
	}

	s.state = tx
	return nil
}

// OutboxRecords returns every stored record, oldest first.
func (s *Store) OutboxRecords() []domain.OutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := slices.Clone(s.state.outbox)
	slices.SortStableFunc(records, func(a, b domain.OutboxRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return records
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}
