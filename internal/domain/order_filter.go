package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderFilter has AND semantics across fields, OR semantics within each field slice
type OrderFilter struct {
	IDs       []uuid.UUID
	UserIDs   []string
	Statuses  []OrderStatus
	CreatedAt *TimeRange
	// Limit caps the result size, zero means no limit. Results are ordered by created_at ascending.
	Limit int
}

func (f OrderFilter) Validate() error {
	if len(f.IDs) == 0 && len(f.UserIDs) == 0 && len(f.Statuses) == 0 && f.CreatedAt == nil {
		return errors.New("all fields are empty")
	}

	if f.Limit < 0 {
		return errors.New("limit is negative")
	}

	if f.CreatedAt != nil {
		if err := f.CreatedAt.Validate(); err != nil {
			return fmt.Errorf("createdAt: %w", err)
		}
	}

	return nil
}

// TimeRange bounds are exclusive.
type TimeRange struct {
	Before *time.Time
	After  *time.Time
}

func (t TimeRange) Validate() error {
	if t.Before == nil && t.After == nil {
		return errors.New("both Before and After are nil")
	}

	if t.Before != nil && t.After != nil {
		if t.Before.Before(*t.After) {
			return fmt.Errorf("before is before After")
		}
	}

	return nil
}

// Contains reports whether ts falls strictly inside the range.
func (t TimeRange) Contains(ts time.Time) bool {
	if t.Before != nil && !ts.Before(*t.Before) {
		return false
	}
	if t.After != nil && !ts.After(*t.After) {
		return false
	}
	return true
}
