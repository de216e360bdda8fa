package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/orderflow/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestOrderFilter_Validate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name    string
		filter  domain.OrderFilter
		wantErr string
	}{
		{
			name:    "empty",
			wantErr: "all fields are empty",
		},
		{
			name:   "ids only",
			filter: domain.OrderFilter{IDs: []uuid.UUID{uuid.New()}},
		},
		{
			name:    "negative limit",
			filter:  domain.OrderFilter{Statuses: []domain.OrderStatus{domain.OrderStatusPending}, Limit: -1},
			wantErr: "limit is negative",
		},
		{
			name:    "empty range",
			filter:  domain.OrderFilter{CreatedAt: &domain.TimeRange{}},
			wantErr: "createdAt: both Before and After are nil",
		},
		{
			name:    "inverted range",
			filter:  domain.OrderFilter{CreatedAt: &domain.TimeRange{Before: &earlier, After: &now}},
			wantErr: "createdAt: before is before After",
		},
		{
			name:   "bounded range",
			filter: domain.OrderFilter{CreatedAt: &domain.TimeRange{Before: &now, After: &earlier}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestTimeRange_Contains(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	r := domain.TimeRange{Before: &now, After: &earlier}

	assert.True(t, r.Contains(now.Add(-time.Minute)))
	assert.False(t, r.Contains(now), "before bound is exclusive")
	assert.False(t, r.Contains(earlier), "after bound is exclusive")
	assert.False(t, r.Contains(now.Add(time.Minute)))

	open := domain.TimeRange{Before: &now}
	assert.True(t, open.Contains(earlier.Add(-24*time.Hour)))
}
