package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nikolayk812/orderflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(vars map[string]string) func(string) string {
	return func(key string) string {
		return vars[key]
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := config.FromEnv(lookup(map[string]string{
		"DATABASE_URL":  "postgres://localhost/orders",
		"KAFKA_BROKERS": "k1:9092, k2:9092,",
		"INSTANCE_ID":   "node-1",
	}))
	require.NoError(t, err)

	assert.Equal(t, config.Config{
		DatabaseURL:          "postgres://localhost/orders",
		HTTPAddr:             ":8080",
		LogLevel:             slog.LevelInfo,
		InstanceID:           "node-1",
		KafkaBrokers:         []string{"k1:9092", "k2:9092"},
		KafkaTopic:           "orders.delivery",
		OutboxPollInterval:   5 * time.Second,
		OutboxBatchSize:      100,
		OutboxPublishTimeout: 3 * time.Second,
		OutboxClaimLease:     time.Minute,
		ReaperInterval:       time.Minute,
		ReaperThreshold:      time.Hour,
		ReaperBatchSize:      500,
		PaymentReturnURLBase: "http://localhost:8080",
	}, cfg)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := config.FromEnv(lookup(map[string]string{
		"DATABASE_URL":         "postgres://db/orders",
		"KAFKA_BROKERS":        "k1:9092",
		"LOG_LEVEL":            "debug",
		"OUTBOX_POLL_INTERVAL": "250ms",
		"OUTBOX_BATCH_SIZE":    "10",
		"OUTBOX_RETENTION":     "168h",
		"REAPER_THRESHOLD":     "30m",
		"STRIPE_SECRET_KEY":    "sk_test_123",
	}))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	assert.Equal(t, 10, cfg.OutboxBatchSize)
	assert.Equal(t, 168*time.Hour, cfg.OutboxRetention)
	assert.Equal(t, 30*time.Minute, cfg.ReaperThreshold)
	assert.Equal(t, "sk_test_123", cfg.StripeSecretKey)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantErr []string
	}{
		{
			name:    "missing required: fail",
			vars:    map[string]string{},
			wantErr: []string{"DATABASE_URL is required", "KAFKA_BROKERS is required"},
		},
		{
			name: "malformed values: fail",
			vars: map[string]string{
				"DATABASE_URL":      "postgres://db/orders",
				"KAFKA_BROKERS":     "k1:9092",
				"OUTBOX_BATCH_SIZE": "many",
				"REAPER_INTERVAL":   "soon",
			},
			wantErr: []string{"OUTBOX_BATCH_SIZE", "REAPER_INTERVAL"},
		},
		{
			name: "lease shorter than publish timeout: fail",
			vars: map[string]string{
				"DATABASE_URL":           "postgres://db/orders",
				"KAFKA_BROKERS":          "k1:9092",
				"OUTBOX_PUBLISH_TIMEOUT": "10s",
				"OUTBOX_CLAIM_LEASE":     "5s",
			},
			wantErr: []string{"OUTBOX_CLAIM_LEASE must not be shorter than OUTBOX_PUBLISH_TIMEOUT"},
		},
		{
			name: "non-positive threshold: fail",
			vars: map[string]string{
				"DATABASE_URL":     "postgres://db/orders",
				"KAFKA_BROKERS":    "k1:9092",
				"REAPER_THRESHOLD": "-1m",
			},
			wantErr: []string{"REAPER_THRESHOLD must be positive"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.FromEnv(lookup(tt.vars))
			require.Error(t, err)

			for _, want := range tt.wantErr {
				assert.ErrorContains(t, err, want)
			}
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "DATABASE_URL=postgres://file/orders\nKAFKA_BROKERS=file:9092\nKAFKA_TOPIC=from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// the environment wins over the file
	t.Setenv("KAFKA_TOPIC", "from-env")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("KAFKA_BROKERS", "")
	require.NoError(t, os.Unsetenv("DATABASE_URL"))
	require.NoError(t, os.Unsetenv("KAFKA_BROKERS"))

	cfg, err := config.Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://file/orders", cfg.DatabaseURL)
	assert.Equal(t, []string{"file:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "from-env", cfg.KafkaTopic)
}
