package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	HTTPAddr    string
	LogLevel    slog.Level
	InstanceID  string

	KafkaBrokers []string
	KafkaTopic   string

	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	OutboxPublishTimeout time.Duration
	OutboxClaimLease     time.Duration
	// OutboxRetention of zero keeps processed records forever.
	OutboxRetention time.Duration

	ReaperInterval  time.Duration
	ReaperThreshold time.Duration
	ReaperBatchSize int

	PaymentReturnURLBase string
	// StripeSecretKey empty disables card payments.
	StripeSecretKey string
}

// Load reads the given dotenv files, missing ones are skipped, and then the
// process environment. Variables already set in the environment win.
func Load(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("godotenv.Load %s: %w", f, err)
		}
	}

	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (Config, error) {
	e := env{getenv: getenv}

	cfg := Config{
		DatabaseURL: e.required("DATABASE_URL"),
		HTTPAddr:    e.str("HTTP_ADDR", ":8080"),
		LogLevel:    e.level("LOG_LEVEL", slog.LevelInfo),
		InstanceID:  e.str("INSTANCE_ID", hostname()),

		KafkaBrokers: e.list("KAFKA_BROKERS"),
		KafkaTopic:   e.str("KAFKA_TOPIC", "orders.delivery"),

		OutboxPollInterval:   e.duration("OUTBOX_POLL_INTERVAL", 5*time.Second),
		OutboxBatchSize:      e.int("OUTBOX_BATCH_SIZE", 100),
		OutboxPublishTimeout: e.duration("OUTBOX_PUBLISH_TIMEOUT", 3*time.Second),
		OutboxClaimLease:     e.duration("OUTBOX_CLAIM_LEASE", time.Minute),
		OutboxRetention:      e.duration("OUTBOX_RETENTION", 0),

		ReaperInterval:  e.duration("REAPER_INTERVAL", time.Minute),
		ReaperThreshold: e.duration("REAPER_THRESHOLD", 60*time.Minute),
		ReaperBatchSize: e.int("REAPER_BATCH_SIZE", 500),

		PaymentReturnURLBase: e.str("PAYMENT_RETURN_URL_BASE", "http://localhost:8080"),
		StripeSecretKey:      e.str("STRIPE_SECRET_KEY", ""),
	}

	if len(cfg.KafkaBrokers) == 0 {
		e.errs = append(e.errs, errors.New("KAFKA_BROKERS is required"))
	}

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL must be positive"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	if c.OutboxPublishTimeout <= 0 {
		errs = append(errs, errors.New("OUTBOX_PUBLISH_TIMEOUT must be positive"))
	}
	if c.OutboxClaimLease < c.OutboxPublishTimeout {
		errs = append(errs, errors.New("OUTBOX_CLAIM_LEASE must not be shorter than OUTBOX_PUBLISH_TIMEOUT"))
	}
	if c.OutboxRetention < 0 {
		errs = append(errs, errors.New("OUTBOX_RETENTION must not be negative"))
	}
	if c.ReaperInterval <= 0 {
		errs = append(errs, errors.New("REAPER_INTERVAL must be positive"))
	}
	if c.ReaperThreshold <= 0 {
		errs = append(errs, errors.New("REAPER_THRESHOLD must be positive"))
	}
	if c.ReaperBatchSize <= 0 {
		errs = append(errs, errors.New("REAPER_BATCH_SIZE must be positive"))
	}
	if c.InstanceID == "" {
		errs = append(errs, errors.New("INSTANCE_ID is empty"))
	}

	return errors.Join(errs...)
}

type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) required(key string) string {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		e.errs = append(e.errs, fmt.Errorf("%s is required", key))
	}
	return v
}

func (e *env) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *env) int(key string, def int) int {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *env) level(key string, def slog.Level) slog.Level {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return level
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}
