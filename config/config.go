package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	HoldBackendPocketBase = "pocketbase"
	HoldBackendRedis      = "redis"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Hold configuration
	HoldBackend       string
	HoldDuration      time.Duration
	HoldSweepInterval time.Duration
	HoldSweepBatch    int

	// Ticket configuration
	TicketNumberAttempts int
	DefaultCurrency      string

	// Check-in throttling
	CheckInMaxAttempts   int
	CheckInAttemptWindow time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
	OTLPEndpoint  string
	OTLPInsecure  bool
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "ticket-service"),

		// Holds
		HoldBackend:       strings.ToLower(getEnv("HOLD_BACKEND", HoldBackendPocketBase)),
		HoldDuration:      getEnvAsDuration("HOLD_DURATION", "15m"),
		HoldSweepInterval: getEnvAsDuration("HOLD_SWEEP_INTERVAL", "1m"),
		HoldSweepBatch:    getEnvAsInt("HOLD_SWEEP_BATCH", 200),

		// Tickets
		TicketNumberAttempts: getEnvAsInt("TICKET_NUMBER_ATTEMPTS", 10),
		DefaultCurrency:      strings.ToUpper(getEnv("DEFAULT_CURRENCY", "USD")),

		// Check-in
		CheckInMaxAttempts:   getEnvAsInt("CHECKIN_MAX_ATTEMPTS", 10),
		CheckInAttemptWindow: getEnvAsDuration("CHECKIN_ATTEMPT_WINDOW", "15m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
		OTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:  getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
	}
}

// IsDevelopment reports whether development-only routes should be mounted.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, fall back to the default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
