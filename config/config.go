package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	AppURL      string
	Environment string

	// Redis configuration, empty URL keeps everything in-process
	RedisURL string

	// Conversation sessions
	SessionStore string // memory, redis
	SessionTTL   time.Duration
	PhoneRegion  string

	// Payment gateway
	PaymentProvider string // stripe, sandbox
	Currency        string
	StripeSecretKey string
	PaymentTimeout  time.Duration

	// Circuit breaker around the gateway
	CircuitMaxRequests  uint32
	CircuitFailureRatio float64
	CircuitTimeout      time.Duration

	// Messaging
	MessengerDriver string // telegram, pubnub, log
	TelegramToken   string

	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Notifications
	NotificationTimeout time.Duration
	NotificationWorkers int
	NotificationRate    float64 // messages per second
	ReminderCron        string
	Timezone            string

	// Request rate limiting per client IP, 0 disables it
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	return &Config{
		// Server
		AppURL:      getEnv("APP_URL", "http://127.0.0.1:8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL: getEnv("REDIS_URL", ""),

		// Sessions
		SessionStore: getEnv("SESSION_STORE", "memory"),
		SessionTTL:   getEnvAsDuration("SESSION_TTL", "0s"),
		PhoneRegion:  getEnv("PHONE_REGION", "IL"),

		// Payment
		PaymentProvider: getEnv("PAYMENT_PROVIDER", "stripe"),
		Currency:        getEnv("CURRENCY", "ils"),
		StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		PaymentTimeout:  getEnvAsDuration("PAYMENT_TIMEOUT", "10s"),

		CircuitMaxRequests:  uint32(getEnvAsInt("CIRCUIT_MAX_REQUESTS", 20)),
		CircuitFailureRatio: getEnvAsFloat("CIRCUIT_FAILURE_RATIO", 0.6),
		CircuitTimeout:      getEnvAsDuration("CIRCUIT_TIMEOUT", "30s"),

		// Messaging
		MessengerDriver: getEnv("MESSENGER_DRIVER", "telegram"),
		TelegramToken:   getEnv("TELEGRAM_TOKEN", ""),

		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "partyflow-server"),

		// Notifications
		NotificationTimeout: getEnvAsDuration("NOTIFICATION_TIMEOUT", "5s"),
		NotificationWorkers: getEnvAsInt("NOTIFICATION_WORKERS", 8),
		NotificationRate:    getEnvAsFloat("NOTIFICATION_RATE", 25),
		ReminderCron:        getEnv("REMINDER_CRON", "0 9 * * *"),
		Timezone:            getEnv("TIMEZONE", "Asia/Jerusalem"),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
