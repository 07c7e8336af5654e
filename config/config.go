package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Redis.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// PubNub realtime broadcasting.
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubUUID         string

	// Reservation lifecycle.
	ReservationTTL       time.Duration
	MaxNumbersPerRequest int
	SweepBatchSize       int
	SweepLockTTL         time.Duration

	// Pool listing page bounds.
	NumbersPageSize    int
	NumbersPageSizeMax int

	// Payment providers.
	MercadoPagoAccessToken   string
	MercadoPagoWebhookSecret string
	MercadoPagoBaseURL       string
	AsaasAPIKey              string
	AsaasWebhookToken        string
	AsaasBaseURL             string
	StripeSecretKey          string
	StripeWebhookSecret      string
	StripeBaseURL            string
	NotificationBaseURL      string
	CheckoutBackURL          string

	// Operations.
	CronSecretHash  string
	AlertWebhookURL string
	EnableMetrics   bool
}

func Load() *Config {
	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "raffle-server"),

		ReservationTTL:       getEnvAsDuration("RESERVATION_TTL", 15*time.Minute),
		MaxNumbersPerRequest: getEnvAsInt("MAX_NUMBERS_PER_REQUEST", 200),
		SweepBatchSize:       getEnvAsInt("SWEEP_BATCH_SIZE", 200),
		SweepLockTTL:         getEnvAsDuration("SWEEP_LOCK_TTL", 50*time.Second),

		NumbersPageSize:    getEnvAsInt("NUMBERS_PAGE_SIZE", 100),
		NumbersPageSizeMax: getEnvAsInt("NUMBERS_PAGE_SIZE_MAX", 500),

		MercadoPagoAccessToken:   getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
		MercadoPagoWebhookSecret: getEnv("MERCADOPAGO_WEBHOOK_SECRET", ""),
		MercadoPagoBaseURL:       getEnv("MERCADOPAGO_BASE_URL", ""),
		AsaasAPIKey:              getEnv("ASAAS_API_KEY", ""),
		AsaasWebhookToken:        getEnv("ASAAS_WEBHOOK_TOKEN", ""),
		AsaasBaseURL:             getEnv("ASAAS_BASE_URL", ""),
		StripeSecretKey:          getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:      getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeBaseURL:            getEnv("STRIPE_BASE_URL", ""),
		NotificationBaseURL:      getEnv("NOTIFICATION_BASE_URL", ""),
		CheckoutBackURL:          getEnv("CHECKOUT_BACK_URL", ""),

		CronSecretHash:  getEnv("CRON_SECRET_HASH", ""),
		AlertWebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
		EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
