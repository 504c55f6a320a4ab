package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds notification service configuration loaded from the
// environment.
type Config struct {
	AppName  string
	LogLevel string
	HTTPPort string

	RabbitURL         string
	Exchange          string
	RegistrationQueue string
	DepositQueue      string
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
	ReconnectMaxDelay time.Duration

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	DiscordWebhookURL string
	WebhookTimeout    time.Duration
	WebhookMaxRetries int

	EmailServiceURL string
	EmailTimeout    time.Duration

	SummaryEvery int
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:  getEnv("APP_NAME", "notification-service"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnv("HTTP_PORT", "3000"),

		RabbitURL:         getEnv("RABBITMQ_URL", ""),
		Exchange:          getEnv("EVENTS_EXCHANGE", "user.events"),
		RegistrationQueue: getEnv("REGISTRATION_QUEUE", "notification.user.registered"),
		DepositQueue:      getEnv("DEPOSIT_QUEUE", "notification.user.wallet.deposit"),
		ReconnectAttempts: getEnvAsInt("RECONNECT_ATTEMPTS", 10),
		ReconnectBackoff:  getEnvAsDuration("RECONNECT_BACKOFF", time.Second),
		ReconnectMaxDelay: getEnvAsDuration("RECONNECT_MAX_DELAY", 30*time.Second),

		MongoURI:        getEnv("MONGODB_URI", ""),
		MongoDatabase:   getEnv("MONGODB_DATABASE", "notifications"),
		MongoCollection: getEnv("MONGODB_COLLECTION", "notifications"),

		DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		WebhookTimeout:    getEnvAsDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		WebhookMaxRetries: getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),

		EmailServiceURL: getEnv("EMAIL_SERVICE_URL", ""),
		EmailTimeout:    getEnvAsDuration("EMAIL_TIMEOUT", 5*time.Second),

		SummaryEvery: getEnvAsInt("SUMMARY_EVERY", 5),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.RabbitURL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if c.MongoURI == "" {
		missing = append(missing, "MONGODB_URI")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}
