package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"marketplace-order-service/internal/pkg/database"

	"go.uber.org/zap"
)

type Config struct {
	Env      string
	Port     string
	GRPCPort string
	DB       DB
	JWT      JWT
	Payment  Payment
	Redis    Redis
	Kafka    Kafka
	Jobs     Jobs
}

type DB struct {
	database.Config
}

type JWT struct {
	Secret   string
	Issuer   string
	Audience string
}

type Payment struct {
	Provider      string
	WebhookSecret string
}

type Redis struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type Kafka struct {
	Enabled     bool
	Brokers     []string
	TopicOrders string
}

type Jobs struct {
	StockRetryInterval time.Duration
	StockMaxAttempts   int
	PendingOrderTTL    time.Duration
}

func Load(log *zap.Logger) *Config {
	cfg := &Config{
		Env:      getEnvDefault("ENV", "production"),
		Port:     getEnv("APP_PORT", log),
		GRPCPort: getEnvDefault("GRPC_PORT", ""),
		DB: DB{
			Config: database.Config{
				Host:     getEnv("DB_HOST", log),
				Port:     getEnv("DB_PORT", log),
				User:     getEnv("DB_USER", log),
				Password: getEnv("DB_PASSWORD", log),
				Name:     getEnv("DB_NAME", log),
				SSLMode:  getEnvDefault("DB_SSLMODE", "disable"),
			},
		},
		JWT: JWT{
			Secret:   getEnv("JWT_SECRET", log),
			Issuer:   getEnvDefault("JWT_ISSUER", ""),
			Audience: getEnvDefault("JWT_AUDIENCE", ""),
		},
		Payment: Payment{
			Provider:      getEnvDefault("PAYMENT_PROVIDER", "razorpay"),
			WebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", log),
		},
		Redis: Redis{
			Enabled:  getEnvDefault("REDIS_ENABLED", "false") == "true",
			Addr:     getEnvDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvDefault("REDIS_PASSWORD", ""),
			DB:       atoiDefault(getEnvDefault("REDIS_DB", "0"), 0),
			LockTTL:  parseDurationWithDays(getEnvDefault("WEBHOOK_LOCK_TTL", "30s"), 30*time.Second),
		},
		Kafka: Kafka{
			Enabled:     getEnvDefault("KAFKA_ENABLED", "false") == "true",
			Brokers:     splitAndTrim(os.Getenv("KAFKA_BROKERS")),
			TopicOrders: getEnvDefault("KAFKA_TOPIC_ORDERS", "marketplace.orders"),
		},
		Jobs: Jobs{
			StockRetryInterval: parseDurationWithDays(getEnvDefault("STOCK_RETRY_INTERVAL", "1m"), time.Minute),
			StockMaxAttempts:   atoiDefault(getEnvDefault("STOCK_MAX_ATTEMPTS", "5"), 5),
			PendingOrderTTL:    parseDurationWithDays(getEnvDefault("PENDING_ORDER_TTL", "2d"), 48*time.Hour),
		},
	}

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		log.Error("KAFKA_ENABLED=true, но KAFKA_BROKERS пуст")
		panic("missing required environment variable: KAFKA_BROKERS")
	}
	return cfg
}

func (c *Config) IsDev() bool { return c.Env == "development" }

func getEnv(key string, log *zap.Logger) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	log.Error("Обязательная переменная окружения не установлена", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

func getEnvDefault(key, def string) string {
	if val, exists := os.LookupEnv(key); exists && val != "" {
		return val
	}
	return def
}

// parseDurationWithDays accepts time.ParseDuration input plus an "Nd" form.
func parseDurationWithDays(s string, def time.Duration) time.Duration {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return def
		}
		return time.Duration(n) * 24 * time.Hour
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(s, ",") {
		pt := strings.TrimSpace(p)
		if pt != "" {
			parts = append(parts, pt)
		}
	}
	return parts
}
