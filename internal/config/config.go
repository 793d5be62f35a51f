package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// Payment gateway (Asaas-compatible provider).
	GatewayBaseURL        string
	GatewayTimeoutSeconds int
	GatewayMaxAttempts    int
	GatewayRetryBaseMS    int

	// Outbound notification dispatch service.
	NotifierBaseURL        string
	NotifierEmailToken     string
	NotifierWhatsappToken  string
	NotifierTimeoutSeconds int

	// Tenant-level fallbacks when business_rules rows are incomplete.
	DefaultChannel              string
	DefaultSuspensionDays       int
	DefaultFrequencyMinutes     int
	NotificationLogPageMax      int
	PlanSyncDefaultBatchSize    int
	SchedulerIntervalMinutes    int
	SchedulerEnabled            bool
	SchedulerLockTTLSeconds     int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Per-tenant webhook throttle; disabled unless redis is configured.
	WebhookRatePerSecond float64
	WebhookRateBurst     int

	SeedDemoData bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "beneflow"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "beneflow"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		GatewayBaseURL:        strings.TrimRight(getenv("GATEWAY_BASE_URL", "https://api.asaas.com/v3"), "/"),
		GatewayTimeoutSeconds: getenvInt("GATEWAY_TIMEOUT_SECONDS", 8),
		GatewayMaxAttempts:    getenvInt("GATEWAY_MAX_ATTEMPTS", 3),
		GatewayRetryBaseMS:    getenvInt("GATEWAY_RETRY_BASE_MS", 500),

		NotifierBaseURL:        strings.TrimRight(getenv("NOTIFIER_BASE_URL", ""), "/"),
		NotifierEmailToken:     strings.TrimSpace(getenv("NOTIFIER_EMAIL_TOKEN", "")),
		NotifierWhatsappToken:  strings.TrimSpace(getenv("NOTIFIER_WHATSAPP_TOKEN", "")),
		NotifierTimeoutSeconds: getenvInt("NOTIFIER_TIMEOUT_SECONDS", 10),

		DefaultChannel:           getenv("NOTIFICATION_DEFAULT_CHANNEL", "whatsapp"),
		DefaultSuspensionDays:    getenvInt("SUSPENSION_THRESHOLD_DAYS", 90),
		DefaultFrequencyMinutes:  getenvInt("NOTIFICATION_FREQUENCY_MINUTES", 1440),
		NotificationLogPageMax:   getenvInt("NOTIFICATION_LOG_PAGE_MAX", 200),
		PlanSyncDefaultBatchSize: getenvInt("PLAN_SYNC_BATCH_SIZE", 500),
		SchedulerIntervalMinutes: getenvInt("SCHEDULER_INTERVAL_MINUTES", 5),
		SchedulerEnabled:         getenvBool("SCHEDULER_ENABLED", true),
		SchedulerLockTTLSeconds:  getenvInt("SCHEDULER_LOCK_TTL_SECONDS", 300),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		WebhookRatePerSecond: getenvFloat("WEBHOOK_RATE_PER_SECOND", 10),
		WebhookRateBurst:     getenvInt("WEBHOOK_RATE_BURST", 20),

		SeedDemoData: getenvBool("SEED_DEMO_DATA", false),
	}
}

// Module provides Config to the fx graph.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewNotifyConfigHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
