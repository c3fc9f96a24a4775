package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	PublicURL   string

	OTLPEndpoint string

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
	MigrateOnStart    bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SecretsKey unseals organization Stripe secrets stored with the enc:v1: prefix.
	SecretsKey string

	Webhook   WebhookConfig
	Bootstrap BootstrapConfig
}

type WebhookConfig struct {
	TenantMetadataKey string
	ToleranceSeconds  int
	LockTTLSeconds    int
	MaxBodyBytes      int64
}

// BootstrapConfig seeds a single organization on start for single-tenant installs.
type BootstrapConfig struct {
	OrgName             string
	StripeSecretKey     string
	StripeWebhookSecret string
}

func (b BootstrapConfig) Enabled() bool {
	return b.OrgName != "" && b.StripeSecretKey != "" && b.StripeWebhookSecret != ""
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "stripesync"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		PublicURL:         strings.TrimRight(getenv("PUBLIC_URL", "http://localhost:3000"), "/"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		MigrateOnStart:    getenvBool("MIGRATE_ON_START", true),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("REDIS_DB", 0),
		SecretsKey:        strings.TrimSpace(getenv("SECRETS_KEY", "")),
		Webhook: WebhookConfig{
			TenantMetadataKey: strings.TrimSpace(getenv("WEBHOOK_TENANT_METADATA_KEY", "organization_id")),
			ToleranceSeconds:  getenvInt("WEBHOOK_TOLERANCE_SECONDS", 300),
			LockTTLSeconds:    getenvInt("WEBHOOK_LOCK_TTL_SECONDS", 30),
			MaxBodyBytes:      int64(getenvInt("WEBHOOK_MAX_BODY_BYTES", 1<<20)),
		},
		Bootstrap: BootstrapConfig{
			OrgName:             strings.TrimSpace(getenv("BOOTSTRAP_ORG_NAME", "")),
			StripeSecretKey:     strings.TrimSpace(getenv("BOOTSTRAP_STRIPE_SECRET_KEY", "")),
			StripeWebhookSecret: strings.TrimSpace(getenv("BOOTSTRAP_STRIPE_WEBHOOK_SECRET", "")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

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
