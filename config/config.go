package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Site     SiteConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Stripe   StripeConfig
	Email    EmailConfig
	Worker   WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// SiteConfig holds the public frontend location used in redirect and email links.
type SiteConfig struct {
	URL string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the bucket for profile documents (avatars, CVs).
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	DocumentsBucket      string
	PresignExpireMinutes int
}

// StripeConfig holds the payment vendor keys and price tiers.
type StripeConfig struct {
	SecretKey             string
	WebhookSecret         string
	PaymentsWebhookSecret string
	PriceMonthly          string
	PriceYearly           string
	TrialDays             int
	Currency              string
}

// Prices maps plan names to vendor price IDs. Plans without a configured price are omitted.
func (c StripeConfig) Prices() map[string]string {
	out := make(map[string]string, 2)
	if c.PriceMonthly != "" {
		out["monthly"] = c.PriceMonthly
	}
	if c.PriceYearly != "" {
		out["yearly"] = c.PriceYearly
	}
	return out
}

// EmailConfig for the Resend email API.
type EmailConfig struct {
	BaseURL     string
	APIKey      string // empty = log emails instead of sending
	FromAddress string
	FromName    string
}

// WorkerConfig controls the in-process email worker of the API server.
type WorkerConfig struct {
	InProcess bool
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	webhookSecret := getEnv("STRIPE_WEBHOOK_SECRET", "")
	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		},
		Site: SiteConfig{
			URL: strings.TrimRight(getEnv("SITE_URL", "http://localhost:5173"), "/"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "extrabeam"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "eu-west-3"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			DocumentsBucket:      getEnv("AWS_S3_DOCUMENTS_BUCKET", "extrabeam-documents"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Stripe: StripeConfig{
			SecretKey:             getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:         webhookSecret,
			PaymentsWebhookSecret: getEnv("STRIPE_PAYMENTS_WEBHOOK_SECRET", webhookSecret),
			PriceMonthly:          getEnv("STRIPE_PRICE_MONTHLY", ""),
			PriceYearly:           getEnv("STRIPE_PRICE_YEARLY", ""),
			TrialDays:             getEnvInt("STRIPE_TRIAL_DAYS", 0),
			Currency:              strings.ToLower(getEnv("STRIPE_CURRENCY", "eur")),
		},
		Email: EmailConfig{
			BaseURL:     getEnv("EMAIL_API_URL", "https://api.resend.com/"),
			APIKey:      getEnv("EMAIL_API_KEY", ""),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "noreply@extrabeam.fr"),
			FromName:    getEnv("EMAIL_FROM_NAME", "ExtraBeam"),
		},
		Worker: WorkerConfig{
			InProcess: getEnvBool("EMAIL_WORKER_IN_PROCESS", true),
		},
	}
	if cfg.Server.Port == "" {
		return nil, fmt.Errorf("PORT must not be empty")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
