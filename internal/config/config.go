package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"thinqscribe-payments/internal/domain"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout int
	Timeout     int
	Prefix      string
}

type S3Config struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
	URLTTL          time.Duration
}

type StorageConfig struct {
	Dir          string
	PublicPrefix string
	ExternalURL  string
}

type GeolocationConfig struct {
	Providers []string
	Timeout   time.Duration
	CacheTTL  time.Duration
}

type PaystackConfig struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
}

type StripeConfig struct {
	BaseURL    string
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

type LoggingConfig struct {
	Level  string
	Format string // console|json
}

type AppConfig struct {
	Port        string
	Postgres    PostgresConfig
	Redis       RedisConfig
	S3          S3Config
	Storage     StorageConfig
	Geolocation GeolocationConfig
	Paystack    PaystackConfig
	Stripe      StripeConfig
	Logging     LoggingConfig
	Policy      domain.Policy
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int value %q: %v", s, err)
	}
	return i
}

func mustBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		log.Fatalf("invalid bool value %q: %v", s, err)
	}
	return b
}

func mustFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Fatalf("invalid float value %q: %v", s, err)
	}
	return f
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("invalid duration value %q: %v", s, err)
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Load() AppConfig {
	return AppConfig{
		Port: getenv("APP_PORT", "8010"),
		Postgres: PostgresConfig{
			Host:     getenv("PG_HOST", "127.0.0.1"),
			Port:     mustAtoi(getenv("PG_PORT", "5432")),
			User:     getenv("PG_USER", "thinqscribe"),
			Password: getenv("PG_PASSWORD", "thinqscribe"),
			DBName:   getenv("PG_DB", "thinqscribe"),
			SSLMode:  getenv("PG_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:        getenv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    getenv("REDIS_PASSWORD", ""),
			DB:          mustAtoi(getenv("REDIS_DB", "0")),
			MaxRetries:  mustAtoi(getenv("REDIS_MAX_RETRIES", "5")),
			DialTimeout: mustAtoi(getenv("REDIS_DIAL_TIMEOUT", "10")),
			Timeout:     mustAtoi(getenv("REDIS_TIMEOUT", "5")),
			Prefix:      getenv("REDIS_PREFIX", "thinqscribe:"),
		},
		S3: S3Config{
			Enabled:         mustBool(getenv("S3_ENABLED", "false")),
			Endpoint:        getenv("S3_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getenv("S3_ACCESS_KEY", "minio"),
			SecretAccessKey: getenv("S3_SECRET_KEY", "minio123"),
			Bucket:          getenv("S3_BUCKET", "statements"),
			Region:          getenv("S3_REGION", "us-east-1"),
			UseSSL:          mustBool(getenv("S3_USE_SSL", "false")),
			Prefix:          getenv("S3_PREFIX", ""),
			URLTTL:          mustDuration(getenv("S3_URL_TTL", "30m")),
		},
		Storage: StorageConfig{
			Dir:          getenv("STORAGE_DIR", "./statements"),
			PublicPrefix: getenv("STORAGE_PUBLIC_PREFIX", "/files"),
			ExternalURL:  getenv("EXTERNAL_URL", ""),
		},
		Geolocation: GeolocationConfig{
			Providers: splitCSV(getenv("GEO_PROVIDERS", "https://ipapi.co/{ip}/json/,https://ipinfo.io/{ip}/json")),
			Timeout:   mustDuration(getenv("GEO_TIMEOUT", "5s")),
			CacheTTL:  mustDuration(getenv("GEO_CACHE_TTL", "1h")),
		},
		Paystack: PaystackConfig{
			BaseURL:     getenv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			SecretKey:   os.Getenv("PAYSTACK_SECRET_KEY"),
			CallbackURL: getenv("PAYSTACK_CALLBACK_URL", "https://thinqscribe.com/payment/success"),
		},
		Stripe: StripeConfig{
			BaseURL:    getenv("STRIPE_BASE_URL", "https://api.stripe.com"),
			SecretKey:  os.Getenv("STRIPE_SECRET_KEY"),
			SuccessURL: getenv("STRIPE_SUCCESS_URL", "https://thinqscribe.com/payment/success?session_id={CHECKOUT_SESSION_ID}"),
			CancelURL:  getenv("STRIPE_CANCEL_URL", "https://thinqscribe.com/payment/cancelled"),
		},
		Logging: LoggingConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "console"),
		},
		Policy: loadPolicy(),
	}
}

// loadPolicy starts from the domain defaults so every constant has exactly
// one literal in the codebase.
func loadPolicy() domain.Policy {
	p := domain.DefaultPolicy()
	if v := os.Getenv("POLICY_NATIVE_AMOUNT_THRESHOLD"); v != "" {
		p.NativeAmountThreshold = mustFloat(v)
	}
	if v := os.Getenv("POLICY_USD_TO_NGN_RATE"); v != "" {
		p.UsdToNgnRate = mustFloat(v)
	}
	if v := os.Getenv("POLICY_MINIMUM_CHARGE"); v != "" {
		p.MinimumCharge = mustFloat(v)
	}
	if v := os.Getenv("POLICY_INSTALLMENT_TOLERANCE"); v != "" {
		p.InstallmentTolerance = mustFloat(v)
	}
	if v := os.Getenv("POLICY_DASHBOARD_REFRESH"); v != "" {
		p.DashboardRefreshInterval = mustDuration(v)
	}
	if v := os.Getenv("POLICY_VERIFY_MAX_ATTEMPTS"); v != "" {
		p.VerifyMaxAttempts = mustAtoi(v)
	}
	if v := os.Getenv("POLICY_VERIFY_INITIAL_DELAY"); v != "" {
		p.VerifyInitialDelay = mustDuration(v)
	}
	if v := os.Getenv("POLICY_VERIFY_MAX_DELAY"); v != "" {
		p.VerifyMaxDelay = mustDuration(v)
	}
	return p
}
