package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Stripe   StripeConfig
	Zoom     ZoomConfig
	Notifier NotifierConfig
	Booking  BookingConfig
}

type DatabaseConfig struct {
	URL          string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StripeConfig holds card-processor credentials and call tuning.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	CallTimeout   time.Duration
}

// ZoomConfig holds video-provider credentials and call tuning.
type ZoomConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
	CallTimeout  time.Duration
}

// NotifierConfig holds outbound-notifier credentials and template link bases.
type NotifierConfig struct {
	APIKey            string
	BaseURL           string
	SigninURL         string
	ResetPasswordURL  string
	CallTimeout       time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// BookingConfig governs the booking core: platform fee, booking window and slot cache.
type BookingConfig struct {
	PlatformFeeBPS int
	WindowDays     int
	MinLeadTime    time.Duration
	SlotCacheTTL   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		URL:          v.GetString("DB_URL"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Stripe = StripeConfig{
		SecretKey:     v.GetString("CP_SECRET_KEY"),
		WebhookSecret: v.GetString("CP_WEBHOOK_SECRET"),
		CallTimeout:   parseDuration(v.GetString("CP_CALL_TIMEOUT"), 15*time.Second),
	}

	cfg.Zoom = ZoomConfig{
		AccountID:    v.GetString("VP_ACCOUNT_ID"),
		ClientID:     v.GetString("VP_CLIENT_ID"),
		ClientSecret: v.GetString("VP_CLIENT_SECRET"),
		BaseURL:      v.GetString("VP_BASE_URL"),
		TokenURL:     v.GetString("VP_TOKEN_URL"),
		CallTimeout:  parseDuration(v.GetString("VP_CALL_TIMEOUT"), 8*time.Second),
	}

	cfg.Notifier = NotifierConfig{
		APIKey:            v.GetString("ON_API_KEY"),
		BaseURL:           v.GetString("ON_BASE_URL"),
		SigninURL:         v.GetString("BASE_URL_SIGNIN"),
		ResetPasswordURL:  v.GetString("BASE_URL_RESET_PASSWORD"),
		CallTimeout:       parseDuration(v.GetString("ON_CALL_TIMEOUT"), 5*time.Second),
		WorkerConcurrency: v.GetInt("ON_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("ON_WORKER_RETRIES"),
	}

	cfg.Booking = BookingConfig{
		PlatformFeeBPS: v.GetInt("PLATFORM_FEE_BPS"),
		WindowDays:     v.GetInt("BOOKING_WINDOW_DAYS"),
		MinLeadTime:    parseDuration(v.GetString("BOOKING_MIN_LEAD"), 15*time.Minute),
		SlotCacheTTL:   parseDuration(v.GetString("SLOT_CACHE_TTL"), 30*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_URL", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "verbalink")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CP_CALL_TIMEOUT", "15s")

	v.SetDefault("VP_BASE_URL", "https://api.zoom.us/v2")
	v.SetDefault("VP_TOKEN_URL", "https://zoom.us/oauth/token")
	v.SetDefault("VP_CALL_TIMEOUT", "8s")

	v.SetDefault("ON_BASE_URL", "https://api.sendgrid.com/v3")
	v.SetDefault("ON_CALL_TIMEOUT", "5s")
	v.SetDefault("ON_WORKER_CONCURRENCY", 2)
	v.SetDefault("ON_WORKER_RETRIES", 3)

	v.SetDefault("PLATFORM_FEE_BPS", 500)
	v.SetDefault("BOOKING_WINDOW_DAYS", 90)
	v.SetDefault("BOOKING_MIN_LEAD", "15m")
	v.SetDefault("SLOT_CACHE_TTL", "30s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
