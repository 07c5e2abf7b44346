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
	Payments PaymentsConfig
	Cleanup  CleanupConfig
	Calendar CalendarConfig
	Realtime RealtimeConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
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
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PaymentsConfig points at the external checkout processor.
type PaymentsConfig struct {
	APIBaseURL     string
	SecretKey      string
	SuccessURL     string
	CancelURL      string
	RequestTimeout time.Duration
	ReconcileRetry time.Duration
}

// CleanupConfig tunes the cancellation sweep.
type CleanupConfig struct {
	VisibilityWindow time.Duration
	EventRetention   time.Duration
	CronSpec         string
	Enabled          bool
}

// CalendarConfig governs the class session read model cache.
type CalendarConfig struct {
	CacheTTL        time.Duration
	DefaultPageSize int
}

// RealtimeConfig names the Redis channels the frontend subscribes to.
type RealtimeConfig struct {
	Enabled             bool
	SessionsChannel     string
	ReservationsChannel string
	BookingsChannel     string
}

// ExportsConfig controls admin report exports.
type ExportsConfig struct {
	Enabled         bool
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	FileRetention   time.Duration
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
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Payments = PaymentsConfig{
		APIBaseURL:     v.GetString("PAYMENTS_API_BASE_URL"),
		SecretKey:      v.GetString("PAYMENTS_SECRET_KEY"),
		SuccessURL:     v.GetString("PAYMENTS_SUCCESS_URL"),
		CancelURL:      v.GetString("PAYMENTS_CANCEL_URL"),
		RequestTimeout: parseDuration(v.GetString("PAYMENTS_REQUEST_TIMEOUT"), 15*time.Second),
		ReconcileRetry: parseDuration(v.GetString("PAYMENTS_RECONCILE_RETRY"), 30*time.Second),
	}

	cfg.Cleanup = CleanupConfig{
		VisibilityWindow: parseDuration(v.GetString("CLEANUP_VISIBILITY_WINDOW"), 24*time.Hour),
		EventRetention:   parseDuration(v.GetString("CLEANUP_EVENT_RETENTION"), 90*24*time.Hour),
		CronSpec:         v.GetString("CLEANUP_CRON_SPEC"),
		Enabled:          v.GetBool("CLEANUP_ENABLED"),
	}

	cfg.Calendar = CalendarConfig{
		CacheTTL:        parseDuration(v.GetString("CALENDAR_CACHE_TTL"), 5*time.Minute),
		DefaultPageSize: v.GetInt("CALENDAR_DEFAULT_PAGE_SIZE"),
	}

	cfg.Realtime = RealtimeConfig{
		Enabled:             v.GetBool("REALTIME_ENABLED"),
		SessionsChannel:     v.GetString("REALTIME_SESSIONS_CHANNEL"),
		ReservationsChannel: v.GetString("REALTIME_RESERVATIONS_CHANNEL"),
		BookingsChannel:     v.GetString("REALTIME_BOOKINGS_CHANNEL"),
	}

	cfg.Exports = ExportsConfig{
		Enabled:         v.GetBool("ENABLE_EXPORTS"),
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		FileRetention:   parseDuration(v.GetString("EXPORTS_FILE_RETENTION"), 7*24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "aqua_dor_connect")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PAYMENTS_API_BASE_URL", "https://api.checkout.example.com")
	v.SetDefault("PAYMENTS_SECRET_KEY", "dev_payments_secret")
	v.SetDefault("PAYMENTS_SUCCESS_URL", "http://localhost:3000/payment-success")
	v.SetDefault("PAYMENTS_CANCEL_URL", "http://localhost:3000/payment-cancelled")
	v.SetDefault("PAYMENTS_REQUEST_TIMEOUT", "15s")
	v.SetDefault("PAYMENTS_RECONCILE_RETRY", "30s")

	v.SetDefault("CLEANUP_VISIBILITY_WINDOW", "24h")
	v.SetDefault("CLEANUP_EVENT_RETENTION", "2160h")
	v.SetDefault("CLEANUP_CRON_SPEC", "0 * * * *")
	v.SetDefault("CLEANUP_ENABLED", true)

	v.SetDefault("CALENDAR_CACHE_TTL", "5m")
	v.SetDefault("CALENDAR_DEFAULT_PAGE_SIZE", 50)

	v.SetDefault("REALTIME_ENABLED", true)
	v.SetDefault("REALTIME_SESSIONS_CHANNEL", "class_sessions")
	v.SetDefault("REALTIME_RESERVATIONS_CHANNEL", "session_reservations")
	v.SetDefault("REALTIME_BOOKINGS_CHANNEL", "bookings")

	v.SetDefault("ENABLE_EXPORTS", false)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_FILE_RETENTION", "168h")
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
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
