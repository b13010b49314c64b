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

	Database    DatabaseConfig
	Redis       RedisConfig
	Blob        BlobConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Library     LibraryConfig
	Quizzes     QuizConfig
	Exports     ExportsConfig
	Diagnostics DiagnosticsConfig
	Janitor     JanitorConfig
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

// BlobConfig points at the object store holding uploaded slide files.
// Endpoint and keys may be empty; the server still boots with the local
// filesystem fallback and Diagnostics reports the degraded configuration.
type BlobConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
	LocalDir      string
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

// LibraryConfig tunes the slide library upload/list/delete flows.
type LibraryConfig struct {
	MaxFileSizeBytes   int64
	AllowedMIMEs       []string
	ListRetries        int
	RetryBaseDelay     time.Duration
	BlobDeleteAttempts int
	FacetCacheTTL      time.Duration
}

// QuizConfig governs the read-only quiz catalog.
type QuizConfig struct {
	CacheTTL time.Duration
}

// ExportsConfig toggles the inventory export endpoints.
type ExportsConfig struct {
	Enabled         bool
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// DiagnosticsConfig controls the troubleshooting probe.
type DiagnosticsConfig struct {
	Enabled      bool
	ProbeTimeout time.Duration
}

// JanitorConfig configures the orphaned-blob sweep queue.
type JanitorConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
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

	cfg.Blob = BlobConfig{
		Endpoint:      v.GetString("BLOB_ENDPOINT"),
		AccessKey:     v.GetString("BLOB_ACCESS_KEY"),
		SecretKey:     v.GetString("BLOB_SECRET_KEY"),
		Bucket:        v.GetString("BLOB_BUCKET"),
		UseSSL:        v.GetBool("BLOB_USE_SSL"),
		PublicBaseURL: v.GetString("BLOB_PUBLIC_BASE_URL"),
		LocalDir:      v.GetString("BLOB_LOCAL_DIR"),
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

	maxSlideSize := v.GetInt64("LIBRARY_MAX_FILE_SIZE")
	if maxSlideSize <= 0 {
		maxSlideSize = 10 * 1024 * 1024
	}
	cfg.Library = LibraryConfig{
		MaxFileSizeBytes:   maxSlideSize,
		AllowedMIMEs:       splitAndTrim(v.GetString("LIBRARY_ALLOWED_MIME_TYPES")),
		ListRetries:        v.GetInt("LIBRARY_LIST_RETRIES"),
		RetryBaseDelay:     parseDuration(v.GetString("LIBRARY_RETRY_BASE_DELAY"), time.Second),
		BlobDeleteAttempts: v.GetInt("LIBRARY_BLOB_DELETE_ATTEMPTS"),
		FacetCacheTTL:      parseDuration(v.GetString("LIBRARY_FACET_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Quizzes = QuizConfig{
		CacheTTL: parseDuration(v.GetString("QUIZ_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Exports = ExportsConfig{
		Enabled:         v.GetBool("ENABLE_EXPORTS"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Diagnostics = DiagnosticsConfig{
		Enabled:      v.GetBool("ENABLE_DIAGNOSTICS"),
		ProbeTimeout: parseDuration(v.GetString("DIAGNOSTICS_PROBE_TIMEOUT"), 5*time.Second),
	}

	cfg.Janitor = JanitorConfig{
		Workers:    v.GetInt("JANITOR_WORKERS"),
		MaxRetries: v.GetInt("JANITOR_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JANITOR_RETRY_DELAY"), 5*time.Second),
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
	v.SetDefault("DB_NAME", "studydeck_content")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("BLOB_ENDPOINT", "")
	v.SetDefault("BLOB_ACCESS_KEY", "")
	v.SetDefault("BLOB_SECRET_KEY", "")
	v.SetDefault("BLOB_BUCKET", "studydeck-slides")
	v.SetDefault("BLOB_USE_SSL", false)
	v.SetDefault("BLOB_PUBLIC_BASE_URL", "")
	v.SetDefault("BLOB_LOCAL_DIR", "./slides")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LIBRARY_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("LIBRARY_ALLOWED_MIME_TYPES", "application/pdf,image/jpeg,image/png,image/gif")
	v.SetDefault("LIBRARY_LIST_RETRIES", 2)
	v.SetDefault("LIBRARY_RETRY_BASE_DELAY", "1s")
	v.SetDefault("LIBRARY_BLOB_DELETE_ATTEMPTS", 3)
	v.SetDefault("LIBRARY_FACET_CACHE_TTL", "10m")

	v.SetDefault("QUIZ_CACHE_TTL", "5m")

	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "30m")

	v.SetDefault("ENABLE_DIAGNOSTICS", true)
	v.SetDefault("DIAGNOSTICS_PROBE_TIMEOUT", "5s")

	v.SetDefault("JANITOR_WORKERS", 1)
	v.SetDefault("JANITOR_MAX_RETRIES", 3)
	v.SetDefault("JANITOR_RETRY_DELAY", "5s")
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
