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

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Hashing   HashingConfig
	Tokens    TokensConfig
	Mail      MailConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Log       LogConfig
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

// JWTConfig governs access token signing and lifetime.
type JWTConfig struct {
	Secret           string
	AccessExpiration time.Duration
}

// HashingConfig carries argon2id parameters for password and token hashing.
type HashingConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// TokensConfig sets lifetimes for the storage-backed token flows.
type TokensConfig struct {
	RefreshExpiration      time.Duration
	ResetExpiration        time.Duration
	VerificationExpiration time.Duration
}

// MailConfig configures the Mailjet notifier and outbound links.
type MailConfig struct {
	APIKey          string
	APISecret       string
	FromEmail       string
	FromName        string
	FrontendBaseURL string
}

// RateLimitConfig bounds requests per client IP on auth endpoints.
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
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
		Secret:           v.GetString("JWT_SECRET"),
		AccessExpiration: parseDuration(v.GetString("ACCESS_TOKEN_EXPIRATION"), 15*time.Minute),
	}

	cfg.Hashing = HashingConfig{
		Memory:      v.GetUint32("ARGON2_MEMORY_KB"),
		Time:        v.GetUint32("ARGON2_TIME"),
		Parallelism: uint8(v.GetUint("ARGON2_PARALLELISM")),
		SaltLength:  v.GetUint32("ARGON2_SALT_LENGTH"),
		KeyLength:   v.GetUint32("ARGON2_KEY_LENGTH"),
	}

	cfg.Tokens = TokensConfig{
		RefreshExpiration:      parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 720*time.Hour),
		ResetExpiration:        parseDuration(v.GetString("RESET_TOKEN_EXPIRATION"), 30*time.Minute),
		VerificationExpiration: parseDuration(v.GetString("VERIFICATION_TOKEN_EXPIRATION"), 24*time.Hour),
	}

	cfg.Mail = MailConfig{
		APIKey:          v.GetString("MAILJET_API_KEY"),
		APISecret:       v.GetString("MAILJET_API_SECRET"),
		FromEmail:       v.GetString("MAIL_FROM_EMAIL"),
		FromName:        v.GetString("MAIL_FROM_NAME"),
		FrontendBaseURL: v.GetString("FRONTEND_BASE_URL"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:  v.GetBool("RATE_LIMIT_ENABLED"),
		Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
		Window:   parseDuration(v.GetString("RATE_LIMIT_WINDOW"), time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
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
	v.SetDefault("DB_NAME", "giftwise")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("ACCESS_TOKEN_EXPIRATION", "15m")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "720h")
	v.SetDefault("RESET_TOKEN_EXPIRATION", "30m")
	v.SetDefault("VERIFICATION_TOKEN_EXPIRATION", "24h")

	v.SetDefault("ARGON2_MEMORY_KB", 65536)
	v.SetDefault("ARGON2_TIME", 3)
	v.SetDefault("ARGON2_PARALLELISM", 2)
	v.SetDefault("ARGON2_SALT_LENGTH", 16)
	v.SetDefault("ARGON2_KEY_LENGTH", 32)

	v.SetDefault("MAILJET_API_KEY", "")
	v.SetDefault("MAILJET_API_SECRET", "")
	v.SetDefault("MAIL_FROM_EMAIL", "noreply@giftwise.app")
	v.SetDefault("MAIL_FROM_NAME", "Giftwise")
	v.SetDefault("FRONTEND_BASE_URL", "http://localhost:5173")

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_REQUESTS", 60)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
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
