package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Email     EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret           string
	AccessTokenExpiry   time.Duration
	TimingDelayBaseMs   int
	TimingDelayRandomMs int
	Argon2MemoryKB      uint32
	Argon2Time          uint32
	Argon2Parallelism   uint8
}

// LockoutConfig drives the login attempt tracker
type LockoutConfig struct {
	Store            string // "memory" or "redis"
	MaxAttempts      int
	MaxAttemptsPerIP int
	Duration         time.Duration
	SweepInterval    time.Duration
	StaleAfter       time.Duration
}

// RateLimitConfig holds per-origin request caps for the public auth endpoints
type RateLimitConfig struct {
	LoginRequests  int
	SignupRequests int
	Window         time.Duration
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// EmailConfig configures lockout notices. Empty LockoutNotifyFrom disables them.
type EmailConfig struct {
	AWSRegion         string
	LockoutNotifyFrom string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "prok"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:           jwtSecret,
			AccessTokenExpiry:   getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
			TimingDelayBaseMs:   getEnvAsInt("TIMING_DELAY_BASE_MS", 200),
			TimingDelayRandomMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 50),
			Argon2MemoryKB:      uint32(getEnvAsInt("ARGON2_MEMORY_KB", 19*1024)),
			Argon2Time:          uint32(getEnvAsInt("ARGON2_TIME", 2)),
			Argon2Parallelism:   uint8(getEnvAsInt("ARGON2_PARALLELISM", 1)),
		},
		Lockout: LockoutConfig{
			Store:            strings.ToLower(getEnv("LOCKOUT_STORE", "memory")),
			MaxAttempts:      getEnvAsInt("LOCKOUT_MAX_ATTEMPTS", 5),
			MaxAttemptsPerIP: getEnvAsInt("LOCKOUT_MAX_ATTEMPTS_PER_IP", 20),
			Duration:         getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			SweepInterval:    getEnvAsDuration("LOCKOUT_SWEEP_INTERVAL", 5*time.Minute),
			StaleAfter:       getEnvAsDuration("LOCKOUT_STALE_AFTER", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			LoginRequests:  getEnvAsInt("RATE_LIMIT_LOGIN", 10),
			SignupRequests: getEnvAsInt("RATE_LIMIT_SIGNUP", 3),
			Window:         getEnvAsDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "prok:lockout"),
		},
		Email: EmailConfig{
			AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
			LockoutNotifyFrom: getEnv("LOCKOUT_NOTIFY_FROM", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Lockout.MaxAttempts < 1 {
		return fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be at least 1")
	}
	if c.Lockout.MaxAttemptsPerIP < c.Lockout.MaxAttempts {
		return fmt.Errorf("LOCKOUT_MAX_ATTEMPTS_PER_IP must be >= LOCKOUT_MAX_ATTEMPTS")
	}
	if c.Lockout.Duration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive")
	}

	switch c.Lockout.Store {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when LOCKOUT_STORE=redis")
		}
	default:
		return fmt.Errorf("LOCKOUT_STORE must be memory or redis (got %q)", c.Lockout.Store)
	}

	if c.RateLimit.LoginRequests < 1 || c.RateLimit.SignupRequests < 1 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.RateLimit.SignupRequests > c.RateLimit.LoginRequests {
		return fmt.Errorf("RATE_LIMIT_SIGNUP must not exceed RATE_LIMIT_LOGIN")
	}

	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example", "jwt-secret-key", "dev-secret-key",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return []string{}
	}
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if origins := getEnvAsList("ALLOWED_ORIGINS"); len(origins) > 0 {
		return origins
	}
	if env == "production" {
		return []string{}
	}

	// Development: the Vite frontend
	return []string{
		"http://localhost:5173",
		"http://127.0.0.1:5173",
		"http://localhost:3000",
	}
}
