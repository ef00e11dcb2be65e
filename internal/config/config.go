package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pkghttp "github.com/BradenHooton/autopay/pkg/http"
	"github.com/BradenHooton/autopay/pkg/money"
	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Lockout   LockoutConfig
	Breaker   BreakerConfig
	Queue     QueueConfig
	Ledger    LedgerConfig
	Scheduler SchedulerConfig
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
	LockTimeout       time.Duration
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	AllowedOrigins  []string
	TrustedProxies  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret          string
	Issuer             string
	AccessTokenExpiry  time.Duration
	BcryptCost         int
	FailureDelay       time.Duration
	FailureDelayJitter time.Duration
	RateLimitPerMinute int
}

// LockoutConfig controls when repeated credential failures lock an account
type LockoutConfig struct {
	MaxFailures  int
	LockDuration time.Duration
}

// BreakerConfig holds the circuit parameters shared by every operation
// class. Payments use PaymentResetTimeout instead of ResetTimeout.
type BreakerConfig struct {
	Timeout                  time.Duration
	ErrorThresholdPercentage int
	ResetTimeout             time.Duration
	PaymentResetTimeout      time.Duration
	RollingWindow            time.Duration
	MinRequests              int
}

type QueueConfig struct {
	MaxBacklog int // 0 means unbounded
}

type LedgerConfig struct {
	OpeningBalance money.Amount
}

type SchedulerConfig struct {
	Enabled      bool
	Spec         string
	SweepTimeout time.Duration
}

// RedisConfig is optional. An empty Addr disables event publishing.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	StreamMaxLen int64
}

// EmailConfig is optional. An empty FromAddress logs notices instead.
type EmailConfig struct {
	SESRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	openingBalance, err := money.Parse(getEnv("OPENING_BALANCE", "100000.00"))
	if err != nil {
		return nil, fmt.Errorf("invalid OPENING_BALANCE: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "autopay"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			LockTimeout:       getEnvAsDuration("DB_LOCK_TIMEOUT", 5*time.Second),
		},
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Env:             env,
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:  parseAllowedOrigins(env),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			Issuer:             getEnv("JWT_ISSUER", "autopay"),
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
			BcryptCost:         getEnvAsInt("BCRYPT_COST", 14),
			FailureDelay:       getEnvAsDuration("AUTH_FAILURE_DELAY", 500*time.Millisecond),
			FailureDelayJitter: getEnvAsDuration("AUTH_FAILURE_DELAY_JITTER", 100*time.Millisecond),
			RateLimitPerMinute: getEnvAsInt("AUTH_RATE_LIMIT_PER_MINUTE", 20),
		},
		Lockout: LockoutConfig{
			MaxFailures:  getEnvAsInt("LOCKOUT_MAX_FAILURES", 5),
			LockDuration: getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
		},
		Breaker: BreakerConfig{
			Timeout:                  getEnvAsDuration("BREAKER_TIMEOUT", 5*time.Second),
			ErrorThresholdPercentage: getEnvAsInt("BREAKER_ERROR_THRESHOLD_PERCENTAGE", 50),
			ResetTimeout:             getEnvAsDuration("BREAKER_RESET_TIMEOUT", 10*time.Second),
			PaymentResetTimeout:      getEnvAsDuration("BREAKER_PAYMENT_RESET_TIMEOUT", 30*time.Second),
			RollingWindow:            getEnvAsDuration("BREAKER_ROLLING_WINDOW", 10*time.Second),
			MinRequests:              getEnvAsInt("BREAKER_MIN_REQUESTS", 2),
		},
		Queue: QueueConfig{
			MaxBacklog: getEnvAsInt("QUEUE_MAX_BACKLOG", 0),
		},
		Ledger: LedgerConfig{
			OpeningBalance: openingBalance,
		},
		Scheduler: SchedulerConfig{
			Enabled:      getEnvAsBool("SCHEDULER_ENABLED", true),
			Spec:         getEnv("SCHEDULER_SPEC", "@every 1m"),
			SweepTimeout: getEnvAsDuration("SCHEDULER_SWEEP_TIMEOUT", 50*time.Second),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", ""),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			StreamMaxLen: int64(getEnvAsInt("REDIS_STREAM_MAX_LEN", 10000)),
		},
		Email: EmailConfig{
			SESRegion:   getEnv("AWS_SES_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Lockout.MaxFailures < 1 {
		return fmt.Errorf("LOCKOUT_MAX_FAILURES must be at least 1")
	}
	if c.Lockout.LockDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive")
	}
	if c.Breaker.ErrorThresholdPercentage < 1 || c.Breaker.ErrorThresholdPercentage > 100 {
		return fmt.Errorf("BREAKER_ERROR_THRESHOLD_PERCENTAGE must be between 1 and 100")
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT must be positive")
	}
	if _, err := pkghttp.NewIPConfig(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	if c.Ledger.OpeningBalance < 0 {
		return fmt.Errorf("OPENING_BALANCE cannot be negative")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
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

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://localhost:3001",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
		"http://127.0.0.1:3001",
	}
}
