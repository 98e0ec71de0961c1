package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/joho/godotenv"
)

// Ledger backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Lockout   LockoutConfig
	Notice    NoticeConfig
	Hardening HardeningConfig
	Bootstrap BootstrapConfig
	Timing    TimingConfig
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	TrustedProxies  []string
	LoginRatePerMin int // per-IP request throttle on the login endpoint, 0 disables
	ProductName     string
}

type DatabaseConfig struct {
	Enabled           bool
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
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

type LockoutConfig struct {
	Backend         string
	MaxAttempts     int
	LockoutDuration time.Duration
	FailureWindow   time.Duration
	CleanupInterval time.Duration
}

type NoticeConfig struct {
	Secret     string
	CookieName string
	Secure     bool
	SameSite   string
}

type HardeningConfig struct {
	Features        []string
	HiddenEndpoints []string
}

type BootstrapConfig struct {
	Username string
	Password string
}

// TimingConfig pads failed credential checks
type TimingConfig struct {
	BaseDelay   time.Duration
	RandomDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Env:             env,
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 10*time.Second),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES", nil),
			LoginRatePerMin: getEnvAsInt("LOGIN_RATE_PER_MINUTE", 20),
			ProductName:     getEnv("PRODUCT_NAME", "bastion"),
		},
		Database: DatabaseConfig{
			Enabled:           getEnvAsBool("DB_ENABLED", false),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
			Prefix:   getEnv("REDIS_KEY_PREFIX", "bastion:"),
		},
		Lockout: LockoutConfig{
			Backend:         strings.ToLower(getEnv("LOCKOUT_BACKEND", BackendMemory)),
			MaxAttempts:     getEnvAsInt("LOCKOUT_MAX_ATTEMPTS", 3),
			LockoutDuration: getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
			FailureWindow:   getEnvAsDuration("LOCKOUT_FAILURE_WINDOW", 60*time.Minute),
			CleanupInterval: getEnvAsDuration("LOCKOUT_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Notice: NoticeConfig{
			Secret:     getEnv("NOTICE_SECRET", ""),
			CookieName: getEnv("NOTICE_COOKIE_NAME", "login_lockout_notice"),
			Secure:     getEnvAsBool("NOTICE_COOKIE_SECURE", env == "production"),
			SameSite:   getEnv("NOTICE_COOKIE_SAMESITE", "lax"),
		},
		Hardening: HardeningConfig{
			Features:        getEnvAsList("HARDENING_FEATURES", []string{"login_lockout"}),
			HiddenEndpoints: getEnvAsList("HIDDEN_REST_ENDPOINTS", []string{"/wp-json/wp/v2/users", "/api/users"}),
		},
		Bootstrap: BootstrapConfig{
			Username: getEnv("BOOTSTRAP_USERNAME", ""),
			Password: getEnv("BOOTSTRAP_PASSWORD", ""),
		},
		Timing: TimingConfig{
			BaseDelay:   getEnvAsDuration("LOGIN_DELAY_BASE", 100*time.Millisecond),
			RandomDelay: getEnvAsDuration("LOGIN_DELAY_JITTER", 50*time.Millisecond),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Lockout.MaxAttempts < 1 {
		return fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be at least 1 (got %d)", c.Lockout.MaxAttempts)
	}
	if c.Lockout.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive")
	}
	if c.Lockout.FailureWindow <= 0 {
		return fmt.Errorf("LOCKOUT_FAILURE_WINDOW must be positive")
	}

	switch c.Lockout.Backend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if !c.Database.Enabled {
			return fmt.Errorf("LOCKOUT_BACKEND=postgres requires DB_ENABLED=true")
		}
	default:
		return fmt.Errorf("unknown LOCKOUT_BACKEND %q", c.Lockout.Backend)
	}

	if c.Timing.BaseDelay < 0 || c.Timing.RandomDelay < 0 {
		return fmt.Errorf("LOGIN_DELAY_BASE and LOGIN_DELAY_JITTER cannot be negative")
	}

	if c.Database.Enabled && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required when DB_ENABLED=true")
	}

	return validateNoticeSecret(c.Notice.Secret, c.Server.Env)
}

// validateNoticeSecret enforces minimum strength for the lockout notice signing key
func validateNoticeSecret(secret, env string) error {
	if secret == "" {
		if env == "production" {
			return fmt.Errorf("NOTICE_SECRET is required in production")
		}
		// Development falls back to a per-process random key
		return nil
	}

	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("NOTICE_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("NOTICE_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// Policy converts the lockout settings into the gate's policy
func (c LockoutConfig) Policy() models.LockoutPolicy {
	return models.LockoutPolicy{
		MaxAttempts:     c.MaxAttempts,
		LockoutDuration: c.LockoutDuration,
		FailureWindow:   c.FailureWindow,
	}
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
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}

	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
