package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Lifecycle    LifecycleConfig
	Scheduler    SchedulerConfig
	Portal       PortalConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	ClientKeyHash         string
	AdminIDs              []string
}

// LifecycleConfig tunes the submission path. The validity window itself is fixed.
type LifecycleConfig struct {
	SubmissionTimeoutSeconds int
	SubmissionLockTTLSeconds int
}

// SchedulerConfig drives the background notice and renewal jobs.
type SchedulerConfig struct {
	Enabled                   bool
	NotificationIntervalMins  int
	NoticeWindowHours         int
	RenewalIntervalHours      int
	RenewalLeadWindowHours    int
	ItemTimeoutSeconds        int
	Concurrency               int
	RunOnStart                bool
	SkipNoticeForAutoRenewing bool
}

// PortalConfig points the submission executor at the parking portal.
type PortalConfig struct {
	URL              string
	RegistrationCode string
	DryRun           bool
	UserAgent        string
}

// NotificationConfig holds notifier endpoints.
type NotificationConfig struct {
	WebhookURL            string
	WebhookTimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "guestpass-service"),
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 150),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			ClientKeyHash:         os.Getenv("AUTH_CLIENT_KEY_HASH"),
			AdminIDs:              getEnvAsList("AUTH_ADMIN_IDS"),
		},
		Lifecycle: LifecycleConfig{
			SubmissionTimeoutSeconds: getEnvAsInt("SUBMISSION_TIMEOUT_SECONDS", 120),
			SubmissionLockTTLSeconds: getEnvAsInt("SUBMISSION_LOCK_TTL_SECONDS", 300),
		},
		Scheduler: SchedulerConfig{
			Enabled:                   getEnvAsBool("SCHEDULER_ENABLED", true),
			NotificationIntervalMins:  getEnvAsInt("NOTIFICATION_INTERVAL_MINUTES", 60),
			NoticeWindowHours:         getEnvAsInt("NOTIFICATION_HOURS_BEFORE_EXPIRY", 2),
			RenewalIntervalHours:      getEnvAsInt("AUTO_REREGISTER_INTERVAL_HOURS", 22),
			RenewalLeadWindowHours:    getEnvAsInt("AUTO_REREGISTER_HOURS_BEFORE_EXPIRY", 2),
			ItemTimeoutSeconds:        getEnvAsInt("SCHEDULER_ITEM_TIMEOUT_SECONDS", 180),
			Concurrency:               getEnvAsInt("SCHEDULER_CONCURRENCY", 1),
			RunOnStart:                getEnvAsBool("SCHEDULER_RUN_ON_START", false),
			SkipNoticeForAutoRenewing: getEnvAsBool("NOTIFY_SKIP_AUTO_RENEWING", true),
		},
		Portal: PortalConfig{
			URL:              getEnv("PORTAL_URL", "https://www.parkingpermitsofamerica.com/PermitRegistration.aspx"),
			RegistrationCode: getEnv("PORTAL_REGISTRATION_CODE", "MAVP"),
			DryRun:           getEnvAsBool("PORTAL_DRY_RUN", env == "development"),
			UserAgent:        getEnv("PORTAL_USER_AGENT", "guestpass-service/1.0"),
		},
		Notification: NotificationConfig{
			WebhookURL:            getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeoutSeconds: getEnvAsInt("NOTIFY_WEBHOOK_TIMEOUT_SECONDS", 10),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects windows and intervals the scheduler cannot honour.
func (c *Config) Validate() error {
	s := c.Scheduler
	switch {
	case s.NotificationIntervalMins <= 0:
		return errors.New("NOTIFICATION_INTERVAL_MINUTES must be positive")
	case s.NoticeWindowHours <= 0:
		return errors.New("NOTIFICATION_HOURS_BEFORE_EXPIRY must be positive")
	case s.RenewalIntervalHours <= 0:
		return errors.New("AUTO_REREGISTER_INTERVAL_HOURS must be positive")
	case s.RenewalLeadWindowHours <= 0:
		return errors.New("AUTO_REREGISTER_HOURS_BEFORE_EXPIRY must be positive")
	case s.RenewalIntervalHours >= 24:
		return fmt.Errorf("AUTO_REREGISTER_INTERVAL_HOURS (%d) must be shorter than the 24h validity window", s.RenewalIntervalHours)
	case s.RenewalIntervalHours+s.RenewalLeadWindowHours < 24:
		// A pass renews what expires within lead of it; the next pass is one interval later.
		return fmt.Errorf("AUTO_REREGISTER_INTERVAL_HOURS (%d) plus AUTO_REREGISTER_HOURS_BEFORE_EXPIRY (%d) must cover the 24h validity window",
			s.RenewalIntervalHours, s.RenewalLeadWindowHours)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func (l LifecycleConfig) SubmissionTimeout() time.Duration {
	return secondsOr(l.SubmissionTimeoutSeconds, 120)
}

func (l LifecycleConfig) SubmissionLockTTL() time.Duration {
	return secondsOr(l.SubmissionLockTTLSeconds, 300)
}

func (s SchedulerConfig) NotificationInterval() time.Duration {
	return time.Duration(s.NotificationIntervalMins) * time.Minute
}

func (s SchedulerConfig) RenewalInterval() time.Duration {
	return time.Duration(s.RenewalIntervalHours) * time.Hour
}

func (s SchedulerConfig) ItemTimeout() time.Duration {
	return secondsOr(s.ItemTimeoutSeconds, 180)
}

func (n NotificationConfig) WebhookTimeout() time.Duration {
	return secondsOr(n.WebhookTimeoutSeconds, 10)
}

func secondsOr(val, fallback int) time.Duration {
	if val <= 0 {
		val = fallback
	}
	return time.Duration(val) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
