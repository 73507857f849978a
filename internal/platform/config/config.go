package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends for application records.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Server captures process-level configuration. It is built once at start-up
// and injected into the components that need it.
type Server struct {
	Addr     string
	LogLevel string

	// BaseURL is the public origin; PaymentReturnURL is where checkout
	// redirects land (defaults to the verify endpoint under BaseURL).
	BaseURL          string
	PaymentReturnURL string

	Admin         AdminConfig
	JWTSigningKey string
	CookieSecure  bool

	StoreBackend string
	DataFile     string
	DatabaseURL  string

	Redis     RedisConfig
	Kafka     KafkaConfig
	Mailjet   MailjetConfig
	Delivery  DeliveryConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
}

// AdminConfig is the single shared admin credential pair. When PasswordHash
// (bcrypt) is set it takes precedence over Password.
type AdminConfig struct {
	Username     string
	Password     string
	PasswordHash string
}

// RedisConfig configures the optional Redis client used for login lockout.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional audit sink.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// MailjetConfig enables real email delivery when both keys are present.
type MailjetConfig struct {
	APIKey    string
	SecretKey string
	Sender    string
}

// Enabled reports whether email should go through Mailjet.
func (m MailjetConfig) Enabled() bool {
	return m.APIKey != "" && m.SecretKey != ""
}

// DeliveryConfig holds the simulated dispatch latencies.
type DeliveryConfig struct {
	EmailDelay  time.Duration
	PostalDelay time.Duration
}

// LockoutConfig bounds failed admin logins per client IP.
type LockoutConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// RateLimitConfig bounds requests per client IP on the public write routes.
type RateLimitConfig struct {
	Disabled         bool
	IntakePerWindow  int
	PaymentPerWindow int
	Window           time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	baseURL := strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/")

	jwtSigningKey := os.Getenv("JWT_SECRET")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:             getEnv("FORMDESK_ADDR", ":8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		BaseURL:          baseURL,
		PaymentReturnURL: getEnv("PAYMENT_RETURN_URL", baseURL+"/api/payments/verify"),
		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			Password:     getEnv("ADMIN_PASSWORD", "admin123"),
			PasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		},
		JWTSigningKey: jwtSigningKey,
		CookieSecure:  os.Getenv("COOKIE_SECURE") == "true",
		StoreBackend:  getEnv("STORE_BACKEND", StoreMemory),
		DataFile:      getEnv("DATA_FILE", "data/applications.json"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "formdesk.audit"),
		},
		Mailjet: MailjetConfig{
			APIKey:    os.Getenv("MAILJET_API_KEY"),
			SecretKey: os.Getenv("MAILJET_SECRET_KEY"),
			Sender:    getEnv("MAILJET_SENDER", "noreply@formdesk.local"),
		},
		Delivery: DeliveryConfig{
			EmailDelay:  getEnvDuration("DELIVERY_EMAIL_DELAY", time.Second),
			PostalDelay: getEnvDuration("DELIVERY_POSTAL_DELAY", 2*time.Second),
		},
		Lockout: LockoutConfig{
			MaxAttempts: getEnvInt("LOGIN_MAX_ATTEMPTS", 5),
			Window:      getEnvDuration("LOGIN_LOCKOUT_WINDOW", 15*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Disabled:         os.Getenv("RATE_LIMIT_DISABLED") == "true",
			IntakePerWindow:  getEnvInt("RATE_LIMIT_INTAKE", 10),
			PaymentPerWindow: getEnvInt("RATE_LIMIT_PAYMENT", 30),
			Window:           getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

// Validate rejects combinations that cannot start.
func (s Server) Validate() error {
	var errs []error
	switch s.StoreBackend {
	case StoreMemory:
	case StoreFile:
		if s.DataFile == "" {
			errs = append(errs, errors.New("DATA_FILE is required for the file store"))
		}
	case StorePostgres:
		if s.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", s.StoreBackend))
	}
	if s.Admin.Username == "" {
		errs = append(errs, errors.New("ADMIN_USERNAME must not be empty"))
	}
	if s.Admin.Password == "" && s.Admin.PasswordHash == "" {
		errs = append(errs, errors.New("ADMIN_PASSWORD or ADMIN_PASSWORD_HASH is required"))
	}
	if len(s.JWTSigningKey) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 bytes"))
	}
	if s.Lockout.MaxAttempts < 1 {
		errs = append(errs, errors.New("LOGIN_MAX_ATTEMPTS must be positive"))
	}
	if !s.RateLimit.Disabled && (s.RateLimit.IntakePerWindow < 1 || s.RateLimit.PaymentPerWindow < 1 || s.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_INTAKE, RATE_LIMIT_PAYMENT and RATE_LIMIT_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
