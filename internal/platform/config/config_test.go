package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("BASE_URL", "https://antrag.example.org/")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "https://antrag.example.org", cfg.BaseURL)
	assert.Equal(t, "https://antrag.example.org/api/payments/verify", cfg.PaymentReturnURL)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.Equal(t, time.Second, cfg.Delivery.EmailDelay)
	assert.Equal(t, 2*time.Second, cfg.Delivery.PostalDelay)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.Mailjet.Enabled())
	assert.Equal(t, RateLimitConfig{IntakePerWindow: 10, PaymentPerWindow: 30, Window: time.Minute}, cfg.RateLimit)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("DELIVERY_EMAIL_DELAY", "0s")
	t.Setenv("LOGIN_MAX_ATTEMPTS", "3")
	t.Setenv("MAILJET_API_KEY", "pub")
	t.Setenv("MAILJET_SECRET_KEY", "priv")
	t.Setenv("COOKIE_SECURE", "true")

	cfg := FromEnv()

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Duration(0), cfg.Delivery.EmailDelay)
	assert.Equal(t, 3, cfg.Lockout.MaxAttempts)
	assert.True(t, cfg.Mailjet.Enabled())
	assert.True(t, cfg.CookieSecure)
}

func TestValidate(t *testing.T) {
	base := func() Server {
		return Server{
			StoreBackend:  StoreMemory,
			Admin:         AdminConfig{Username: "admin", Password: "admin123"},
			JWTSigningKey: "0123456789abcdef",
			Lockout:       LockoutConfig{MaxAttempts: 5, Window: time.Minute},
			RateLimit:     RateLimitConfig{IntakePerWindow: 10, PaymentPerWindow: 30, Window: time.Minute},
		}
	}

	t.Run("postgres without url", func(t *testing.T) {
		cfg := base()
		cfg.StoreBackend = StorePostgres
		assert.ErrorContains(t, cfg.Validate(), "DATABASE_URL")
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := base()
		cfg.StoreBackend = "sqlite"
		assert.ErrorContains(t, cfg.Validate(), "unknown STORE_BACKEND")
	})

	t.Run("short signing key", func(t *testing.T) {
		cfg := base()
		cfg.JWTSigningKey = "short"
		assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")
	})

	t.Run("zero rate limit", func(t *testing.T) {
		cfg := base()
		cfg.RateLimit.IntakePerWindow = 0
		assert.ErrorContains(t, cfg.Validate(), "RATE_LIMIT_INTAKE")

		cfg.RateLimit.Disabled = true
		assert.NoError(t, cfg.Validate())
	})

	t.Run("hash without password is fine", func(t *testing.T) {
		cfg := base()
		cfg.Admin.Password = ""
		cfg.Admin.PasswordHash = "$2a$10$abcdefghijklmnopqrstuv"
		assert.NoError(t, cfg.Validate())
	})
}
