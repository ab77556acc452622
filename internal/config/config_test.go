package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("INVITE_SECRET", "invite")
	t.Setenv("APP_ENV", "development")
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")

	cfg := Load()

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "Paycom", cfg.PaymeLogin)
	assert.Equal(t, paymeCheckoutTest, cfg.PaymeCheckoutURL)
	assert.Equal(t, 24*time.Hour, cfg.TokenExpires)
	assert.Equal(t, time.Hour, cfg.InviteTTL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.IsProduction())
}

func TestLoadProductionCheckout(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("INVITE_SECRET", "invite")
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_TTL_HOURS", "2")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, paymeCheckoutProduction, cfg.PaymeCheckoutURL)
	assert.Equal(t, 2*time.Hour, cfg.TokenExpires)
}
