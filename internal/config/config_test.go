package config

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, RideStorePostgres, cfg.Storage.RideStore)
	assert.True(t, cfg.Rides.CancelRequiresRequester)
	assert.Equal(t, 90*time.Second, cfg.Presence.TTL)
	assert.Empty(t, cfg.SMTP.Host)
	assert.False(t, cfg.Mail.QueueEnabled)
	assert.Equal(t, 5, cfg.Mail.MaxAttempts)
	assert.Empty(t, cfg.Server.AllowedOrigins)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("RIDE_STORE", "Mongo")
	t.Setenv("RIDES_CANCEL_REQUIRES_REQUESTER", "false")
	t.Setenv("PRESENCE_TTL", "2m")
	t.Setenv("NSQ_LOOKUPD", "a:4161, ,b:4161")
	t.Setenv("MAIL_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", "https://app.syncway.io,http://localhost:3000")

	cfg := Load()

	assert.Equal(t, RideStoreMongo, cfg.Storage.RideStore)
	assert.False(t, cfg.Rides.CancelRequiresRequester)
	assert.Equal(t, 2*time.Minute, cfg.Presence.TTL)
	assert.Equal(t, []string{"a:4161", "b:4161"}, cfg.Mail.LookupdAddrs)
	assert.Equal(t, 5, cfg.Mail.MaxAttempts)
	assert.Equal(t, []string{"https://app.syncway.io", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
}

func TestLoad_MailMaxAttemptsFitsNSQ(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"-3", 1},
		{"0", 1},
		{"7", 7},
		{"70000", math.MaxUint16},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("MAIL_MAX_ATTEMPTS", tt.value)
			cfg := Load()
			assert.Equal(t, tt.want, cfg.Mail.MaxAttempts)
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://app.syncway.io"}

	assert.True(t, OriginAllowed(allowed, "", "api.syncway.io"), "no origin header")
	assert.True(t, OriginAllowed(nil, "https://api.syncway.io", "api.syncway.io"), "same origin")
	assert.True(t, OriginAllowed(allowed, "https://app.syncway.io", "api.syncway.io"))
	assert.False(t, OriginAllowed(allowed, "https://evil.example", "api.syncway.io"))
	assert.False(t, OriginAllowed(nil, "https://app.syncway.io", "api.syncway.io"))
	assert.True(t, OriginAllowed([]string{"*"}, "https://evil.example", "api.syncway.io"))
}
