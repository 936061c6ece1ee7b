package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("DB_DSN", "file::memory:")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	req.NoError(err)
	req.Equal(8084, cfg.Port)
	req.Equal("mysql", cfg.DBDriver)
	req.Equal(BroadcastLocal, cfg.BroadcastDriver)
	req.Equal(PolicyDegrade, cfg.BroadcastFailurePolicy)
	req.Equal(7*24*time.Hour, cfg.TokenTTL)
	req.Equal(2000, cfg.MaxContentLength)
	req.Equal(":8084", cfg.Addr())
}

func TestLoad_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("DB_DSN", "chat.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("BROADCAST_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("BROADCAST_FAILURE_POLICY", "fail")
	t.Setenv("TOKEN_TTL", "1h")

	cfg, err := Load()
	req.NoError(err)
	req.Equal(9000, cfg.Port)
	req.Equal("sqlite", cfg.DBDriver)
	req.Equal(BroadcastRedis, cfg.BroadcastDriver)
	req.Equal("localhost:6379", cfg.RedisAddr)
	req.Equal(PolicyFail, cfg.BroadcastFailurePolicy)
	req.Equal(time.Hour, cfg.TokenTTL)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:                   8084,
		DBDriver:               "sqlite",
		DBDSN:                  "chat.db",
		JWTSecret:              "secret",
		TokenTTL:               time.Hour,
		BroadcastDriver:        BroadcastLocal,
		BroadcastFailurePolicy: PolicyDegrade,
		SubscriberBuffer:       8,
		MaxContentLength:       100,
		LogLevel:               "info",
		ShutdownTimeout:        time.Second,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing dsn", func(c *Config) { c.DBDSN = "" }, true},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, true},
		{"unknown driver", func(c *Config) { c.DBDriver = "postgres" }, true},
		{"redis without addr", func(c *Config) { c.BroadcastDriver = BroadcastRedis }, true},
		{"redis with addr", func(c *Config) { c.BroadcastDriver = BroadcastRedis; c.RedisAddr = "localhost:6379" }, false},
		{"unknown policy", func(c *Config) { c.BroadcastFailurePolicy = "retry" }, true},
		{"zero content length", func(c *Config) { c.MaxContentLength = 0 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
