package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

const (
	BroadcastLocal = "local"
	BroadcastRedis = "redis"

	PolicyDegrade = "degrade"
	PolicyFail    = "fail"
)

type Config struct {
	Port                 int           `env:"APP_PORT,default=8084" validate:"gt=0,lt=65536"`
	DBDriver             string        `env:"DB_DRIVER,default=mysql" validate:"oneof=mysql sqlite"`
	DBDSN                string        `env:"DB_DSN" validate:"required"`
	JWTSecret            string        `env:"JWT_SECRET" validate:"required"`
	TokenTTL             time.Duration `env:"TOKEN_TTL,default=168h" validate:"gt=0"`
	WSInsecureSkipVerify bool          `env:"WS_INSECURE_SKIP_VERIFY,default=false"`

	BroadcastDriver        string `env:"BROADCAST_DRIVER,default=local" validate:"oneof=local redis"`
	BroadcastFailurePolicy string `env:"BROADCAST_FAILURE_POLICY,default=degrade" validate:"oneof=degrade fail"`
	SubscriberBuffer       int    `env:"SUBSCRIBER_BUFFER,default=64" validate:"gt=0"`
	RedisAddr              string `env:"REDIS_ADDR" validate:"required_if=BroadcastDriver redis"`
	RedisPassword          string `env:"REDIS_PASSWORD"`
	RedisDB                int    `env:"REDIS_DB,default=0" validate:"gte=0"`
	RedisChannelPrefix     string `env:"REDIS_CHANNEL_PREFIX,default=nexus"`

	MaxContentLength int           `env:"MAX_CONTENT_LENGTH,default=2000" validate:"gt=0"`
	LogLevel         string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	LogJSON          bool          `env:"LOG_JSON,default=false"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
}

// Load reads the process environment. Callers load any .env file first.
func Load() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
