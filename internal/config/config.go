package config

import (
	"fmt"
	"github.com/caarlos0/env/v11"
	"time"
)

type Env string

const (
	EnvProd Env = "prod"
	EnvDev  Env = "dev"
)

func (e Env) IsValid() bool {
	switch e {
	case EnvProd, EnvDev:
		return true
	}
	return false
}

type Config struct {
	APIServerHost             string        `env:"API_SERVER_HOST" envDefault:"0.0.0.0"`
	APIServerPort             string        `env:"API_SERVER_PORT" envDefault:"5050"`
	RedisHost                 string        `env:"REDIS_HOST"`
	RedisPort                 string        `env:"REDIS_PORT" envDefault:"6379"`
	RedisAnnouncementsChannel string        `env:"REDIS_ANNOUNCEMENTS_CHANNEL"`
	AnnouncerName             string        `env:"ANNOUNCER_NAME" envDefault:"announcement"`
	SessionTTL                time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	SendBufferSize            int           `env:"SEND_BUFFER_SIZE" envDefault:"16"`
	WriteTimeout              time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	PingPeriod                time.Duration `env:"PING_PERIOD" envDefault:"54s"`
	MaxMessageSize            int64         `env:"MAX_MESSAGE_SIZE" envDefault:"4096"`
	EchoToAuthor              bool          `env:"ECHO_TO_AUTHOR" envDefault:"true"`
	Env                       Env           `env:"ENV" envDefault:"prod"`
}

func New() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.Env.IsValid() {
		return nil, fmt.Errorf("invalid env variable (must be 'prod' or 'dev')")
	}
	if cfg.SendBufferSize <= 0 {
		return nil, fmt.Errorf("invalid SEND_BUFFER_SIZE %d (must be positive)", cfg.SendBufferSize)
	}
	if cfg.MaxMessageSize <= 0 {
		return nil, fmt.Errorf("invalid MAX_MESSAGE_SIZE %d (must be positive)", cfg.MaxMessageSize)
	}
	return &cfg, nil
}

// RedisEnabled reports whether a Redis server was configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}
