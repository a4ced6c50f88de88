// Package config loads process configuration from defaults, an optional
// config.yaml, a .env file and KANSO_* environment variables, in increasing
// order of precedence.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Engine   EngineConfig   `mapstructure:"engine" validate:"required"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogMode         string        `mapstructure:"log_mode" validate:"required,oneof=dev prod"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	RateLimit       int           `mapstructure:"rate_limit" validate:"gte=0"`
	RateWindow      time.Duration `mapstructure:"rate_window" validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" validate:"oneof=pgx postgres"`
	Host         string `mapstructure:"host" validate:"required"`
	Port         string `mapstructure:"port" validate:"required,numeric"`
	User         string `mapstructure:"user" validate:"required"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name" validate:"required"`
	SSLMode      string `mapstructure:"ssl_mode" validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// DSN renders a postgres URL pinned to UTC so DATE and TIMESTAMPTZ columns
// round-trip without session-dependent shifts.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + d.Port,
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	q.Set("timezone", "UTC")
	u.RawQuery = q.Encode()
	return u.String()
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host" validate:"required_if=Enabled true"`
	Port     string        `mapstructure:"port" validate:"required_if=Enabled true"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0,lte=15"`
	Channel  string        `mapstructure:"channel"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" validate:"gte=0"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required,min=16"`
	Issuer    string        `mapstructure:"issuer" validate:"required"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}

type WorkerConfig struct {
	Shards          int `mapstructure:"shards" validate:"gt=0,lte=1024"`
	QueueSize       int `mapstructure:"queue_size" validate:"gt=0"`
	EvalConcurrency int `mapstructure:"eval_concurrency" validate:"gte=0"`
}

// EngineConfig selects where coefficients come from and which lock backend
// enforces the single writer per user.
type EngineConfig struct {
	Source       string                            `mapstructure:"source" validate:"oneof=static database"`
	LockBackend  string                            `mapstructure:"lock_backend" validate:"oneof=memory redis postgres"`
	Coefficients domain.Coefficients               `mapstructure:"coefficients"`
	Thresholds   map[string]domain.HabitThresholds `mapstructure:"thresholds"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
	Environment string  `mapstructure:"environment"`
}

func (c *Config) validateEngine() error {
	if err := c.Engine.Coefficients.Validate(); err != nil {
		return fmt.Errorf("engine.coefficients: %w", err)
	}
	for key, th := range c.Engine.Thresholds {
		if th.Policy != "" && !th.Policy.Valid() {
			return fmt.Errorf("engine.thresholds.%s: unknown policy %q", key, th.Policy)
		}
		if th.Target < 0 || th.Danger < 0 {
			return fmt.Errorf("engine.thresholds.%s: target and danger must be non-negative", key)
		}
	}
	if c.Engine.LockBackend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("engine.lock_backend=redis requires redis.enabled")
	}
	return nil
}

// ThresholdSet returns the configured thresholds keyed by normalized habit key.
func (e EngineConfig) ThresholdSet() domain.ThresholdSet {
	set := make(domain.ThresholdSet, len(e.Thresholds))
	for k, v := range e.Thresholds {
		set[domain.NormalizeHabitKey(k)] = v
	}
	return set
}
