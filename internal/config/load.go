package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

const envPrefix = "KANSO"

// legacyEnv keeps the variable names used by existing deployments working.
var legacyEnv = map[string]string{
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.name":     "DB_NAME",
	"redis.host":        "REDIS_HOST",
	"redis.port":        "REDIS_PORT",
	"redis.password":    "REDIS_PASSWORD",
	"auth.jwt_secret":   "JWT_SECRET",
	"server.port":       "PORT",
}

// Load reads configuration. configPath may be empty, in which case a
// config.yaml in the working directory is used when present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if err := setDefaults(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read config.yaml: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	if err := cfg.validateEngine(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) error {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_mode", "dev")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.rate_window", time.Minute)

	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "kanso_user")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "kanso_db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "kanso:settlements")
	v.SetDefault("redis.lock_ttl", 2*time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "kanso-auth")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("worker.shards", 4)
	v.SetDefault("worker.queue_size", 100)
	v.SetDefault("worker.eval_concurrency", 0)

	v.SetDefault("engine.source", "static")
	v.SetDefault("engine.lock_backend", "postgres")

	coeffs, err := toMap(domain.DefaultCoefficients())
	if err != nil {
		return err
	}
	for k, val := range coeffs {
		v.SetDefault("engine.coefficients."+k, val)
	}

	thresholds := map[string]any{}
	for k, th := range domain.DefaultThresholds() {
		thresholds[k] = map[string]any{"policy": string(th.Policy), "target": th.Target, "danger": th.Danger}
	}
	v.SetDefault("engine.thresholds", thresholds)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 0.1)
	v.SetDefault("tracing.environment", "local")
	return nil
}

func toMap(c domain.Coefficients) (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("config: encode default coefficients: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("config: decode default coefficients: %w", err)
	}
	return out, nil
}
