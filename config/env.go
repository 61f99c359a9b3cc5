package config

import (
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/saiset-co/sai-food-admin/types"
)

const EnvPrefix = "FOOD_ADMIN_"

// EnvOverrides holds the settings an operator may change without editing the YAML file.
type EnvOverrides struct {
	APIBaseURL  string        `env:"API_BASE_URL"`
	APITimeout  time.Duration `env:"API_TIMEOUT"`
	HTTPHost    string        `env:"HTTP_HOST"`
	HTTPPort    int           `env:"HTTP_PORT"`
	LogLevel    string        `env:"LOG_LEVEL"`
	SessionType string        `env:"SESSION_TYPE"`
	RedisAddr   string        `env:"REDIS_ADDR"`
	GuardLayout string        `env:"GUARD_LAYOUT"`
}

func ParseEnv() (*EnvOverrides, error) {
	overrides := &EnvOverrides{}
	if err := env.ParseWithOptions(overrides, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, types.WrapError(err, "parse env")
	}
	return overrides, nil
}

func (o *EnvOverrides) Apply(config *types.ServiceConfig) {
	if o == nil || config == nil {
		return
	}

	if o.APIBaseURL != "" && config.API != nil {
		config.API.BaseURL = o.APIBaseURL
	}
	if o.APITimeout > 0 && config.API != nil {
		config.API.Timeout = o.APITimeout
	}
	if config.Server != nil && config.Server.HTTP != nil {
		if o.HTTPHost != "" {
			config.Server.HTTP.Host = o.HTTPHost
		}
		if o.HTTPPort > 0 {
			config.Server.HTTP.Port = o.HTTPPort
		}
	}
	if o.LogLevel != "" && config.Logger != nil {
		config.Logger.Level = o.LogLevel
	}
	if o.GuardLayout != "" && config.Guard != nil {
		config.Guard.Layout = o.GuardLayout
	}
	if config.Session != nil {
		if o.SessionType != "" {
			config.Session.Type = o.SessionType
		}
		if o.RedisAddr != "" && config.Session.Type == "redis" {
			config.Session.Config = withKey(config.Session.Config, "addr", o.RedisAddr)
		}
	}
}

func withKey(section interface{}, key string, value interface{}) interface{} {
	switch typed := section.(type) {
	case map[string]interface{}:
		typed[key] = value
		return typed
	case map[interface{}]interface{}:
		typed[key] = value
		return typed
	default:
		return map[string]interface{}{key: value}
	}
}
