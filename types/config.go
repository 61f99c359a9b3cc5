package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Version     string             `yaml:"version" json:"version" validate:"required"`
	Server      *ServerConfig      `yaml:"server" json:"server" validate:"required"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger" validate:"required"`
	API         *APIConfig         `yaml:"api" json:"api" validate:"required"`
	Cache       *CacheConfig       `yaml:"cache" json:"cache" validate:"required"`
	Session     *SessionConfig     `yaml:"session" json:"session" validate:"required"`
	Guard       *GuardConfig       `yaml:"guard" json:"guard" validate:"required"`
	Actions     *ActionsConfig     `yaml:"actions" json:"actions"`
	Cron        *CronConfig        `yaml:"cron" json:"cron"`
	Middlewares *MiddlewaresConfig `yaml:"middlewares" json:"middlewares"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig      `yaml:"health" json:"health"`
}

type ServerConfig struct {
	HTTP *HTTPConfig `yaml:"http" json:"http" validate:"required"`
	TLS  *TLSConfig  `yaml:"tls" json:"tls"`
}

type HTTPConfig struct {
	Host               string `yaml:"host" json:"host"`
	Port               int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout        int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout       int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout        int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout    int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxRequestBodySize int    `yaml:"max_request_body_size" json:"max_request_body_size" validate:"min=0"`
}

type TLSConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	CertFile string   `yaml:"cert_file,omitempty" json:"cert_file,omitempty"`
	KeyFile  string   `yaml:"key_file,omitempty" json:"key_file,omitempty"`
	AutoCert bool     `yaml:"auto_cert" json:"auto_cert"`
	Domains  []string `yaml:"domains,omitempty" json:"domains,omitempty"`
	Email    string   `yaml:"email,omitempty" json:"email,omitempty"`
	CacheDir string   `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level" validate:"required,oneof=debug info warn warning error fatal"`
	Config interface{} `yaml:"config" json:"config"`
}

// APIConfig describes the remote food API.
type APIConfig struct {
	BaseURL         string                `yaml:"base_url" json:"base_url" validate:"required,url"`
	Timeout         time.Duration         `yaml:"timeout" json:"timeout" validate:"min=0"`
	Retries         int                   `yaml:"retries" json:"retries" validate:"min=0,max=5"`
	MaxConnsPerHost int                   `yaml:"max_conns_per_host" json:"max_conns_per_host" validate:"min=0"`
	ForwardToken    bool                  `yaml:"forward_token" json:"forward_token"`
	CircuitBreaker  *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" validate:"min=0"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout" validate:"min=0"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests" validate:"min=0"`
}

type CacheConfig struct {
	KeepUnusedFor time.Duration `yaml:"keep_unused_for" json:"keep_unused_for" validate:"min=0"`
	MaxAge        time.Duration `yaml:"max_age" json:"max_age" validate:"min=0"`
	SweepSchedule string        `yaml:"sweep_schedule" json:"sweep_schedule"`
}

type SessionConfig struct {
	Type   string               `yaml:"type" json:"type" validate:"required"`
	Config interface{}          `yaml:"config" json:"config"`
	Cookie *SessionCookieConfig `yaml:"cookie" json:"cookie" validate:"required"`
	Token  *TokenConfig         `yaml:"token" json:"token"`
}

type SessionCookieConfig struct {
	Name   string        `yaml:"name" json:"name" validate:"required"`
	Path   string        `yaml:"path" json:"path"`
	Domain string        `yaml:"domain" json:"domain"`
	Secure bool          `yaml:"secure" json:"secure"`
	MaxAge time.Duration `yaml:"max_age" json:"max_age" validate:"min=0"`
}

type TokenConfig struct {
	RequireJWT bool          `yaml:"require_jwt" json:"require_jwt"`
	Leeway     time.Duration `yaml:"leeway" json:"leeway" validate:"min=0"`
}

type GuardConfig struct {
	Layout string `yaml:"layout" json:"layout" validate:"required,oneof=classic revised"`
}

type ActionsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{} `yaml:"config" json:"config"`
}

type CronConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Timezone string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
}

type MiddlewaresConfig struct {
	Enabled     bool                  `yaml:"enabled" json:"enabled"`
	Recovery    *MiddlewareItemConfig `yaml:"recovery" json:"recovery"`
	RequestID   *MiddlewareItemConfig `yaml:"request_id" json:"request_id"`
	Logging     *MiddlewareItemConfig `yaml:"logging" json:"logging"`
	BodyLimit   *MiddlewareItemConfig `yaml:"body_limit" json:"body_limit"`
	Session     *MiddlewareItemConfig `yaml:"session" json:"session"`
	Guard       *MiddlewareItemConfig `yaml:"guard" json:"guard"`
	Compression *MiddlewareItemConfig `yaml:"compression" json:"compression"`
}

type MiddlewareItemConfig struct {
	Enabled bool                   `yaml:"enabled" json:"enabled"`
	Weight  int                    `yaml:"weight" json:"weight" validate:"min=0"`
	Params  map[string]interface{} `yaml:"params" json:"params"`
}

type MetricsConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Type    string            `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Path    string            `yaml:"path" json:"path"`
	Prefix  string            `yaml:"prefix" json:"prefix"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
	Config  interface{}       `yaml:"config" json:"config"`
}

type HealthConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Path    string        `yaml:"path" json:"path"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"min=0"`
}
