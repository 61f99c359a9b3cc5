package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-food-admin/types"
)

type Loader struct {
	validator *validator.Validate
	envFiles  []string
}

func NewLoader(envFiles ...string) *Loader {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
		envFiles:  envFiles,
	}
}

func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, types.WrapError(err, "file not found: "+configPath)
	}

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	data, err := l.ReadFileWithTimeout(readCtx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	return l.LoadFromBytes(data)
}

func (l *Loader) LoadFromBytes(data []byte) (*types.ServiceConfig, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	overrides, err := ParseEnv()
	if err != nil {
		return nil, err
	}
	overrides.Apply(config)

	if err := l.Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func (l *Loader) Validate(config *types.ServiceConfig) error {
	if config == nil {
		return types.ErrConfigIsNil
	}

	if err := l.validator.Struct(config); err != nil {
		return types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	return nil
}

func (l *Loader) loadEnvFiles() error {
	for _, file := range l.envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return types.WrapError(err, "failed to load env file "+file)
		}
	}
	return nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "sai-food-admin",
		Version: "1.0.0",
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{
				Host:               "localhost",
				Port:               8080,
				ReadTimeout:        30,
				WriteTimeout:       30,
				IdleTimeout:        120,
				ShutdownTimeout:    5,
				MaxRequestBodySize: 8 << 20,
			},
			TLS: &types.TLSConfig{
				Enabled: false,
			},
		},
		Logger: &types.LoggerConfig{
			Level: "info",
		},
		API: &types.APIConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 15 * time.Second,
			Retries: 0,
			CircuitBreaker: &types.CircuitBreakerConfig{
				Enabled:          false,
				FailureThreshold: 5,
				RecoveryTimeout:  30 * time.Second,
				HalfOpenRequests: 1,
			},
		},
		Cache: &types.CacheConfig{
			KeepUnusedFor: 60 * time.Second,
			MaxAge:        5 * time.Minute,
			SweepSchedule: "@every 30s",
		},
		Session: &types.SessionConfig{
			Type: "memory",
			Cookie: &types.SessionCookieConfig{
				Name:   "food_admin_session",
				Path:   "/",
				MaxAge: 7 * 24 * time.Hour,
			},
			Token: &types.TokenConfig{
				RequireJWT: false,
				Leeway:     30 * time.Second,
			},
		},
		Guard: &types.GuardConfig{
			Layout: "classic",
		},
		Actions: &types.ActionsConfig{
			Enabled: false,
			Type:    "websocket",
		},
		Cron: &types.CronConfig{
			Enabled:  true,
			Timezone: "UTC",
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "memory",
			Path:    "/metrics",
		},
		Health: &types.HealthConfig{
			Enabled: true,
			Path:    "/health",
			Timeout: 5 * time.Second,
		},
		Middlewares: &types.MiddlewaresConfig{
			Enabled: true,
			Recovery: &types.MiddlewareItemConfig{
				Enabled: true,
				Params: map[string]interface{}{
					"stack_trace": true,
				},
				Weight: 10,
			},
			RequestID: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  15,
			},
			Logging: &types.MiddlewareItemConfig{
				Enabled: true,
				Params: map[string]interface{}{
					"log_level":   "info",
					"log_headers": false,
				},
				Weight: 20,
			},
			BodyLimit: &types.MiddlewareItemConfig{
				Enabled: true,
				Params: map[string]interface{}{
					"max_body_size": 6 << 20,
				},
				Weight: 40,
			},
			Session: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  50,
			},
			Guard: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  60,
			},
			Compression: &types.MiddlewareItemConfig{
				Enabled: false,
				Params: map[string]interface{}{
					"level":    4,
					"min_size": 1024,
				},
				Weight: 90,
			},
		},
	}
}
