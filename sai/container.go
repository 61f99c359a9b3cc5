// Package sai assembles the admin's components from configuration.
package sai

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/action"
	"github.com/saiset-co/sai-food-admin/api"
	"github.com/saiset-co/sai-food-admin/cache"
	"github.com/saiset-co/sai-food-admin/client"
	"github.com/saiset-co/sai-food-admin/cron"
	"github.com/saiset-co/sai-food-admin/guard"
	"github.com/saiset-co/sai-food-admin/health"
	"github.com/saiset-co/sai-food-admin/logger"
	"github.com/saiset-co/sai-food-admin/metrics"
	"github.com/saiset-co/sai-food-admin/middleware"
	"github.com/saiset-co/sai-food-admin/pages"
	"github.com/saiset-co/sai-food-admin/server"
	"github.com/saiset-co/sai-food-admin/session"
	"github.com/saiset-co/sai-food-admin/tls"
	"github.com/saiset-co/sai-food-admin/types"
)

const (
	SweepJobName = "cache-sweep"
	VersionPath  = "/version"
)

// Container holds every component of one admin instance. Optional
// components (Metrics, Health, TLS, Cron, Actions) are nil when disabled.
type Container struct {
	Config      types.ConfigManager
	Logger      *logger.Manager
	Metrics     *metrics.Manager
	Health      *health.Manager
	TLS         *tls.CertManager
	Sessions    *session.Manager
	Cache       *cache.QueryCache
	HTTPClient  *client.HTTPClient
	API         *api.Client
	Guard       *guard.Guard
	Middlewares *middleware.Manager
	Router      *server.Router
	Pages       *pages.Handler
	Cron        *cron.Manager
	Actions     types.ActionBroker
	Bridge      *action.Bridge
	HTTPServer  *server.FastHTTPServer
}

// Build wires a container from config. Nothing is started.
func Build(ctx context.Context, configManager types.ConfigManager) (*Container, error) {
	loggerManager, err := logger.NewManager(ctx, configManager)
	if err != nil {
		return nil, types.WrapError(err, "failed to register logger")
	}

	return BuildWithLogger(ctx, configManager, loggerManager)
}

func BuildWithLogger(ctx context.Context, configManager types.ConfigManager, loggerManager *logger.Manager) (*Container, error) {
	c := &Container{Config: configManager, Logger: loggerManager}
	cfg := configManager.GetConfig()

	var metricsManager types.MetricsManager
	m, err := metrics.NewManager(ctx, configManager, loggerManager)
	switch {
	case err == nil:
		c.Metrics = m
		metricsManager = m
	case !errors.Is(err, types.ErrMetricsIsDisabled):
		return nil, types.WrapError(err, "failed to register metrics manager")
	}

	if cfg.Health != nil && cfg.Health.Enabled {
		c.Health = health.NewManager(ctx, configManager, loggerManager)
	}

	if cfg.Server.TLS != nil && cfg.Server.TLS.Enabled {
		c.TLS, err = tls.NewCertManager(ctx, configManager, loggerManager)
		if err != nil {
			return nil, types.WrapError(err, "failed to register TLS manager")
		}
	}

	c.Sessions, err = session.NewManager(ctx, configManager, loggerManager, metricsManager)
	if err != nil {
		return nil, types.WrapError(err, "failed to register session store")
	}

	c.Cache = cache.NewQueryCache(ctx, configManager, loggerManager, metricsManager)

	c.HTTPClient, err = client.NewHTTPClient(ctx, configManager, loggerManager, metricsManager)
	if err != nil {
		return nil, types.WrapError(err, "failed to register API client")
	}
	c.API = api.NewClient(c.HTTPClient, c.Cache, loggerManager)

	c.Guard = guard.New(c.Sessions, cfg.Guard, cfg.Session.Token, loggerManager)
	c.Guard.Watch(authTransitions(loggerManager, metricsManager))

	c.Middlewares = middleware.NewManager(ctx, configManager, loggerManager, metricsManager)
	if err := c.Middlewares.RegisterMiddlewares(c.Guard); err != nil {
		return nil, types.WrapError(err, "failed to register middlewares")
	}

	c.Router = server.NewRouter().WithAreaResolver(guard.AreaOf)
	c.Pages = pages.New(ctx, configManager, c.API, c.Guard, c.Sessions, loggerManager)
	c.Pages.Register(c.Router)

	if cfg.Cron != nil && cfg.Cron.Enabled {
		c.Cron = cron.NewManager(configManager, loggerManager, metricsManager)
		if err := c.scheduleSweep(cfg.Cache); err != nil {
			return nil, err
		}
	}

	if err := c.registerActions(ctx, configManager, metricsManager); err != nil {
		return nil, err
	}

	c.registerHealthChecks()
	c.registerOperationalRoutes()

	c.HTTPServer, err = server.NewHTTPServer(ctx, configManager, loggerManager, metricsManager, c.Middlewares, c.tlsManager(), c.Router)
	if err != nil {
		return nil, types.WrapError(err, "failed to register HTTP server")
	}

	return c, nil
}

func (c *Container) scheduleSweep(cacheConfig *types.CacheConfig) error {
	if cacheConfig == nil || cacheConfig.SweepSchedule == "" {
		return nil
	}

	err := c.Cron.Add(SweepJobName, cacheConfig.SweepSchedule, func() {
		if removed := c.Cache.Sweep(); removed > 0 {
			c.Logger.Debug("Swept unused cache entries", zap.Int("removed", removed))
		}
	})
	if err != nil {
		return types.WrapError(err, "failed to schedule cache sweep")
	}
	return nil
}

func (c *Container) registerActions(ctx context.Context, configManager types.ConfigManager, metricsManager types.MetricsManager) error {
	broker, err := action.NewActionBroker(ctx, configManager, c.Logger, metricsManager)
	if errors.Is(err, types.ErrActionIsDisabled) {
		return nil
	}
	if err != nil {
		return types.WrapError(err, "failed to register action broker")
	}

	c.Actions = broker
	c.Bridge = action.NewBridge(broker, c.Cache, c.Logger)
	if err := c.Bridge.Attach(); err != nil {
		return err
	}
	return nil
}

func (c *Container) registerHealthChecks() {
	if c.Health == nil {
		return
	}

	c.Health.RegisterChecker("session_store", func(ctx context.Context) types.HealthCheck {
		if err := c.Sessions.Ping(ctx); err != nil {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: err.Error()}
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	})

	c.Health.RegisterChecker("query_cache", func(context.Context) types.HealthCheck {
		if !c.Cache.IsRunning() {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: "cache is stopped"}
		}
		return types.HealthCheck{
			Status:  types.StatusHealthy,
			Details: map[string]interface{}{"entries": c.Cache.Len()},
		}
	})

	c.Health.RegisterChecker("food_api", func(context.Context) types.HealthCheck {
		breaker := c.HTTPClient.Breaker()
		if breaker == nil {
			return types.HealthCheck{Status: types.StatusHealthy, Message: "circuit breaker disabled"}
		}

		state := breaker.State()
		check := types.HealthCheck{
			Status:  types.StatusHealthy,
			Details: map[string]interface{}{"breaker": state.String()},
		}
		if state == client.BreakerOpen {
			check.Status = types.StatusUnhealthy
			check.Message = "food API circuit is open"
		}
		return check
	})

	if c.TLS != nil {
		c.Health.RegisterChecker("tls", func(context.Context) types.HealthCheck {
			check := types.HealthCheck{Status: types.StatusHealthy, Details: map[string]interface{}{}}
			for domain, status := range c.TLS.GetCertificateStatus() {
				check.Details[domain] = status.Status
				if status.Status == tls.StatusExpired || status.Status == tls.StatusError {
					check.Status = types.StatusUnhealthy
					check.Message = fmt.Sprintf("certificate for %s is %s", domain, status.Status)
				}
			}
			return check
		})
	}

	if c.Actions != nil {
		if ws, ok := c.Actions.(*action.WebSocketBroker); ok {
			c.Health.RegisterChecker("action_hub", func(context.Context) types.HealthCheck {
				if !ws.Connected() {
					return types.HealthCheck{Status: types.StatusUnhealthy, Message: "not connected to action hub"}
				}
				return types.HealthCheck{Status: types.StatusHealthy}
			})
		}
	}
}

// registerOperationalRoutes mounts health, version and metrics endpoints.
// They skip the session and guard middlewares.
func (c *Container) registerOperationalRoutes() {
	cfg := c.Config.GetConfig()

	if c.Health != nil {
		path := cfg.Health.Path
		if path == "" {
			path = health.DefaultPath
		}
		c.Router.GET(path, c.Health.Handler()).
			WithArea(types.AreaNone).
			WithoutMiddlewares("session", "guard")
		c.Router.GET(VersionPath, c.Health.VersionHandler()).
			WithArea(types.AreaNone).
			WithoutMiddlewares("session", "guard")
	}

	if c.Metrics != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = metrics.DefaultPath
		}
		c.Router.GET(path, c.Metrics.Handler()).
			WithArea(types.AreaNone).
			WithoutMiddlewares("session", "guard", "compression")
	}
}

// tlsManager avoids handing the server a typed nil interface.
func (c *Container) tlsManager() types.TLSManager {
	if c.TLS == nil {
		return nil
	}
	return c.TLS
}

// Components lists the lifecycle managers in start order. Stop runs in
// reverse.
func (c *Container) Components() []Component {
	var out []Component
	add := func(name string, m types.LifecycleManager, required bool) {
		out = append(out, Component{Name: name, Manager: m, Required: required})
	}

	if lm, ok := c.Config.(types.LifecycleManager); ok {
		add("config", lm, true)
	}
	add("logger", c.Logger, true)
	if c.Metrics != nil {
		add("metrics", c.Metrics, false)
	}
	if c.Health != nil {
		add("health", c.Health, false)
	}
	if c.TLS != nil {
		add("tls", c.TLS, true)
	}
	add("sessions", c.Sessions, true)
	add("cache", c.Cache, true)
	add("api_client", c.HTTPClient, true)
	add("middlewares", c.Middlewares, true)
	if c.Actions != nil {
		add("actions", c.Actions, false)
	}
	add("http_server", c.HTTPServer, true)
	if c.Cron != nil {
		add("cron", c.Cron, false)
	}

	return out
}

type Component struct {
	Name     string
	Manager  types.LifecycleManager
	Required bool
}

func authTransitions(log types.Logger, metricsManager types.MetricsManager) func(string, guard.AuthState) {
	return func(sessionID string, state guard.AuthState) {
		log.Debug("Auth state changed", zap.String("session_id", sessionID), zap.String("state", state.String()))
		if metricsManager != nil {
			metricsManager.Counter("auth_transitions_total", map[string]string{"state": state.String()}).Inc()
		}
	}
}
