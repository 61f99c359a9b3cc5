package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-food-admin/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const RouteConfigKey = "route_config"

type FastHTTPServer struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	middlewares     types.MiddlewareManager
	router          *Router
	tlsManager      types.TLSManager
	server          *fasthttp.Server
	listener        net.Listener
	httpConfig      *types.HTTPConfig
	tlsConfig       *types.TLSConfig
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewHTTPServer(
	ctx context.Context,
	config types.ConfigManager,
	logger types.Logger,
	metrics types.MetricsManager,
	middlewares types.MiddlewareManager,
	tlsManager types.TLSManager,
	router *Router) (*FastHTTPServer, error) {
	if router == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "router is nil")
	}

	serverCtx, cancel := context.WithCancel(ctx)

	httpConfig := config.GetConfig().Server.HTTP
	tlsConfig := config.GetConfig().Server.TLS
	if tlsConfig == nil {
		tlsConfig = &types.TLSConfig{}
	}

	shutdownTimeout := 5 * time.Second
	if httpConfig.ShutdownTimeout > 0 {
		shutdownTimeout = time.Duration(httpConfig.ShutdownTimeout) * time.Second
	}

	server := &FastHTTPServer{
		ctx:             serverCtx,
		cancel:          cancel,
		logger:          logger,
		metrics:         metrics,
		middlewares:     middlewares,
		tlsManager:      tlsManager,
		router:          router,
		httpConfig:      httpConfig,
		tlsConfig:       tlsConfig,
		shutdownTimeout: shutdownTimeout,
	}

	server.state.Store(StateStopped)

	return server, nil
}

func (h *FastHTTPServer) Start() error {
	if !h.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if err := h.router.Finalize(); err != nil {
		h.setState(StateStopped)
		return types.WrapError(err, "failed to compile routes")
	}

	h.server = &fasthttp.Server{
		Handler:                      h.Handler(),
		ReadTimeout:                  time.Duration(h.httpConfig.ReadTimeout) * time.Second,
		WriteTimeout:                 time.Duration(h.httpConfig.WriteTimeout) * time.Second,
		IdleTimeout:                  time.Duration(h.httpConfig.IdleTimeout) * time.Second,
		MaxRequestBodySize:           h.httpConfig.MaxRequestBodySize,
		TCPKeepalive:                 true,
		DisablePreParseMultipartForm: true,
		CloseOnShutdown:              true,
	}

	addr := fmt.Sprintf("%s:%d", h.httpConfig.Host, h.httpConfig.Port)

	var err error
	if h.tlsConfig.Enabled {
		if h.tlsManager == nil {
			h.setState(StateStopped)
			return types.Errorf(types.ErrTLSConfigInvalid, "tls enabled without a tls manager")
		}
		h.listener, err = h.tlsManager.Serve(addr)
	} else {
		h.listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		h.setState(StateStopped)
		return types.Errorf(types.ErrServerStartFailed, "listen on %s: %v", addr, err)
	}

	go func() {
		if err := h.server.Serve(h.listener); err != nil {
			h.logger.Error("HTTP server failed", zap.Error(err))
			h.setState(StateStopped)
		}
	}()

	h.setState(StateRunning)

	h.logger.Info("HTTP server started successfully",
		zap.String("address", addr),
		zap.Bool("tls", h.tlsConfig.Enabled))

	return nil
}

func (h *FastHTTPServer) Stop() error {
	if !h.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		h.setState(StateStopped)
		h.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if h.server == nil {
			return nil
		}
		return h.server.ShutdownWithContext(gCtx)
	})

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			h.logger.Warn("Server stop timeout, some connections may not have closed gracefully")
		default:
			h.logger.Error("Error during server shutdown", zap.Error(err))
		}
	} else {
		h.logger.Info("HTTP server stopped gracefully")
	}

	return nil
}

func (h *FastHTTPServer) IsRunning() bool {
	return h.getState() == StateRunning
}

// Addr reports the bound address once the server runs.
func (h *FastHTTPServer) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Handler dispatches through the router and the middleware chain.
func (h *FastHTTPServer) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		match := h.router.Lookup(string(ctx.Method()), string(ctx.Path()))

		if match.Params != nil {
			ctx.SetUserValue(RouteParamsKey, match.Params)
		}
		ctx.SetUserValue(RouteConfigKey, match.Route.Config)

		start := time.Now()
		h.executeHandler(ctx, match.Route.Handler, match.Route.Config)
		h.observe(match, ctx.Response.StatusCode(), start)
	}
}

func (h *FastHTTPServer) observe(match Match, status int, start time.Time) {
	if h.metrics == nil {
		return
	}

	route := match.Route.Path
	if match.NotFound {
		route = "not_found"
	}

	h.metrics.Counter("http_requests_total", map[string]string{
		"method": match.Route.Method,
		"route":  route,
		"status": strconv.Itoa(status),
	}).Inc()
	h.metrics.Histogram("http_request_duration_seconds", nil, map[string]string{
		"route": route,
	}).ObserveDuration(start)
}

func (h *FastHTTPServer) executeHandler(ctx *fasthttp.RequestCtx, handler types.FastHTTPHandler, config *types.RouteConfig) {
	if handler == nil {
		ctx.Error(types.ErrPathNotFound.Error(), fasthttp.StatusNotFound)
		return
	}

	if h.middlewares != nil {
		h.middlewares.Execute(ctx, handler, config)
		return
	}

	handler(ctx)
}

// RequestContext derives a context bounded by the route timeout.
func RequestContext(parent context.Context, ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if config, ok := ctx.UserValue(RouteConfigKey).(*types.RouteConfig); ok && config.Timeout > 0 {
		return context.WithTimeout(parent, config.Timeout)
	}
	return context.WithCancel(parent)
}

func (h *FastHTTPServer) getState() State {
	return h.state.Load().(State)
}

func (h *FastHTTPServer) setState(newState State) {
	h.state.Store(newState)
}

func (h *FastHTTPServer) transitionState(from, to State) bool {
	return h.state.CompareAndSwap(from, to)
}
