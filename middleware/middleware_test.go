package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-food-admin/config"
	"github.com/saiset-co/sai-food-admin/guard"
	"github.com/saiset-co/sai-food-admin/logger"
	"github.com/saiset-co/sai-food-admin/metrics"
	"github.com/saiset-co/sai-food-admin/session"
	"github.com/saiset-co/sai-food-admin/types"
)

type recorder struct {
	name   string
	weight int
	calls  *[]string
}

func (r recorder) Name() string { return r.name }
func (r recorder) Weight() int  { return r.weight }
func (r recorder) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	*r.calls = append(*r.calls, r.name)
	next(ctx)
}

func testConfig() types.ConfigManager {
	return config.NewStaticManager(context.Background(), config.NewLoader().Defaults())
}

func request(method, path string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	return ctx
}

func TestManagerOrdersByWeight(t *testing.T) {
	var calls []string
	m := NewManager(context.Background(), testConfig(), logger.NewNopLogger(), nil)
	require.NoError(t, m.Register(recorder{name: "b", weight: 20, calls: &calls}))
	require.NoError(t, m.Register(recorder{name: "a", weight: 10, calls: &calls}))
	require.NoError(t, m.Register(recorder{name: "c", weight: 30, calls: &calls}))
	require.NoError(t, m.Start())
	defer func() { _ = m.Stop() }()

	assert.Equal(t, []string{"a", "b", "c"}, m.Names())

	handle := func(config *types.RouteConfig) []string {
		calls = nil
		m.Execute(request("GET", "/"), func(*fasthttp.RequestCtx) { calls = append(calls, "handler") }, config)
		return calls
	}

	assert.Equal(t, []string{"a", "b", "c", "handler"}, handle(nil))
	assert.Equal(t, []string{"a", "c", "handler"}, handle(&types.RouteConfig{DisabledMiddlewares: []string{"b"}}))
	assert.Equal(t, []string{"handler"}, handle(&types.RouteConfig{DisabledMiddlewares: []string{"a", "b", "c"}}))
	assert.Equal(t, []string{"a", "b", "c", "handler"}, handle(&types.RouteConfig{
		DisabledMiddlewares: []string{"b"},
		Middlewares:         []string{"b"},
	}))
}

func TestManagerRejectsDuplicates(t *testing.T) {
	var calls []string
	m := NewManager(context.Background(), testConfig(), logger.NewNopLogger(), nil)
	require.NoError(t, m.Register(recorder{name: "a", weight: 10, calls: &calls}))
	assert.Error(t, m.Register(recorder{name: "a", weight: 11, calls: &calls}))
	require.NoError(t, m.Register(recorder{name: "b", weight: 10, calls: &calls}))
	assert.ErrorIs(t, m.Start(), types.ErrMiddlewareOrderInvalid)
}

func TestRegisterMiddlewaresFromConfig(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Middlewares.Compression.Enabled = true
	manager := config.NewStaticManager(context.Background(), cfg)

	store := session.NewManagerWithBackend(context.Background(), session.NewMemoryBackend(), logger.NewNopLogger(), nil)
	g := guard.New(store, cfg.Guard, cfg.Session.Token, logger.NewNopLogger())

	m := NewManager(context.Background(), manager, logger.NewNopLogger(), nil)
	require.NoError(t, m.RegisterMiddlewares(g))
	assert.Equal(t, []string{"recovery", "request-id", "logging", "body-limit", "session", "guard", "compression"}, m.Names())

	assert.Error(t, NewManager(context.Background(), manager, logger.NewNopLogger(), nil).RegisterMiddlewares(nil))
}

func TestRecoveryReturnsInternalServerError(t *testing.T) {
	mw := NewRecoveryMiddleware(testConfig(), logger.NewNopLogger(), nil)
	ctx := request("GET", "/boom")

	mw.Handle(ctx, func(*fasthttp.RequestCtx) { panic("boom") }, nil)

	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `"error":"Internal Server Error"`)
}

func TestRequestID(t *testing.T) {
	mw := NewRequestIDMiddleware(testConfig())

	ctx := request("GET", "/")
	mw.Handle(ctx, func(*fasthttp.RequestCtx) {}, nil)
	_, err := uuid.Parse(RequestID(ctx))
	require.NoError(t, err)
	assert.Equal(t, RequestID(ctx), string(ctx.Response.Header.Peek(RequestIDHeader)))

	ctx = request("GET", "/")
	ctx.Request.Header.Set(RequestIDHeader, "upstream-1")
	mw.Handle(ctx, func(*fasthttp.RequestCtx) {}, nil)
	assert.Equal(t, "upstream-1", RequestID(ctx))
}

func TestBodyLimit(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Middlewares.BodyLimit.Params = map[string]interface{}{"max_body_size": 8}
	mw := NewBodyLimitMiddleware(config.NewStaticManager(context.Background(), cfg), logger.NewNopLogger(), nil)

	called := false
	ctx := request("POST", "/dashboard/add-food")
	ctx.Request.SetBodyString("0123456789")
	mw.Handle(ctx, func(*fasthttp.RequestCtx) { called = true }, nil)
	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusRequestEntityTooLarge, ctx.Response.StatusCode())

	ctx = request("POST", "/dashboard/add-food")
	ctx.Request.SetBodyString("small")
	mw.Handle(ctx, func(*fasthttp.RequestCtx) { called = true }, nil)
	assert.True(t, called)
}

func TestLoggingRecordsRequestMetrics(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Metrics = &types.MetricsConfig{
		Enabled: true,
		Type:    metrics.TypeMemory,
		Config:  map[string]interface{}{"collect_interval": 0},
	}
	cfgMgr := config.NewStaticManager(context.Background(), cfg)

	m, err := metrics.NewManager(context.Background(), cfgMgr, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, m.Start())
	defer func() { _ = m.Stop() }()

	mw := NewLoggingMiddleware(cfgMgr, logger.NewNopLogger(), m)

	for i := 0; i < 2; i++ {
		ctx := request("GET", "/dashboard")
		ctx.Request.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		mw.Handle(ctx, func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusOK) }, nil)
		assert.Equal(t, "10.0.0.1", remoteAddr(ctx))
	}

	assert.Equal(t, 2.0, m.Counter("http_requests_total", map[string]string{"method": "GET", "status": "200"}).Get())
	assert.EqualValues(t, 2, m.Histogram("http_request_duration_seconds", nil, map[string]string{"method": "GET"}).GetCount())
}

func TestSessionCookie(t *testing.T) {
	mw := NewSessionMiddleware(testConfig(), logger.NewNopLogger())

	ctx := request("GET", "/")
	mw.Handle(ctx, func(*fasthttp.RequestCtx) {}, nil)
	id := SessionID(ctx)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	cookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(cookie)
	cookie.SetKey("food_admin_session")
	require.True(t, ctx.Response.Header.Cookie(cookie))
	assert.Equal(t, id, string(cookie.Value()))
	assert.True(t, cookie.HTTPOnly())
	assert.Equal(t, fasthttp.CookieSameSiteLaxMode, cookie.SameSite())

	ctx = request("GET", "/")
	ctx.Request.Header.SetCookie("food_admin_session", id)
	mw.Handle(ctx, func(*fasthttp.RequestCtx) {}, nil)
	assert.Equal(t, id, SessionID(ctx))
	assert.Empty(t, ctx.Response.Header.PeekCookie("food_admin_session"))

	ctx = request("GET", "/")
	ctx.Request.Header.SetCookie("food_admin_session", "forged")
	mw.Handle(ctx, func(*fasthttp.RequestCtx) {}, nil)
	assert.NotEqual(t, "forged", SessionID(ctx))
}

func TestRotateSession(t *testing.T) {
	mw := NewSessionMiddleware(testConfig(), logger.NewNopLogger())

	planted := uuid.NewString()
	ctx := request("POST", "/")
	ctx.Request.Header.SetCookie("food_admin_session", planted)

	var rotated string
	mw.Handle(ctx, func(ctx *fasthttp.RequestCtx) {
		require.Equal(t, planted, SessionID(ctx))
		rotated = RotateSession(ctx)
	}, nil)

	assert.NotEqual(t, planted, rotated)
	assert.Equal(t, rotated, SessionID(ctx))

	cookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(cookie)
	cookie.SetKey("food_admin_session")
	require.True(t, ctx.Response.Header.Cookie(cookie))
	assert.Equal(t, rotated, string(cookie.Value()))
	assert.True(t, cookie.HTTPOnly())
}

func TestGuardRedirects(t *testing.T) {
	cfg := testConfig()
	store := session.NewManagerWithBackend(context.Background(), session.NewMemoryBackend(), logger.NewNopLogger(), nil)
	require.NoError(t, store.Start())
	defer func() { _ = store.Stop() }()

	g := guard.New(store, &types.GuardConfig{Layout: guard.LayoutClassic}, nil, logger.NewNopLogger())
	mw := NewGuardMiddleware(context.Background(), cfg, g, logger.NewNopLogger())

	run := func(area types.RouteArea, sessionID string) (*fasthttp.RequestCtx, bool) {
		ctx := request("GET", "/x")
		ctx.SetUserValue(sessionIDKey, sessionID)
		called := false
		mw.Handle(ctx, func(*fasthttp.RequestCtx) { called = true }, &types.RouteConfig{Area: area})
		return ctx, called
	}

	ctx, called := run(types.AreaAuthenticated, "anon")
	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusSeeOther, ctx.Response.StatusCode())
	assert.Equal(t, "/", string(ctx.Response.Header.Peek(fasthttp.HeaderLocation)))

	_, called = run(types.AreaUnauthenticated, "anon")
	assert.True(t, called)

	require.NoError(t, store.Set(context.Background(), "known", &types.Session{Token: "tok"}))
	ctx, called = run(types.AreaUnauthenticated, "known")
	assert.False(t, called)
	assert.Equal(t, "/dashboard", string(ctx.Response.Header.Peek(fasthttp.HeaderLocation)))

	_, called = run(types.AreaAuthenticated, "known")
	assert.True(t, called)

	_, called = run(types.AreaNone, "anon")
	assert.True(t, called)
}

func TestCompression(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Middlewares.Compression.Enabled = true
	mw := NewCompressionMiddleware(config.NewStaticManager(context.Background(), cfg), logger.NewNopLogger(), nil)

	payload := `{"items":"` + strings.Repeat("pizza ", 500) + `"}`
	handler := func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json; charset=utf-8")
		ctx.SetBodyString(payload)
	}

	ctx := request("GET", "/dashboard")
	ctx.Request.Header.Set(fasthttp.HeaderAcceptEncoding, "gzip, br")
	mw.Handle(ctx, handler, nil)
	require.Equal(t, "br", string(ctx.Response.Header.ContentEncoding()))
	decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(ctx.Response.Body())))
	require.NoError(t, err)
	assert.Equal(t, payload, string(decoded))

	ctx = request("GET", "/dashboard")
	ctx.Request.Header.Set(fasthttp.HeaderAcceptEncoding, "gzip")
	mw.Handle(ctx, handler, nil)
	require.Equal(t, "gzip", string(ctx.Response.Header.ContentEncoding()))
	gz, err := gzip.NewReader(bytes.NewReader(ctx.Response.Body()))
	require.NoError(t, err)
	decoded, err = io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, payload, string(decoded))

	ctx = request("GET", "/dashboard")
	mw.Handle(ctx, handler, nil)
	assert.Empty(t, ctx.Response.Header.ContentEncoding())

	assert.Equal(t, "", negotiate([]byte("br;q=0, identity")))
}
